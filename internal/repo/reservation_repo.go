// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Reservation model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// CreateReservation inserts an ACTIVE reservation joining user, book, and
// copy with the given start and due times.
func CreateReservation(ctx context.Context, db *gorm.DB, userID, bookID, copyID string, start, due time.Time) (*domain.Reservation, error) {
	r := &domain.Reservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		BookID:    bookID,
		CopyID:    copyID,
		Status:    domain.ReservationActive,
		StartDate: start,
		DueDate:   due,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetActiveReservation fetches the ACTIVE reservation joining userID and
// copyID, or ErrNotFound. At most one such row can exist at a time.
func GetActiveReservation(ctx context.Context, db *gorm.DB, userID, copyID string) (*domain.Reservation, error) {
	var r domain.Reservation
	err := db.WithContext(ctx).
		Where("user_id = ? AND copy_id = ? AND status = ?", userID, copyID, domain.ReservationActive).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RenewReservation sets the new due date (computed by the caller from the
// prior due date, not from now) and increments the renewal counter in one
// update. Returns ErrNotFound when the reservation does not exist.
func RenewReservation(ctx context.Context, db *gorm.DB, id string, newDue time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"due_date":    newDue,
			"renewed_cnt": gorm.Expr("renewed_cnt + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CancelReservation marks the reservation CANCELED and stamps the cancel
// time. Returns ErrNotFound when the reservation does not exist.
func CancelReservation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.ReservationCanceled,
			"canceled_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ExpireReservation marks the reservation EXPIRED. Used by the expiry sweep.
func ExpireReservation(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationActive).
		Update("status", domain.ReservationExpired)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListOverdueActive returns every ACTIVE reservation whose due date is
// before now, oldest first. Used by the expiry sweep.
func ListOverdueActive(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := db.WithContext(ctx).
		Where("status = ? AND due_date < ?", domain.ReservationActive, now).
		Order("due_date asc").
		Find(&out).Error
	return out, err
}
