// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Copy model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// CreateCopy inserts a new Copy row for bookID with the given barcode and
// location. New copies start AVAILABLE. A UNIQUE violation on the barcode
// surfaces as the raw driver error; callers that need a friendly answer
// should check barcode existence first (see CopyBarcodeExists).
func CreateCopy(ctx context.Context, db *gorm.DB, bookID, barcode, location string) (*domain.Copy, error) {
	c := &domain.Copy{
		ID:        uuid.NewString(),
		BookID:    bookID,
		Barcode:   barcode,
		Status:    domain.CopyAvailable,
		Location:  location,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// CopyBarcodeExists reports whether any copy, regardless of status, already
// uses the given barcode.
func CopyBarcodeExists(ctx context.Context, db *gorm.DB, barcode string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Copy{}).
		Where("barcode = ?", barcode).
		Count(&n).Error
	return n > 0, err
}

// GetCopyByBarcode fetches a single copy by its barcode, or ErrNotFound.
func GetCopyByBarcode(ctx context.Context, db *gorm.DB, barcode string) (*domain.Copy, error) {
	var c domain.Copy
	err := db.WithContext(ctx).
		Where("barcode = ?", barcode).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAvailableCopy returns one AVAILABLE copy of the given book, or
// ErrNotFound when every copy is reserved, loaned, lost, or damaged.
// Selection is deterministic: the earliest-created copy wins.
func FindAvailableCopy(ctx context.Context, db *gorm.DB, bookID string) (*domain.Copy, error) {
	var c domain.Copy
	err := db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, domain.CopyAvailable).
		Order("created_at asc, id asc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCopyStatus sets the status of the copy identified by id.
// Returns ErrNotFound when the copy does not exist.
func UpdateCopyStatus(ctx context.Context, db *gorm.DB, id string, status domain.CopyStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Copy{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
