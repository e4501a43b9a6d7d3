// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Book model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a book is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateBook inserts a new Book row with the given title and optional author.
// The book ID is a randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateBook(ctx context.Context, db *gorm.DB, title, author string) (*domain.Book, error) {
	b := &domain.Book{
		ID:        uuid.NewString(),
		Title:     title,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// GetBook fetches a single book by its ID. If the record does not exist,
// it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetBook(ctx context.Context, db *gorm.DB, id string) (*domain.Book, error) {
	var b domain.Book
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookByTitle fetches the book with an exact title match. When several
// books share a title, the earliest-created row wins (deterministic
// tie-break; creation order, then id). Returns ErrNotFound when no title
// matches.
func GetBookByTitle(ctx context.Context, db *gorm.DB, title string) (*domain.Book, error) {
	var b domain.Book
	err := db.WithContext(ctx).
		Where("title = ?", title).
		Order("created_at asc, id asc").
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks returns every book ordered by creation time ascending.
// An empty catalog yields an empty slice, not an error.
func ListBooks(ctx context.Context, db *gorm.DB) ([]domain.Book, error) {
	var out []domain.Book
	err := db.WithContext(ctx).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// CopyCounts aggregates, per book id, the total number of copies and the
// number currently AVAILABLE. Books without copies are absent from the maps.
func CopyCounts(ctx context.Context, db *gorm.DB) (total map[string]int64, available map[string]int64, err error) {
	type row struct {
		BookID string
		N      int64
	}

	var totals []row
	err = db.WithContext(ctx).
		Model(&domain.Copy{}).
		Select("book_id, count(*) as n").
		Group("book_id").
		Scan(&totals).Error
	if err != nil {
		return nil, nil, err
	}

	var avails []row
	err = db.WithContext(ctx).
		Model(&domain.Copy{}).
		Select("book_id, count(*) as n").
		Where("status = ?", domain.CopyAvailable).
		Group("book_id").
		Scan(&avails).Error
	if err != nil {
		return nil, nil, err
	}

	total = make(map[string]int64, len(totals))
	for _, r := range totals {
		total[r.BookID] = r.N
	}
	available = make(map[string]int64, len(avails))
	for _, r := range avails {
		available[r.BookID] = r.N
	}
	return total, available, nil
}

// DeleteBookCascade removes all reservations referencing the book, then all
// of its copies, then the book row itself. The caller is expected to run it
// inside a transaction so the cascade is atomic. It returns the number of
// copies and reservations removed.
func DeleteBookCascade(ctx context.Context, db *gorm.DB, bookID string) (copies int64, reservations int64, err error) {
	res := db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Delete(&domain.Reservation{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	reservations = res.RowsAffected

	res = db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Delete(&domain.Copy{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	copies = res.RowsAffected

	if err := db.WithContext(ctx).
		Where("id = ?", bookID).
		Delete(&domain.Book{}).Error; err != nil {
		return 0, 0, err
	}
	return copies, reservations, nil
}
