// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// NormalizeEmail lower-cases and trims an email address. The normalized form
// is the uniqueness key for users; every lookup and insert goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetUserByEmail fetches a user by normalized email, or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("email = ?", NormalizeEmail(email)).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateUser resolves the user for the normalized email, creating the
// row on first contact. A name supplied on creation is trimmed; an existing
// user's stored name is never overwritten.
func GetOrCreateUser(ctx context.Context, db *gorm.DB, email, name string) (*domain.User, error) {
	u, err := GetUserByEmail(ctx, db, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	nu := &domain.User{
		ID:    uuid.NewString(),
		Email: NormalizeEmail(email),
		Name:  strings.TrimSpace(name),
	}
	if err := db.WithContext(ctx).Create(nu).Error; err != nil {
		return nil, err
	}
	return nu, nil
}
