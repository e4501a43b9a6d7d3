// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the EmailLog
// model used by the mailbox poller for best-effort dedup of inbound messages.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// ErrDuplicate indicates that an email log record already exists for the
// given provider message id.
var ErrDuplicate = errors.New("duplicate")

// IsMessageProcessed reports whether the message id is already logged as
// processed. Unlogged and logged-but-unprocessed messages both return false.
func IsMessageProcessed(ctx context.Context, db *gorm.DB, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, nil
	}
	var rec domain.EmailLog
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Processed, nil
}

// LogProcessedMessage inserts a processed-message record and returns
// ErrDuplicate on a unique violation of the message id. The log is
// best-effort: callers treat ErrDuplicate as success.
func LogProcessedMessage(ctx context.Context, db *gorm.DB, messageID, fromEmail, subject string) (*domain.EmailLog, error) {
	now := time.Now().UTC()
	rec := &domain.EmailLog{
		ID:          uuid.NewString(),
		MessageID:   messageID,
		FromEmail:   fromEmail,
		Subject:     subject,
		Processed:   true,
		ProcessedAt: &now,
		CreatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
