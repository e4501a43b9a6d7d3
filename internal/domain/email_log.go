// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// EmailLog records one inbound mailbox message handled by the poller, keyed
// by the provider's message id. It gives the at-least-once poll loop a
// best-effort dedup check: a message whose id is already logged as processed
// is skipped on redelivery. The log is advisory, not authoritative.
type EmailLog struct {
	ID          string     `gorm:"type:TEXT NOT NULL;primaryKey"`
	MessageID   string     `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_email_log_message"`
	FromEmail   string     `gorm:"type:TEXT NOT NULL;index"`
	Subject     string     `gorm:"type:TEXT"`
	Processed   bool       `gorm:"type:BOOLEAN NOT NULL;default:false"`
	ProcessedAt *time.Time `gorm:"type:DATETIME"`
	CreatedAt   time.Time  `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (EmailLog) TableName() string { return "email_log" }
