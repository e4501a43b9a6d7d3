// Package domain defines the persistence models for the library catalog:
// books, physical copies, requesters, and reservations. These types are
// mapped with GORM and form the core data layer of the application.
package domain

import "time"

// CopyStatus is the lifecycle state of a physical copy.
type CopyStatus string

// Copy states. A copy is AVAILABLE exactly when no ACTIVE reservation
// references it.
const (
	CopyAvailable CopyStatus = "AVAILABLE"
	CopyReserved  CopyStatus = "RESERVED"
	CopyLoaned    CopyStatus = "LOANED"
	CopyLost      CopyStatus = "LOST"
	CopyDamaged   CopyStatus = "DAMAGED"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

// Reservation states. ACTIVE reservations hold a copy; CANCELED and EXPIRED
// reservations do not. The expiry sweep moves overdue ACTIVE reservations to
// EXPIRED (see services.LibraryService.ExpireOverdue).
const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationCanceled ReservationStatus = "CANCELED"
	ReservationExpired  ReservationStatus = "EXPIRED"
)

// Book represents a catalog title. A book owns zero or more copies; deleting
// a book cascades to its copies and their reservations.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title: human-readable title; indexed for the reserve-by-title lookup.
//   - Author: optional author name.
//   - CreatedAt: creation timestamp; also the tie-break for title lookups.
type Book struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null;index:idx_book_title"`
	Author    string    `json:"author,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Book.
func (Book) TableName() string { return "books" }

// Copy represents one physical, loanable instance of a book.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - BookID: foreign key to the owning book (indexed, cascade delete).
//   - Barcode: globally unique physical barcode.
//   - Status: copy lifecycle state; AVAILABLE on registration.
//   - Location: shelf/room label, free-form but required.
type Copy struct {
	ID        string     `json:"id"       gorm:"type:char(36);primaryKey"`
	BookID    string     `json:"book_id"  gorm:"type:char(36);not null;index:idx_copy_book"`
	Barcode   string     `json:"barcode"  gorm:"type:varchar(64);not null;uniqueIndex:ux_copy_barcode"`
	Status    CopyStatus `json:"status"   gorm:"type:varchar(16);not null;default:'AVAILABLE'"`
	Location  string     `json:"location" gorm:"type:varchar(128);not null"`
	CreatedAt time.Time  `json:"created_at"`

	// Book is the owning title. Copies are cascade-deleted with their book.
	Book Book `json:"-" gorm:"foreignKey:BookID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Copy.
func (Copy) TableName() string { return "copies" }

// User is a requester identified by normalized email (lower-cased, trimmed).
// Users are looked up or created on first reservation; they are never the
// target of a direct API operation.
type User struct {
	ID    string `json:"id"    gorm:"type:char(36);primaryKey"`
	Email string `json:"email" gorm:"type:varchar(255);not null;uniqueIndex:ux_user_email"`
	Name  string `json:"name,omitempty" gorm:"type:varchar(255)"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Reservation holds one copy against one requester for a loan period.
// Created only by a successful reserve; mutated in place by renew and cancel;
// hard-deleted only as part of a book cascade.
//
// Fields:
//   - UserID / BookID / CopyID: restrict-on-delete foreign keys.
//   - Status: ACTIVE, CANCELED, or EXPIRED.
//   - StartDate / DueDate: DueDate >= StartDate at creation and strictly
//     increases on every successful renewal.
//   - CanceledAt: stamped when the reservation is canceled.
//   - RenewedCnt: number of successful renewals, monotonically non-decreasing.
type Reservation struct {
	ID         string            `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID     string            `json:"user_id"    gorm:"type:char(36);not null;index:idx_res_user"`
	BookID     string            `json:"book_id"    gorm:"type:char(36);not null;index:idx_res_book"`
	CopyID     string            `json:"copy_id"    gorm:"type:char(36);not null;index:idx_res_copy"`
	Status     ReservationStatus `json:"status"     gorm:"type:varchar(16);not null;default:'ACTIVE'"`
	StartDate  time.Time         `json:"start_date"`
	DueDate    time.Time         `json:"due_date"`
	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
	RenewedCnt int               `json:"renewed_cnt" gorm:"not null;default:0"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Book Book `json:"-" gorm:"foreignKey:BookID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Copy Copy `json:"-" gorm:"foreignKey:CopyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Reservation.
func (Reservation) TableName() string { return "reservations" }
