// Package services – LibraryService
//
// This file implements the reservation engine, which owns the copy-status and
// reservation-status state machine: registering books and copies, reserving
// an available copy for a requester, renewing and canceling reservations,
// cascading book deletion, and the overdue-expiry sweep.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLoanDays is the fixed loan period added to due dates on reservation
// and on each renewal when no override is configured.
const DefaultLoanDays = 30

// LibraryService is the reservation engine.
//
// Every operation runs as a single GORM transaction so partial effects are
// never committed: a copy is never left RESERVED without a matching ACTIVE
// reservation, and vice versa. Business outcomes are returned in the uniform
// Result envelope; only infrastructure faults surface as Go errors, and the
// public methods wrap those into an ACTION_ERROR envelope themselves.
type LibraryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// LoanDays is the loan period in days; DefaultLoanDays when <= 0.
	LoanDays int

	// Now supplies the current time; defaults to time.Now (UTC). Tests
	// override it to pin due dates and expiry boundaries.
	Now func() time.Time
}

// NewLibraryService constructs a LibraryService with sane defaults.
func NewLibraryService(db *gorm.DB) *LibraryService {
	return &LibraryService{
		DB:       db,
		LoanDays: DefaultLoanDays,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// now returns the configured clock reading, falling back to wall time.
func (s *LibraryService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// loanPeriod returns the configured loan period as a duration.
func (s *LibraryService) loanPeriod() time.Duration {
	days := s.LoanDays
	if days <= 0 {
		days = DefaultLoanDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// RegisterBook creates a catalog title.
//
// Failure codes: MISSING_TITLE when the title is empty or blank.
func (s *LibraryService) RegisterBook(ctx context.Context, title, author string) Result {
	ctx, span := s.startSpan(ctx, "RegisterBook")
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		return Err("The book title is missing.", CodeMissingTitle)
	}

	b, err := repo.CreateBook(ctx, s.DB, title, strings.TrimSpace(author))
	if err != nil {
		return s.infraFailure(span, err)
	}
	return Ok("Book registered successfully.", map[string]any{
		"book_id": b.ID,
		"title":   b.Title,
		"author":  b.Author,
	})
}

// RegisterCopy creates a physical copy of an existing book. New copies start
// AVAILABLE.
//
// Failure codes: MISSING_FIELDS (any argument empty), BOOK_NOT_FOUND,
// BARCODE_EXISTS (barcode used by any copy regardless of status).
func (s *LibraryService) RegisterCopy(ctx context.Context, bookID, barcode, location string) Result {
	ctx, span := s.startSpan(ctx, "RegisterCopy", attribute.String("book.id", bookID))
	defer span.End()

	bookID = strings.TrimSpace(bookID)
	barcode = strings.TrimSpace(barcode)
	location = strings.TrimSpace(location)
	if bookID == "" || barcode == "" || location == "" {
		return Err("Missing data to register the copy (book_id, barcode, location).", CodeMissingFields)
	}

	var out Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetBook(ctx, tx, bookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				out = Err("The requested book does not exist.", CodeBookNotFound)
				return nil
			}
			return err
		}
		exists, err := repo.CopyBarcodeExists(ctx, tx, barcode)
		if err != nil {
			return err
		}
		if exists {
			out = Err("The barcode is already in use.", CodeBarcodeExists)
			return nil
		}
		c, err := repo.CreateCopy(ctx, tx, bookID, barcode, location)
		if err != nil {
			return err
		}
		out = Ok("Copy registered successfully.", map[string]any{
			"copy_id":  c.ID,
			"book_id":  c.BookID,
			"barcode":  c.Barcode,
			"location": c.Location,
			"status":   string(c.Status),
		})
		return nil
	})
	if err != nil {
		return s.infraFailure(span, err)
	}
	return out
}

// Reserve holds one available copy of a book for the requester. The book is
// resolved by id when given, otherwise by exact title match (earliest-created
// wins when titles collide). The requester is looked up or created by
// normalized email. The chosen copy flips to RESERVED and an ACTIVE
// reservation is created with due = now + loan period, all in one
// transaction, so two racing calls cannot both take the last copy.
//
// Failure codes: MISSING_EMAIL, BOOK_NOT_FOUND, NO_AVAILABLE_COPIES.
func (s *LibraryService) Reserve(ctx context.Context, bookID, bookTitle, name, email string) Result {
	ctx, span := s.startSpan(ctx, "Reserve", attribute.String("book.id", bookID))
	defer span.End()

	if strings.TrimSpace(email) == "" {
		return Err("The requester email is missing.", CodeMissingEmail)
	}

	var out Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.resolveBook(ctx, tx, bookID, bookTitle)
		if err != nil {
			return err
		}
		if book == nil {
			out = Err("Could not find the requested book (id/title).", CodeBookNotFound)
			return nil
		}

		c, err := repo.FindAvailableCopy(ctx, tx, book.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				out = Err("No copies of that book are available.", CodeNoAvailableCopies)
				return nil
			}
			return err
		}

		u, err := repo.GetOrCreateUser(ctx, tx, email, name)
		if err != nil {
			return err
		}

		if err := repo.UpdateCopyStatus(ctx, tx, c.ID, domain.CopyReserved); err != nil {
			return err
		}

		start := s.now()
		due := start.Add(s.loanPeriod())
		r, err := repo.CreateReservation(ctx, tx, u.ID, book.ID, c.ID, start, due)
		if err != nil {
			return err
		}

		out = Ok("The reservation was created successfully.", map[string]any{
			"reservation_id": r.ID,
			"book_id":        book.ID,
			"copy_id":        c.ID,
			"user_email":     u.Email,
			"due_date":       r.DueDate.Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		return s.infraFailure(span, err)
	}
	return out
}

// Renew extends the ACTIVE reservation joining the requester (by email) and
// the copy (by barcode). The new due date is the prior due date plus the loan
// period; the renewal counter increments by one. An overdue reservation is
// refused, not auto-expired.
//
// Failure codes: MISSING_FIELDS, USER_NOT_FOUND, COPY_NOT_FOUND,
// ACTIVE_RESERVATION_NOT_FOUND, RESERVATION_EXPIRED.
func (s *LibraryService) Renew(ctx context.Context, barcode, email string) Result {
	ctx, span := s.startSpan(ctx, "Renew", attribute.String("copy.barcode", barcode))
	defer span.End()

	if strings.TrimSpace(barcode) == "" || strings.TrimSpace(email) == "" {
		return Err("Missing data to renew (barcode, email).", CodeMissingFields)
	}

	var out Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, failed := s.findActiveReservation(ctx, tx, barcode, email)
		if failed != nil {
			out = *failed
			return nil
		}

		if r.DueDate.Before(s.now()) {
			out = Err("The reservation is already overdue and cannot be renewed.", CodeReservationExpired)
			return nil
		}

		newDue := r.DueDate.Add(s.loanPeriod())
		if err := repo.RenewReservation(ctx, tx, r.ID, newDue); err != nil {
			return err
		}

		out = Ok("The reservation was renewed successfully.", map[string]any{
			"reservation_id": r.ID,
			"due_date":       newDue.Format(time.RFC3339),
			"renewed_cnt":    r.RenewedCnt + 1,
		})
		return nil
	})
	if err != nil {
		return s.infraFailure(span, err)
	}
	return out
}

// Cancel terminates the ACTIVE reservation joining the requester (by email)
// and the copy (by barcode): the reservation becomes CANCELED with a cancel
// timestamp and the copy returns to AVAILABLE whatever its prior status.
//
// Failure codes: MISSING_FIELDS, USER_NOT_FOUND, COPY_NOT_FOUND,
// ACTIVE_RESERVATION_NOT_FOUND.
func (s *LibraryService) Cancel(ctx context.Context, barcode, email string) Result {
	ctx, span := s.startSpan(ctx, "Cancel", attribute.String("copy.barcode", barcode))
	defer span.End()

	if strings.TrimSpace(barcode) == "" || strings.TrimSpace(email) == "" {
		return Err("Missing data to cancel (barcode, email).", CodeMissingFields)
	}

	var out Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, failed := s.findActiveReservation(ctx, tx, barcode, email)
		if failed != nil {
			out = *failed
			return nil
		}

		if err := repo.CancelReservation(ctx, tx, r.ID, s.now()); err != nil {
			return err
		}
		if err := repo.UpdateCopyStatus(ctx, tx, r.CopyID, domain.CopyAvailable); err != nil {
			return err
		}

		out = Ok("The reservation was canceled successfully.", map[string]any{
			"reservation_id": r.ID,
		})
		return nil
	})
	if err != nil {
		return s.infraFailure(span, err)
	}
	return out
}

// DeleteBook removes a book together with all of its copies and every
// reservation referencing them, as one atomic cascade. The payload reports
// how many copies and reservations were removed.
//
// Failure codes: MISSING_ID, BOOK_NOT_FOUND.
func (s *LibraryService) DeleteBook(ctx context.Context, bookID string) Result {
	ctx, span := s.startSpan(ctx, "DeleteBook", attribute.String("book.id", bookID))
	defer span.End()

	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return Err("The book id is missing.", CodeMissingID)
	}

	var out Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetBook(ctx, tx, bookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				out = Err("Could not find the requested book.", CodeBookNotFound)
				return nil
			}
			return err
		}
		copies, reservations, err := repo.DeleteBookCascade(ctx, tx, bookID)
		if err != nil {
			return err
		}
		out = Ok("Book deleted successfully.", map[string]any{
			"book_id":              bookID,
			"removed_copies":       copies,
			"removed_reservations": reservations,
		})
		return nil
	})
	if err != nil {
		return s.infraFailure(span, err)
	}
	return out
}

// ListBooks returns every catalog title with its computed copy counts.
// An empty catalog is a valid, non-error result with an empty items slice.
func (s *LibraryService) ListBooks(ctx context.Context) Result {
	ctx, span := s.startSpan(ctx, "ListBooks")
	defer span.End()

	books, err := repo.ListBooks(ctx, s.DB)
	if err != nil {
		return s.infraFailure(span, err)
	}
	if len(books) == 0 {
		return Ok("No books registered yet.", map[string]any{"items": []map[string]any{}})
	}

	total, available, err := repo.CopyCounts(ctx, s.DB)
	if err != nil {
		return s.infraFailure(span, err)
	}

	items := make([]map[string]any, 0, len(books))
	for _, b := range books {
		items = append(items, map[string]any{
			"book_id":          b.ID,
			"title":            b.Title,
			"author":           b.Author,
			"copies_total":     total[b.ID],
			"copies_available": available[b.ID],
		})
	}
	return Ok("Book listing available.", map[string]any{"items": items})
}

// ExpireOverdue transitions every ACTIVE reservation whose due date has
// passed to EXPIRED and returns its copy to AVAILABLE, atomically per
// reservation batch. It returns the number of reservations expired. The
// poller runs it at the start of each cycle; running it twice in a row is a
// no-op.
func (s *LibraryService) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, span := s.startSpan(ctx, "ExpireOverdue")
	defer span.End()

	var n int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		overdue, err := repo.ListOverdueActive(ctx, tx, s.now())
		if err != nil {
			return err
		}
		for _, r := range overdue {
			if err := repo.ExpireReservation(ctx, tx, r.ID); err != nil {
				return err
			}
			if err := repo.UpdateCopyStatus(ctx, tx, r.CopyID, domain.CopyAvailable); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// resolveBook finds a book by id (id takes precedence) or exact title.
// It returns (nil, nil) when neither resolves; infrastructure errors are
// returned as-is.
func (s *LibraryService) resolveBook(ctx context.Context, tx *gorm.DB, bookID, title string) (*domain.Book, error) {
	if id := strings.TrimSpace(bookID); id != "" {
		b, err := repo.GetBook(ctx, tx, id)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if t := strings.TrimSpace(title); t != "" {
		b, err := repo.GetBookByTitle(ctx, tx, t)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// findActiveReservation resolves user (by email), copy (by barcode), and the
// ACTIVE reservation joining them. On any failure it returns a ready Result;
// no mutation has happened yet at that point, so committing the enclosing
// transaction is harmless.
func (s *LibraryService) findActiveReservation(ctx context.Context, tx *gorm.DB, barcode, email string) (*domain.Reservation, *Result) {
	u, err := repo.GetUserByEmail(ctx, tx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r := Err("Could not find the user.", CodeUserNotFound)
			return nil, &r
		}
		r := s.infraResult(err)
		return nil, &r
	}

	c, err := repo.GetCopyByBarcode(ctx, tx, strings.TrimSpace(barcode))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r := Err("Could not find the requested copy.", CodeCopyNotFound)
			return nil, &r
		}
		r := s.infraResult(err)
		return nil, &r
	}

	res, err := repo.GetActiveReservation(ctx, tx, u.ID, c.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r := Err("Could not find an active reservation for those details.", CodeActiveReservationNotFound)
			return nil, &r
		}
		r := s.infraResult(err)
		return nil, &r
	}
	return res, nil
}

// startSpan opens a tracing span for an engine operation.
func (s *LibraryService) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("services/LibraryService")
	return tr.Start(ctx, op, trace.WithAttributes(attrs...))
}

// infraFailure records an infrastructure error on the span and converts it
// into an ACTION_ERROR envelope so callers never see a raw fault.
func (s *LibraryService) infraFailure(span trace.Span, err error) Result {
	span.RecordError(err)
	return s.infraResult(err)
}

// infraResult wraps an infrastructure error into the envelope.
func (s *LibraryService) infraResult(err error) Result {
	return Err(fmt.Sprintf("The operation failed unexpectedly: %v", err), CodeActionError)
}
