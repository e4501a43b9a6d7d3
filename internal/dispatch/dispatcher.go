// Package dispatch – Dispatcher
//
// The Dispatcher maps exactly one Command to exactly one reservation-engine
// call and returns the engine's uniform Result envelope. It is the last line
// of defense for the poller: unknown intents become UNKNOWN_INTENT failures
// and a panicking engine call is recovered into an ACTION_ERROR failure, so
// a fault can never escape into the poll loop.
package dispatch

import (
	"context"
	"fmt"

	"github.com/tbourn/go-library-backend/internal/services"
)

// Engine defines the reservation-engine operations the dispatcher consumes.
//
// Implementations must return business outcomes inside the Result envelope
// and be safe for concurrent use.
type Engine interface {
	RegisterBook(ctx context.Context, title, author string) services.Result
	RegisterCopy(ctx context.Context, bookID, barcode, location string) services.Result
	Reserve(ctx context.Context, bookID, bookTitle, name, email string) services.Result
	Renew(ctx context.Context, barcode, email string) services.Result
	Cancel(ctx context.Context, barcode, email string) services.Result
	DeleteBook(ctx context.Context, bookID string) services.Result
	ListBooks(ctx context.Context) services.Result
}

// Dispatcher executes typed commands against the reservation engine.
type Dispatcher struct {
	engine Engine
}

// NewDispatcher constructs a Dispatcher bound to the given engine.
func NewDispatcher(engine Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Dispatch executes cmd and returns the engine's envelope. It never panics
// and never returns a Go error: every outcome, including a recovered fault,
// is a Result.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (res services.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = services.Err(
				fmt.Sprintf("The action failed unexpectedly: %v", rec),
				services.CodeActionError,
			)
		}
	}()

	switch c := cmd.(type) {
	case ReserveCommand:
		return d.engine.Reserve(ctx, c.BookID, c.BookTitle, c.Name, c.Email)
	case RenewCommand:
		return d.engine.Renew(ctx, c.Barcode, c.Email)
	case CancelCommand:
		return d.engine.Cancel(ctx, c.Barcode, c.Email)
	case ListBooksCommand:
		return d.engine.ListBooks(ctx)
	case RegisterBookCommand:
		return d.engine.RegisterBook(ctx, c.Title, c.Author)
	case RegisterCopyCommand:
		return d.engine.RegisterCopy(ctx, c.BookID, c.Barcode, c.Location)
	case DeleteBookCommand:
		return d.engine.DeleteBook(ctx, c.BookID)
	case UnknownCommand:
		reason := c.Reason
		if reason == "" {
			reason = "the message could not be mapped to a known action"
		}
		return services.Err(
			fmt.Sprintf("I could not understand the request: %s", reason),
			services.CodeUnknownIntent,
		)
	default:
		return services.Err("unsupported command", services.CodeUnknownIntent)
	}
}
