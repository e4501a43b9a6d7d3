// Package dispatch turns classified intents into reservation-engine calls.
//
// This file defines the Command sum type: one strongly-typed struct per known
// intent, plus an Unknown variant carrying the classifier's reason. The loose
// parameter map coming out of the classifier is converted exactly once, at
// this boundary; everything deeper works with typed fields. Missing or
// malformed parameters become empty strings so the engine's own validation
// produces the precise error code.
package dispatch

import (
	"github.com/tbourn/go-library-backend/internal/nlp"
)

// Command is the closed set of actions the dispatcher can execute.
// Implementations are the *Command structs in this file and nothing else.
type Command interface {
	isCommand()
}

// ReserveCommand reserves one available copy of a book for a requester.
type ReserveCommand struct {
	BookID    string
	BookTitle string
	Name      string
	Email     string
}

// RenewCommand extends an active reservation by one loan period.
type RenewCommand struct {
	Barcode string
	Email   string
}

// CancelCommand terminates an active reservation.
type CancelCommand struct {
	Barcode string
	Email   string
}

// ListBooksCommand lists the catalog with copy counts.
type ListBooksCommand struct{}

// RegisterBookCommand creates a catalog title.
type RegisterBookCommand struct {
	Title  string
	Author string
}

// RegisterCopyCommand creates a physical copy of an existing book.
type RegisterCopyCommand struct {
	BookID   string
	Barcode  string
	Location string
}

// DeleteBookCommand removes a book with its copies and reservations.
type DeleteBookCommand struct {
	BookID string
}

// UnknownCommand is the degraded variant for unclassifiable messages.
type UnknownCommand struct {
	Reason string
}

func (ReserveCommand) isCommand()      {}
func (RenewCommand) isCommand()        {}
func (CancelCommand) isCommand()       {}
func (ListBooksCommand) isCommand()    {}
func (RegisterBookCommand) isCommand() {}
func (RegisterCopyCommand) isCommand() {}
func (DeleteBookCommand) isCommand()   {}
func (UnknownCommand) isCommand()      {}

// FromClassification converts a classification into a typed Command,
// supplying sender-derived fallbacks: when the classified params omit the
// requester's email or name, the message sender's address and display name
// fill in. Unrecognized intents map to UnknownCommand.
func FromClassification(cl nlp.Classification, senderEmail, senderName string) Command {
	p := cl.Params

	switch cl.Intent {
	case nlp.IntentReserve:
		email := nlp.StringParam(p, "email")
		if email == "" {
			email = senderEmail
		}
		name := nlp.StringParam(p, "name")
		if name == "" {
			name = senderName
		}
		return ReserveCommand{
			BookID:    nlp.StringParam(p, "book_id"),
			BookTitle: nlp.StringParam(p, "book_title"),
			Name:      name,
			Email:     email,
		}

	case nlp.IntentRenew:
		email := nlp.StringParam(p, "email")
		if email == "" {
			email = senderEmail
		}
		return RenewCommand{
			Barcode: nlp.StringParam(p, "barcode"),
			Email:   email,
		}

	case nlp.IntentCancel:
		email := nlp.StringParam(p, "email")
		if email == "" {
			email = senderEmail
		}
		return CancelCommand{
			Barcode: nlp.StringParam(p, "barcode"),
			Email:   email,
		}

	case nlp.IntentListBooks:
		return ListBooksCommand{}

	case nlp.IntentRegisterBook:
		return RegisterBookCommand{
			Title:  nlp.StringParam(p, "title"),
			Author: nlp.StringParam(p, "author"),
		}

	case nlp.IntentRegisterCopy:
		return RegisterCopyCommand{
			BookID:   nlp.StringParam(p, "book_id"),
			Barcode:  nlp.StringParam(p, "barcode"),
			Location: nlp.StringParam(p, "location"),
		}

	case nlp.IntentDeleteBook:
		return DeleteBookCommand{
			BookID: nlp.StringParam(p, "book_id"),
		}

	default:
		return UnknownCommand{Reason: cl.Reason}
	}
}
