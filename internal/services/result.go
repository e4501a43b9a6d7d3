// Package services implements the reservation engine: the business logic for
// books, copies, and reservations. This file defines the uniform result
// envelope returned by every engine operation and the stable machine-readable
// error codes carried inside it.
//
// The envelope is the contract both the HTTP layer and the mailbox dispatcher
// rely on: business outcomes (validation refusals, not-found lookups,
// conflicts) are values, not Go errors. Go errors are reserved for
// infrastructure faults (DB connectivity, driver failures).
package services

// Engine error codes. The set is exhaustive; callers map codes to HTTP
// statuses or reply wording without parsing messages.
const (
	CodeMissingTitle              = "MISSING_TITLE"
	CodeMissingFields             = "MISSING_FIELDS"
	CodeBookNotFound              = "BOOK_NOT_FOUND"
	CodeBarcodeExists             = "BARCODE_EXISTS"
	CodeMissingEmail              = "MISSING_EMAIL"
	CodeNoAvailableCopies         = "NO_AVAILABLE_COPIES"
	CodeUserNotFound              = "USER_NOT_FOUND"
	CodeCopyNotFound              = "COPY_NOT_FOUND"
	CodeActiveReservationNotFound = "ACTIVE_RESERVATION_NOT_FOUND"
	CodeReservationExpired        = "RESERVATION_EXPIRED"
	CodeMissingID                 = "MISSING_ID"
	CodeUnknownIntent             = "UNKNOWN_INTENT"
	CodeActionError               = "ACTION_ERROR"
)

// Result is the uniform envelope returned by every engine operation.
//
// Fields:
//   - OK: success flag.
//   - Message: human-readable outcome, safe to show to users or email back.
//   - Code: stable machine-readable error code; empty on success.
//   - Data: operation-specific payload (ids, due dates, counts); nil when
//     there is nothing to report.
type Result struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Ok builds a success Result with an optional payload.
func Ok(msg string, data map[string]any) Result {
	return Result{OK: true, Message: msg, Data: data}
}

// Err builds a failure Result tagged with a stable code.
func Err(msg, code string) Result {
	return Result{OK: false, Message: msg, Code: code}
}
