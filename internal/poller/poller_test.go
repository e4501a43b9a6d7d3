package poller

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/dispatch"
	"github.com/tbourn/go-library-backend/internal/mail"
	"github.com/tbourn/go-library-backend/internal/nlp"
	"github.com/tbourn/go-library-backend/internal/repo"
	"github.com/tbourn/go-library-backend/internal/services"
)

// fakeMailbox is an in-memory Mailbox that records side effects.
type fakeMailbox struct {
	unread   []mail.Message
	listErr  error
	sent     []sentMail
	markRead []string
}

type sentMail struct {
	to, subject, body string
}

func (f *fakeMailbox) ListUnread(ctx context.Context, top int) ([]mail.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if top < len(f.unread) {
		return f.unread[:top], nil
	}
	return f.unread, nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, id string) (mail.Message, error) {
	for _, m := range f.unread {
		if m.ID == id {
			m.BodyHTML = "<p>" + m.BodyPreview + "</p>"
			return m, nil
		}
	}
	return mail.Message{}, errors.New("not found")
}

func (f *fakeMailbox) Send(ctx context.Context, to, subject, body string) error {
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func (f *fakeMailbox) MarkRead(ctx context.Context, id string) error {
	f.markRead = append(f.markRead, id)
	return nil
}

// fakeClassifier returns one canned classification or error.
type fakeClassifier struct {
	cl  nlp.Classification
	err error
}

func (f *fakeClassifier) Classify(ctx context.Context, subject, body string) (nlp.Classification, error) {
	return f.cl, f.err
}

// fakeEngine satisfies both dispatch.Engine and Expirer.
type fakeEngine struct {
	expired   int
	expireErr error
	result    services.Result
	calls     []string

	reserveName  string
	reserveEmail string
}

func (f *fakeEngine) ExpireOverdue(ctx context.Context) (int, error) {
	f.calls = append(f.calls, "ExpireOverdue")
	return f.expired, f.expireErr
}
func (f *fakeEngine) RegisterBook(ctx context.Context, title, author string) services.Result {
	f.calls = append(f.calls, "RegisterBook")
	return f.result
}
func (f *fakeEngine) RegisterCopy(ctx context.Context, bookID, barcode, location string) services.Result {
	f.calls = append(f.calls, "RegisterCopy")
	return f.result
}
func (f *fakeEngine) Reserve(ctx context.Context, bookID, bookTitle, name, email string) services.Result {
	f.calls = append(f.calls, "Reserve")
	f.reserveName = name
	f.reserveEmail = email
	return f.result
}
func (f *fakeEngine) Renew(ctx context.Context, barcode, email string) services.Result {
	f.calls = append(f.calls, "Renew")
	return f.result
}
func (f *fakeEngine) Cancel(ctx context.Context, barcode, email string) services.Result {
	f.calls = append(f.calls, "Cancel")
	return f.result
}
func (f *fakeEngine) DeleteBook(ctx context.Context, bookID string) services.Result {
	f.calls = append(f.calls, "DeleteBook")
	return f.result
}
func (f *fakeEngine) ListBooks(ctx context.Context) services.Result {
	f.calls = append(f.calls, "ListBooks")
	return f.result
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestPoller(t *testing.T, mb mail.Mailbox, cl nlp.Classifier, eng *fakeEngine) *Poller {
	t.Helper()
	return New(mb, cl, dispatch.NewDispatcher(eng), eng, testDB(t), zerolog.Nop(), 5*time.Second, 5)
}

func TestCycle_ProcessesMessageEndToEnd(t *testing.T) {
	mb := &fakeMailbox{unread: []mail.Message{
		{ID: "m1", Subject: "Reserve Dune", From: "alice@example.com", FromName: "Alice Example", BodyPreview: "please reserve Dune"},
	}}
	cl := &fakeClassifier{cl: nlp.Classification{
		Intent:     nlp.IntentReserve,
		Params:     map[string]any{"book_title": "Dune"},
		Confidence: 0.9,
	}}
	eng := &fakeEngine{result: services.Ok("The reservation was created successfully.", map[string]any{
		"reservation_id": "r1",
	})}
	p := newTestPoller(t, mb, cl, eng)

	if err := p.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(eng.calls) < 2 || eng.calls[0] != "ExpireOverdue" || eng.calls[1] != "Reserve" {
		t.Fatalf("engine calls = %v; want sweep then Reserve", eng.calls)
	}
	// The classifier omitted name and email, so the sender's address and
	// display name fill in.
	if eng.reserveEmail != "alice@example.com" || eng.reserveName != "Alice Example" {
		t.Fatalf("reserve requester = (%q, %q); want sender fallbacks", eng.reserveName, eng.reserveEmail)
	}
	if len(mb.sent) != 1 {
		t.Fatalf("sent %d replies; want 1", len(mb.sent))
	}
	reply := mb.sent[0]
	if reply.to != "alice@example.com" || reply.subject != "Re: Reserve Dune" {
		t.Fatalf("reply = %+v", reply)
	}
	if !strings.Contains(reply.body, "The reservation was created successfully.") {
		t.Fatalf("reply body missing outcome:\n%s", reply.body)
	}
	if len(mb.markRead) != 1 || mb.markRead[0] != "m1" {
		t.Fatalf("markRead = %v", mb.markRead)
	}

	done, err := repo.IsMessageProcessed(context.Background(), p.db, "m1")
	if err != nil || !done {
		t.Fatalf("message not logged as processed: (%v, %v)", done, err)
	}
}

func TestCycle_SkipsAlreadyProcessedMessage(t *testing.T) {
	mb := &fakeMailbox{unread: []mail.Message{
		{ID: "m1", Subject: "Reserve Dune", From: "alice@example.com"},
	}}
	eng := &fakeEngine{result: services.Ok("ok", nil)}
	p := newTestPoller(t, mb, &fakeClassifier{cl: nlp.Unknown("n/a")}, eng)

	if _, err := repo.LogProcessedMessage(context.Background(), p.db, "m1", "alice@example.com", "Reserve Dune"); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	if err := p.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(mb.sent) != 0 {
		t.Fatalf("duplicate message answered: %v", mb.sent)
	}
	// Still marked read so it drops out of the unread listing.
	if len(mb.markRead) != 1 {
		t.Fatalf("markRead = %v; want the duplicate marked read", mb.markRead)
	}
}

func TestCycle_ClassifierErrorDegradesToUnknown(t *testing.T) {
	mb := &fakeMailbox{unread: []mail.Message{
		{ID: "m1", Subject: "???", From: "alice@example.com", BodyPreview: "gibberish"},
	}}
	cl := &fakeClassifier{err: errors.New("model unavailable")}
	eng := &fakeEngine{result: services.Ok("ok", nil)}
	p := newTestPoller(t, mb, cl, eng)

	if err := p.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// The engine is never called for an unknown command, but the sender still
	// gets a reply carrying UNKNOWN_INTENT.
	for _, c := range eng.calls {
		if c != "ExpireOverdue" {
			t.Fatalf("engine called for unknown intent: %v", eng.calls)
		}
	}
	if len(mb.sent) != 1 || !strings.Contains(mb.sent[0].body, services.CodeUnknownIntent) {
		t.Fatalf("expected UNKNOWN_INTENT reply, got %+v", mb.sent)
	}
}

func TestCycle_ListFailureReturnsError(t *testing.T) {
	mb := &fakeMailbox{listErr: errors.New("graph down")}
	eng := &fakeEngine{}
	p := newTestPoller(t, mb, &fakeClassifier{}, eng)

	if err := p.cycle(context.Background()); err == nil {
		t.Fatalf("expected cycle error when listing fails")
	}
}

func TestCycle_ExpirySweepFailureDoesNotAbort(t *testing.T) {
	mb := &fakeMailbox{}
	eng := &fakeEngine{expireErr: errors.New("db hiccup")}
	p := newTestPoller(t, mb, &fakeClassifier{}, eng)

	if err := p.cycle(context.Background()); err != nil {
		t.Fatalf("sweep failure must not fail the cycle: %v", err)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	mb := &fakeMailbox{}
	eng := &fakeEngine{}
	p := newTestPoller(t, mb, &fakeClassifier{}, eng)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancel")
	}
}

func TestNew_FloorsIntervalAndBatch(t *testing.T) {
	p := New(&fakeMailbox{}, &fakeClassifier{}, dispatch.NewDispatcher(&fakeEngine{}), &fakeEngine{}, nil, zerolog.Nop(), time.Second, 0)
	if p.Interval != 5*time.Second {
		t.Fatalf("interval = %v; want 5s floor", p.Interval)
	}
	if p.BatchSize != 1 {
		t.Fatalf("batch = %d; want 1 floor", p.BatchSize)
	}
}

func TestFormatReply(t *testing.T) {
	cl := nlp.Classification{Intent: nlp.IntentListBooks, Confidence: 0.8}
	res := services.Ok("Book listing available.", map[string]any{
		"items": []map[string]any{
			{"book_id": "b1", "title": "Dune", "author": "Frank Herbert", "copies_total": int64(2), "copies_available": int64(1)},
		},
	})

	body := FormatReply(cl, res)
	if !strings.Contains(body, "Dune by Frank Herbert") {
		t.Fatalf("listing line missing:\n%s", body)
	}
	if !strings.Contains(body, "intent: list_books") {
		t.Fatalf("intent footer missing:\n%s", body)
	}

	fail := services.Err("Could not find the requested book.", services.CodeBookNotFound)
	body = FormatReply(cl, fail)
	if !strings.Contains(body, "I could not complete your request.") ||
		!strings.Contains(body, services.CodeBookNotFound) {
		t.Fatalf("failure reply malformed:\n%s", body)
	}
}

func TestFormatReply_DataLinesAreSorted(t *testing.T) {
	cl := nlp.Classification{Intent: nlp.IntentReserve, Confidence: 0.9}
	res := services.Ok("The reservation was created successfully.", map[string]any{
		"reservation_id": "r1",
		"book_id":        "b1",
		"copy_id":        "c1",
		"due_date":       "2025-02-01T03:04:05Z",
	})

	want := "- book_id: b1\n- copy_id: c1\n- due_date: 2025-02-01T03:04:05Z\n- reservation_id: r1\n"
	for i := 0; i < 5; i++ {
		if body := FormatReply(cl, res); !strings.Contains(body, want) {
			t.Fatalf("data lines not in key order:\n%s", body)
		}
	}
}
