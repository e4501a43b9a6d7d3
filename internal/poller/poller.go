// Package poller implements the background mailbox loop: fetch unread
// messages, classify each one, dispatch the resulting command against the
// reservation engine, reply to the sender, mark the message read, and log it
// for best-effort dedup.
//
// The loop is strictly sequential: a new batch is never fetched until the
// previous batch's replies are fully sent. Per-message failures are contained
// to that message; a cycle-level failure (e.g. the mailbox is unreachable)
// logs and doubles the sleep before the next attempt. The loop only exits
// when its context is canceled. Startup misconfiguration is handled before
// Run is ever called (main skips the poller when credentials are missing).
package poller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/dispatch"
	"github.com/tbourn/go-library-backend/internal/mail"
	"github.com/tbourn/go-library-backend/internal/nlp"
	"github.com/tbourn/go-library-backend/internal/repo"
	"github.com/tbourn/go-library-backend/internal/services"
)

// Expirer is the slice of the reservation engine the poller drives directly:
// the overdue sweep that runs at the start of every cycle.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Poller owns the mailbox poll loop. Construct with New; Run is the only
// entry point and is meant to be launched as a goroutine owned by main.
type Poller struct {
	mailbox    mail.Mailbox
	classifier nlp.Classifier
	dispatcher *dispatch.Dispatcher
	expirer    Expirer
	db         *gorm.DB
	log        zerolog.Logger

	// Interval between cycles; a failed cycle sleeps twice this.
	Interval time.Duration
	// BatchSize caps the unread messages fetched per cycle.
	BatchSize int
}

// New constructs a Poller. interval is floored to 5s; batch to 1.
func New(mb mail.Mailbox, cl nlp.Classifier, d *dispatch.Dispatcher, exp Expirer, db *gorm.DB, log zerolog.Logger, interval time.Duration, batch int) *Poller {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if batch < 1 {
		batch = 1
	}
	return &Poller{
		mailbox:    mb,
		classifier: cl,
		dispatcher: d,
		expirer:    exp,
		db:         db,
		log:        log,
		Interval:   interval,
		BatchSize:  batch,
	}
}

// Run executes poll cycles until ctx is canceled. It never returns an error:
// transient failures are logged and retried after a doubled sleep.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().
		Dur("interval", p.Interval).
		Int("batch", p.BatchSize).
		Msg("poller started")

	for {
		sleep := p.Interval
		if err := p.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.log.Error().Err(err).Msg("poll cycle failed")
			sleep = 2 * p.Interval
		}

		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return
		case <-time.After(sleep):
		}
	}
	p.log.Info().Msg("poller stopped")
}

// cycle runs one full poll: expiry sweep, fetch, then per-message handling.
// Only fetch-level failures are returned; per-message failures are contained.
func (p *Poller) cycle(ctx context.Context) error {
	if n, err := p.expirer.ExpireOverdue(ctx); err != nil {
		p.log.Warn().Err(err).Msg("expiry sweep failed")
	} else if n > 0 {
		p.log.Info().Int("expired", n).Msg("expired overdue reservations")
	}

	unread, err := p.mailbox.ListUnread(ctx, p.BatchSize)
	if err != nil {
		return fmt.Errorf("list unread: %w", err)
	}
	if len(unread) > 0 {
		p.log.Info().Int("count", len(unread)).Msg("unread messages found")
	}

	for _, msg := range unread {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.handleMessage(ctx, msg)
	}
	return nil
}

// handleMessage processes one message end to end. Every failure inside is
// logged and degraded; the batch always continues.
func (p *Poller) handleMessage(ctx context.Context, msg mail.Message) {
	lg := p.log.With().Str("message_id", msg.ID).Logger()

	done, err := repo.IsMessageProcessed(ctx, p.db, msg.ID)
	if err != nil {
		lg.Warn().Err(err).Msg("dedup lookup failed")
	}
	if done {
		lg.Debug().Msg("message already processed, marking read")
		if err := p.mailbox.MarkRead(ctx, msg.ID); err != nil {
			lg.Warn().Err(err).Msg("mark read failed")
		}
		return
	}

	full, err := p.mailbox.GetMessage(ctx, msg.ID)
	if err != nil {
		lg.Warn().Err(err).Msg("fetch message failed")
		full = msg
	}

	cl, err := p.classifier.Classify(ctx, full.Subject, full.BodyText())
	if err != nil {
		lg.Warn().Err(err).Msg("classification failed")
		cl = nlp.Unknown(fmt.Sprintf("llm-error: %v", err))
	}
	lg.Info().
		Str("intent", cl.Intent).
		Float64("confidence", cl.Confidence).
		Msg("message classified")

	cmd := dispatch.FromClassification(cl, full.From, full.FromName)
	res := p.dispatcher.Dispatch(ctx, cmd)

	if full.From != "" {
		subject := "Re: " + orNoSubject(full.Subject)
		if err := p.mailbox.Send(ctx, full.From, subject, FormatReply(cl, res)); err != nil {
			lg.Warn().Err(err).Msg("send reply failed")
		}
	}

	if err := p.mailbox.MarkRead(ctx, msg.ID); err != nil {
		lg.Warn().Err(err).Msg("mark read failed")
	}

	if _, err := repo.LogProcessedMessage(ctx, p.db, msg.ID, full.From, full.Subject); err != nil && err != repo.ErrDuplicate {
		lg.Warn().Err(err).Msg("log processed message failed")
	}
}

// FormatReply renders the dispatch outcome as a plain-text email body.
func FormatReply(cl nlp.Classification, res services.Result) string {
	var b strings.Builder

	b.WriteString("Hello!\n\n")
	if res.OK {
		b.WriteString(res.Message)
		b.WriteString("\n")
	} else {
		b.WriteString("I could not complete your request.\n\n")
		b.WriteString(res.Message)
		b.WriteString("\n")
		if res.Code != "" {
			fmt.Fprintf(&b, "(code: %s)\n", res.Code)
		}
	}

	if items, ok := res.Data["items"].([]map[string]any); ok {
		b.WriteString("\n")
		for _, it := range items {
			fmt.Fprintf(&b, "- %v by %v (%v of %v copies available) [id %v]\n",
				it["title"], orDash(it["author"]), it["copies_available"], it["copies_total"], it["book_id"])
		}
	} else if len(res.Data) > 0 && res.OK {
		b.WriteString("\n")
		keys := make([]string, 0, len(res.Data))
		for k := range res.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, res.Data[k])
		}
	}

	fmt.Fprintf(&b, "\n(intent: %s, confidence: %.2f)\n", cl.Intent, cl.Confidence)
	fmt.Fprintf(&b, "(processed: %s)\n", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

func orNoSubject(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no subject)"
	}
	return s
}

func orDash(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return "-"
	}
	if v == nil {
		return "-"
	}
	return v
}
