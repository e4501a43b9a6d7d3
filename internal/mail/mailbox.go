// Package mail provides access to the library's shared mailbox. It exposes a
// minimal Mailbox interface consumed by the poller and a Microsoft Graph
// implementation of it, plus a small HTML-to-text helper for feeding message
// bodies to the intent classifier.
package mail

import (
	"context"
	"regexp"
	"strings"
)

// Message is one mailbox message as seen by the poller. BodyHTML is only
// populated by GetMessage; list results carry the preview. FromName is the
// sender's display name and may be empty when the provider omits it.
type Message struct {
	ID          string
	Subject     string
	From        string
	FromName    string
	BodyPreview string
	BodyHTML    string
}

// Mailbox is the minimal interface implemented by mailbox clients.
// All calls are fire-and-forget from the dispatcher's perspective: the
// poller logs failures and moves on, it never retries inline.
type Mailbox interface {
	// ListUnread returns up to top unread messages, newest first.
	ListUnread(ctx context.Context, top int) ([]Message, error)
	// GetMessage fetches one message including its full body.
	GetMessage(ctx context.Context, id string) (Message, error)
	// Send delivers a plain-text reply.
	Send(ctx context.Context, to, subject, body string) error
	// MarkRead flags a message as read so it drops out of ListUnread.
	MarkRead(ctx context.Context, id string) error
}

// tagRE matches HTML tags for HTMLToText.
var tagRE = regexp.MustCompile(`<[^>]+>`)

// HTMLToText strips tags and non-breaking spaces from an HTML body, leaving
// rough plain text suitable as classifier input. It makes no attempt at
// entity decoding beyond &nbsp; (parsing heuristics are out of scope).
func HTMLToText(html string) string {
	if html == "" {
		return ""
	}
	s := tagRE.ReplaceAllString(html, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.TrimSpace(s)
}

// BodyText returns the best plain-text rendition of a message body: the
// stripped HTML body when present, otherwise the provider's preview.
func (m Message) BodyText() string {
	if t := HTMLToText(m.BodyHTML); t != "" {
		return t
	}
	return strings.TrimSpace(m.BodyPreview)
}
