// Package nlp provides best-effort intent classification for inbound library
// emails. It exposes a minimal Classifier interface consumed by the mailbox
// poller, a Gemini-backed implementation of it, and tolerant parsing of the
// model's JSON output.
//
// Design notes:
//   - No logging in the library (callers decide how/what to log)
//   - Classification failures are values where possible: ParseClassification
//     never panics, confidence is clamped into [0,1], and unrecognized
//     intents normalize to "unknown"
//   - Callers must convert any error from Classify into an unknown
//     classification rather than letting it escape a processing loop
package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Known intents. The set mirrors the engine's command surface; anything else
// normalizes to IntentUnknown.
const (
	IntentReserve      = "reserve"
	IntentRenew        = "renew"
	IntentCancel       = "cancel"
	IntentListBooks    = "list_books"
	IntentRegisterBook = "register_book"
	IntentRegisterCopy = "register_copy"
	IntentDeleteBook   = "delete_book"
	IntentUnknown      = "unknown"
)

// Classification is the structured outcome of classifying one message.
//
// Params is deliberately loose (the model fills whatever fields it extracted);
// the dispatch layer converts it into a typed command exactly once.
type Classification struct {
	Intent     string         `json:"intent"`
	Params     map[string]any `json:"params"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
}

// Classifier is the minimal interface implemented by intent classifiers.
type Classifier interface {
	// Classify derives the structured intent of a message from its subject
	// and plain-text body. Implementations return an error only for
	// transport or parse faults; business-level uncertainty is expressed
	// through IntentUnknown and a low confidence.
	Classify(ctx context.Context, subject, body string) (Classification, error)
}

// Unknown builds the degraded classification mandated for failures: callers
// that hit a transport or parse error feed the dispatcher this value instead
// of propagating the fault.
func Unknown(reason string) Classification {
	return Classification{
		Intent:     IntentUnknown,
		Params:     map[string]any{},
		Confidence: 0,
		Reason:     reason,
	}
}

// validIntents guards normalization in ParseClassification.
var validIntents = map[string]struct{}{
	IntentReserve:      {},
	IntentRenew:        {},
	IntentCancel:       {},
	IntentListBooks:    {},
	IntentRegisterBook: {},
	IntentRegisterCopy: {},
	IntentDeleteBook:   {},
	IntentUnknown:      {},
}

// ParseClassification decodes the model's reply into a Classification.
//
// Models wrap JSON in code fences or pad it with prose more often than not,
// so the raw text is first reduced to its outermost JSON object. After
// decoding, the intent is normalized (unrecognized values become "unknown"),
// confidence is clamped into [0,1], and a nil params map is replaced with an
// empty one.
func ParseClassification(raw string) (Classification, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return Classification{}, fmt.Errorf("no JSON object in classifier reply")
	}

	var c Classification
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Classification{}, fmt.Errorf("decode classifier reply: %w", err)
	}

	c.Intent = strings.ToLower(strings.TrimSpace(c.Intent))
	if _, ok := validIntents[c.Intent]; !ok {
		c.Intent = IntentUnknown
	}
	if c.Params == nil {
		c.Params = map[string]any{}
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	return c, nil
}

// extractJSONObject returns the substring spanning the first '{' through the
// last '}' of s, with surrounding whitespace and markdown fences removed.
// Returns "" when no object brackets are present.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// StringParam extracts a string-valued parameter from a loose params map.
// Missing keys and non-string values yield "" so the engine's own validation
// can produce the precise error code.
func StringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
