// Gemini-backed Classifier.
//
// This file implements Classifier over the Gemini generateContent REST API.
// The prompt pins the library domain and demands a strict JSON reply; the
// response is run through ParseClassification, which tolerates fences and
// stray prose. Temperature is kept low: classification wants determinism,
// not creativity.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// domainContext describes the schema the model classifies against.
const domainContext = `You are working with a library system with the following entities and fields:

- books(id, title, author, created_at)
- copies(id, book_id, barcode, status, location)
- users(id, email, name)
- reservations(id, user_id, book_id, copy_id, status, start_date, due_date, canceled_at, renewed_cnt)

States:
- CopyStatus: AVAILABLE, RESERVED, LOANED, LOST, DAMAGED
- ReservationStatus: ACTIVE, CANCELED, EXPIRED`

// instructions demands a strict JSON classification.
const instructions = `You are an intent parser for a library API.
Read the subject and body of the email. Infer the user's intent and its parameters.
You must answer with a single strict JSON object matching this schema:

- intent: one of {reserve | renew | cancel | list_books | register_book | register_copy | delete_book | unknown}
- params: object with the fields appropriate for the intent
  - reserve:       { "book_title"?: string, "book_id"?: string, "name": string, "email": string }
  - renew:         { "barcode": string, "email": string }
  - cancel:        { "barcode": string, "email": string }
  - list_books:    {}
  - register_book: { "title": string, "author"?: string }
  - register_copy: { "book_id": string, "barcode": string, "location": string }
  - delete_book:   { "book_id": string }
- confidence: number between 0 and 1
- reason: short text justifying the classification

If critical data is missing, use intent=unknown or fill params with empty strings and lower the confidence.
Answer with ONLY the final JSON, no extra text, no markdown, no backticks.`

// GeminiClassifier calls the Gemini REST API to classify messages.
// The zero value is not usable; construct with NewGeminiClassifier.
type GeminiClassifier struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// GeminiOption customizes a GeminiClassifier.
type GeminiOption func(*GeminiClassifier)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
func WithBaseURL(u string) GeminiOption {
	return func(g *GeminiClassifier) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClassifier) {
		if c != nil {
			g.http = c
		}
	}
}

// NewGeminiClassifier constructs a classifier for the given model and key.
// timeout bounds each classification call; <= 0 falls back to 15s.
func NewGeminiClassifier(apiKey, model string, timeout time.Duration, opts ...GeminiOption) *GeminiClassifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	g := &GeminiClassifier{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		http:    &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Wire types for the generateContent call. Only the fields we use.

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Classify sends one generateContent request and parses the strict-JSON
// reply. Transport failures, non-2xx statuses, and undecodable replies all
// surface as errors; the caller degrades them to Unknown.
func (g *GeminiClassifier) Classify(ctx context.Context, subject, body string) (Classification, error) {
	subject = orPlaceholder(subject, "(no subject)")
	body = orPlaceholder(body, "(no body)")

	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: domainContext + "\n\n" + instructions}},
		},
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{{
				Text: fmt.Sprintf("# EMAIL\nSubject: %s\n\nBody:\n%s\n", subject, body),
			}},
		}},
	}
	reqBody.GenerationConfig.Temperature = 0.2
	reqBody.GenerationConfig.MaxOutputTokens = 512

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Classification{}, fmt.Errorf("encode classify request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Classification{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return Classification{}, fmt.Errorf("classify call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Classification{}, fmt.Errorf("read classify response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Classification{}, fmt.Errorf("classify call: status %d", resp.StatusCode)
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return Classification{}, fmt.Errorf("decode classify response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return Classification{}, fmt.Errorf("classify response has no candidates")
	}

	return ParseClassification(gr.Candidates[0].Content.Parts[0].Text)
}

// orPlaceholder returns s unless it is blank, in which case def is used so
// the prompt never contains empty sections.
func orPlaceholder(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
