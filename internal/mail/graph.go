// Microsoft Graph Mailbox implementation.
//
// GraphClient authenticates with the client-credentials flow and talks to
// the Graph v1.0 mail endpoints for one user mailbox. Access tokens are
// cached until shortly before expiry; a single in-flight request never
// refreshes twice thanks to the token mutex.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	defaultTokenURLTpl  = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	// tokenSlack renews the cached token this long before its stated expiry.
	tokenSlack = 60 * time.Second
)

// GraphClient implements Mailbox over the Microsoft Graph REST API.
// Construct with NewGraphClient; the zero value is not usable.
type GraphClient struct {
	tenantID     string
	clientID     string
	clientSecret string
	userUPN      string

	baseURL  string
	tokenURL string
	http     *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// GraphOption customizes a GraphClient.
type GraphOption func(*GraphClient)

// WithGraphBaseURL overrides the Graph API endpoint (tests point it at a
// local server).
func WithGraphBaseURL(u string) GraphOption {
	return func(g *GraphClient) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(u string) GraphOption {
	return func(g *GraphClient) {
		if u != "" {
			g.tokenURL = u
		}
	}
}

// WithGraphHTTPClient overrides the underlying HTTP client.
func WithGraphHTTPClient(c *http.Client) GraphOption {
	return func(g *GraphClient) {
		if c != nil {
			g.http = c
		}
	}
}

// NewGraphClient constructs a Mailbox for one user mailbox using the
// client-credentials flow.
func NewGraphClient(tenantID, clientID, clientSecret, userUPN string, opts ...GraphOption) *GraphClient {
	g := &GraphClient{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		userUPN:      userUPN,
		baseURL:      defaultGraphBaseURL,
		tokenURL:     fmt.Sprintf(defaultTokenURLTpl, url.PathEscape(tenantID)),
		http:         &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// accessToken returns a cached token or fetches a fresh one.
func (g *GraphClient) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenExp.Add(-tokenSlack)) {
		return g.token, nil
	}

	form := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}

	g.token = payload.AccessToken
	g.tokenExp = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return g.token, nil
}

// do issues an authenticated Graph request and enforces a 2xx status.
// The response body is returned for the caller to decode (nil for 204s).
func (g *GraphClient) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("graph %s %s: status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}

// graphMessage is the Graph wire shape reduced to the fields we select.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	BodyPreview string `json:"bodyPreview"`
	Body        struct {
		Content string `json:"content"`
	} `json:"body"`
}

func (m graphMessage) toMessage() Message {
	return Message{
		ID:          m.ID,
		Subject:     m.Subject,
		From:        m.From.EmailAddress.Address,
		FromName:    m.From.EmailAddress.Name,
		BodyPreview: m.BodyPreview,
		BodyHTML:    m.Body.Content,
	}
}

// ListUnread returns up to top unread inbox messages, newest first.
func (g *GraphClient) ListUnread(ctx context.Context, top int) ([]Message, error) {
	if top < 1 {
		top = 5
	}
	q := url.Values{
		"$filter":  {"isRead eq false"},
		"$orderby": {"receivedDateTime desc"},
		"$top":     {fmt.Sprintf("%d", top)},
		"$select":  {"id,subject,from,receivedDateTime,bodyPreview"},
	}
	raw, err := g.do(ctx, http.MethodGet,
		"/users/"+url.PathEscape(g.userUPN)+"/mailFolders/inbox/messages", q, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Value []graphMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode message list: %w", err)
	}
	out := make([]Message, 0, len(payload.Value))
	for _, m := range payload.Value {
		out = append(out, m.toMessage())
	}
	return out, nil
}

// GetMessage fetches one message including its full body.
func (g *GraphClient) GetMessage(ctx context.Context, id string) (Message, error) {
	q := url.Values{
		"$select": {"id,subject,from,receivedDateTime,body,bodyPreview"},
	}
	raw, err := g.do(ctx, http.MethodGet,
		"/users/"+url.PathEscape(g.userUPN)+"/messages/"+url.PathEscape(id), q, nil)
	if err != nil {
		return Message{}, err
	}

	var m graphMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m.toMessage(), nil
}

// Send delivers a plain-text mail from the polled mailbox.
func (g *GraphClient) Send(ctx context.Context, to, subject, body string) error {
	payload := map[string]any{
		"message": map[string]any{
			"subject": subject,
			"body": map[string]any{
				"contentType": "Text",
				"content":     body,
			},
			"toRecipients": []map[string]any{
				{"emailAddress": map[string]any{"address": to}},
			},
		},
	}
	_, err := g.do(ctx, http.MethodPost,
		"/users/"+url.PathEscape(g.userUPN)+"/sendMail", nil, payload)
	return err
}

// MarkRead flags a message as read.
func (g *GraphClient) MarkRead(ctx context.Context, id string) error {
	_, err := g.do(ctx, http.MethodPatch,
		"/users/"+url.PathEscape(g.userUPN)+"/messages/"+url.PathEscape(id), nil,
		map[string]any{"isRead": true})
	return err
}
