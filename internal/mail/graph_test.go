package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// newTestGraph wires a GraphClient to two local servers: one playing the
// OAuth token endpoint, one playing the Graph API. It returns the client and
// a counter of token requests served.
func newTestGraph(t *testing.T, graphHandler http.HandlerFunc) (*GraphClient, *atomic.Int64) {
	t.Helper()

	var tokenCalls atomic.Int64
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	graphSrv := httptest.NewServer(graphHandler)
	t.Cleanup(graphSrv.Close)

	g := NewGraphClient("tenant", "client", "secret", "library@example.com",
		WithTokenURL(tokenSrv.URL),
		WithGraphBaseURL(graphSrv.URL),
	)
	return g, &tokenCalls
}

func TestGraphClient_TokenCachedAcrossCalls(t *testing.T) {
	g, tokenCalls := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	})

	ctx := context.Background()
	if _, err := g.ListUnread(ctx, 5); err != nil {
		t.Fatalf("ListUnread: %v", err)
	}
	if _, err := g.ListUnread(ctx, 5); err != nil {
		t.Fatalf("ListUnread: %v", err)
	}
	if n := tokenCalls.Load(); n != 1 {
		t.Fatalf("token endpoint hit %d times; want 1 (cached)", n)
	}
}

func TestGraphClient_ListUnread(t *testing.T) {
	g, _ := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/library@example.com/mailFolders/inbox/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("$filter") != "isRead eq false" || q.Get("$top") != "3" {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"id":      "m1",
					"subject": "Reserve Dune",
					"from": map[string]any{"emailAddress": map[string]any{
						"address": "alice@example.com",
						"name":    "Alice Example",
					}},
					"bodyPreview": "please reserve",
				},
			},
		})
	})

	msgs, err := g.ListUnread(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListUnread: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages; want 1", len(msgs))
	}
	m := msgs[0]
	if m.ID != "m1" || m.From != "alice@example.com" || m.Subject != "Reserve Dune" {
		t.Fatalf("message = %+v", m)
	}
	if m.FromName != "Alice Example" {
		t.Fatalf("FromName = %q; want sender display name", m.FromName)
	}
}

func TestGraphClient_GetMessage(t *testing.T) {
	g, _ := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/library@example.com/messages/m1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "m1",
			"subject": "Reserve Dune",
			"from": map[string]any{"emailAddress": map[string]any{
				"address": "alice@example.com",
				"name":    "Alice Example",
			}},
			"body": map[string]any{"content": "<p>please reserve Dune</p>"},
		})
	})

	m, err := g.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m.BodyHTML != "<p>please reserve Dune</p>" {
		t.Fatalf("body = %q", m.BodyHTML)
	}
	if m.FromName != "Alice Example" {
		t.Fatalf("FromName = %q; want sender display name", m.FromName)
	}
	if m.BodyText() != "please reserve Dune" {
		t.Fatalf("BodyText = %q", m.BodyText())
	}
}

func TestGraphClient_SendAndMarkRead(t *testing.T) {
	var sendBody map[string]any
	var patchBody map[string]any

	g, _ := newTestGraph(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/users/library@example.com/sendMail":
			_ = json.NewDecoder(r.Body).Decode(&sendBody)
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodPatch && r.URL.Path == "/users/library@example.com/messages/m1":
			_ = json.NewDecoder(r.Body).Decode(&patchBody)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	if err := g.Send(ctx, "alice@example.com", "Re: Reserve Dune", "done"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg := sendBody["message"].(map[string]any)
	if msg["subject"] != "Re: Reserve Dune" {
		t.Fatalf("send payload = %+v", sendBody)
	}

	if err := g.MarkRead(ctx, "m1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if patchBody["isRead"] != true {
		t.Fatalf("patch payload = %+v", patchBody)
	}
}

func TestGraphClient_TokenFailureSurfaces(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer tokenSrv.Close()

	g := NewGraphClient("tenant", "client", "wrong", "library@example.com",
		WithTokenURL(tokenSrv.URL),
	)
	if _, err := g.ListUnread(context.Background(), 1); err == nil {
		t.Fatalf("expected token error")
	}
}
