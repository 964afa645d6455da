package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRelaySendsExpectedRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotType string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "hi there"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret-token", "whatsapp", time.Second)
	reply, err := c.Relay(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Relay failed: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("expected backend reply, got %q", reply)
	}

	if gotMethod != http.MethodPost || gotPath != "/api/message" {
		t.Fatalf("expected POST /api/message, got %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("bad Authorization header: %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Fatalf("bad Content-Type: %q", gotType)
	}
	if gotBody["message"] != "hello" || gotBody["source"] != "whatsapp" {
		t.Fatalf("bad request body: %v", gotBody)
	}
}

func TestRelayOmitsAuthWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "whatsapp", time.Second)
	if _, err := c.Relay(context.Background(), "hello"); err != nil {
		t.Fatalf("Relay failed: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestRelayResponseFieldPrecedence(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"response preferred", `{"response":"from response","message":"from message"}`, "from response"},
		{"message fallback", `{"message":"from message"}`, "from message"},
		{"raw body fallback", `plain text reply`, "plain text reply"},
		{"empty json falls back to raw", `{}`, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", "whatsapp", time.Second)
			got, err := c.Relay(context.Background(), "hello")
			if err != nil {
				t.Fatalf("Relay failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRelayBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "whatsapp", time.Second)
	_, err := c.Relay(context.Background(), "hello")
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BackendError, got %v", err)
	}
	if be.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", be.StatusCode)
	}
	if be.Body != "upstream exploded" {
		t.Fatalf("expected body excerpt, got %q", be.Body)
	}
}

func TestRelayBackendErrorTruncatesBody(t *testing.T) {
	long := strings.Repeat("x", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "whatsapp", time.Second)
	_, err := c.Relay(context.Background(), "hello")
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BackendError, got %v", err)
	}
	if len(be.Body) > maxErrorExcerpt+len("...") {
		t.Fatalf("excerpt not truncated, %d bytes", len(be.Body))
	}
	if !strings.HasSuffix(be.Body, "...") {
		t.Fatalf("truncated excerpt should end with ellipsis, got %q", be.Body[len(be.Body)-10:])
	}
}

func TestRelayTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, "", "whatsapp", 50*time.Millisecond)
	_, err := c.Relay(context.Background(), "hello")
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TimeoutError, got %v", err)
	}
	if te.Timeout != 50*time.Millisecond {
		t.Fatalf("expected the client timeout on the error, got %v", te.Timeout)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout wording, got %v", err)
	}
}
