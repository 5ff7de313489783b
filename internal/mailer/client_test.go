package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSendConfirmation_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/messages" {
			t.Fatalf("path = %s, want /api/messages", r.URL.Path)
		}

		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.To != "a@b.c" || msg.Link != "http://site/verify?token=t" || msg.Template != "confirm-signup" {
			t.Fatalf("unexpected message: %+v", msg)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.SendConfirmation(ctx, "a@b.c", "http://site/verify?token=t"); err != nil {
		t.Fatalf("SendConfirmation error: %v", err)
	}
}

func TestSendConfirmation_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	err := client.SendConfirmation(context.Background(), "a@b.c", "link")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter < 5*time.Second {
		t.Fatalf("retryAfter = %v, want at least 5s", rl)
	}
}

func TestSendConfirmation_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	if err := NewClient(ts.URL).SendConfirmation(context.Background(), "a@b.c", "link"); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestSendConfirmation_NotConfigured(t *testing.T) {
	var c *Client
	if err := c.SendConfirmation(context.Background(), "a@b.c", "link"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(zap.NewNop())
	if err := m.SendConfirmation(context.Background(), "a@b.c", "link"); err != nil {
		t.Fatalf("LogMailer error: %v", err)
	}
}
