package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("token", srv.URL, time.Second, zerolog.Nop())
}

func TestSendMessageSuccess(t *testing.T) {
	var received sendMessageRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	if err := c.SendMessage(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("SendMessage should succeed: %v", err)
	}
	if received.ChatID != 42 || received.Text != "hello" {
		t.Fatalf("unexpected payload: %+v", received)
	}
	if received.ParseMode != "HTML" {
		t.Fatalf("expected HTML parse mode, got %q", received.ParseMode)
	}
}

func TestSendMessageBlockedIsPermanent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  403,
			"description": "Forbidden: bot was blocked by the user",
		})
	})

	err := c.SendMessage(context.Background(), 42, "hello")
	if err == nil {
		t.Fatal("expected error for blocked recipient")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if !apiErr.Permanent() {
		t.Fatal("403 should classify as permanent")
	}
}

func TestSendMessageChatNotFoundIsPermanent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  400,
			"description": "Bad Request: chat not found",
		})
	})

	err := c.SendMessage(context.Background(), 42, "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Permanent() {
		t.Fatalf("400 should classify as permanent, got %v", err)
	}
}

func TestSendMessageServerErrorIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 500})
	})

	err := c.SendMessage(context.Background(), 42, "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Permanent() {
		t.Fatal("500 should not classify as permanent")
	}
}
