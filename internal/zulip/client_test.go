package zulip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tg_zulip_bridge/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.ZulipConfig{
		Site:   server.URL,
		Email:  "bridge-bot@example.com",
		APIKey: "secret",
		Stream: "From Telegram",
	}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestSendMessage(t *testing.T) {
	var gotPath, gotContent, gotTopic, gotUser, gotPass string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotContent = r.PostFormValue("content")
		gotTopic = r.PostFormValue("topic")
		gotUser, gotPass, _ = r.BasicAuth()
		fmt.Fprint(w, `{"result":"success","msg":"","id":4242}`)
	})

	id, err := client.SendMessage(context.Background(), "From Telegram", "Test", "*Alice:*\nhello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if id != 4242 {
		t.Fatalf("unexpected message id: %d", id)
	}
	if gotPath != "/api/v1/messages" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotContent != "*Alice:*\nhello" || gotTopic != "Test" {
		t.Fatalf("unexpected form values: content=%q topic=%q", gotContent, gotTopic)
	}
	if gotUser != "bridge-bot@example.com" || gotPass != "secret" {
		t.Fatalf("unexpected basic auth: %s / %s", gotUser, gotPass)
	}
}

func TestUpdateMessage(t *testing.T) {
	var gotMethod, gotPath string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"result":"success","msg":""}`)
	})

	if err := client.UpdateMessage(context.Background(), 4242, "edited"); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Fatalf("unexpected method: %s", gotMethod)
	}
	if gotPath != "/api/v1/messages/4242" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
}

func TestSendMessageAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"result":"error","msg":"Invalid stream","code":"STREAM_DOES_NOT_EXIST"}`)
	})

	_, err := client.SendMessage(context.Background(), "missing", "Test", "hi")
	if err == nil {
		t.Fatalf("expected error but got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "STREAM_DOES_NOT_EXIST" {
		t.Fatalf("unexpected code: %s", apiErr.Code)
	}
	if IsRetryable(err) {
		t.Fatalf("bad request must not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: &APIError{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "server error", err: &APIError{StatusCode: http.StatusBadGateway}, want: true},
		{name: "bad request", err: &APIError{StatusCode: http.StatusBadRequest}, want: false},
		{name: "unauthorized", err: &APIError{StatusCode: http.StatusUnauthorized}, want: false},
		{name: "network error", err: errors.New("connection refused"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
