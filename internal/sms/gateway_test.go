package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewGatewayClientDefaults(t *testing.T) {
	client := NewGatewayClient("api-key", "", "", 0)
	if client.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil {
		t.Fatal("HTTPClient should be set")
	}
	if client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient.Timeout = %v, want %v", client.HTTPClient.Timeout, defaultTimeout)
	}

	custom := NewGatewayClient("api-key", "https://custom.sms.local/api", "NEWS", 3*time.Second)
	if custom.BaseURL != "https://custom.sms.local/api" || custom.Sender != "NEWS" {
		t.Errorf("unexpected client: %+v", custom)
	}
	if custom.HTTPClient.Timeout != 3*time.Second {
		t.Errorf("HTTPClient.Timeout = %v, want 3s", custom.HTTPClient.Timeout)
	}
}

func TestSendSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["route"] != "otp" {
			t.Errorf("route = %v, want otp", body["route"])
		}
		if body["numbers"] != "13800000000" {
			t.Errorf("numbers = %v", body["numbers"])
		}
		if body["variables"] != "042917" {
			t.Errorf("variables = %v", body["variables"])
		}
		if body["sender_id"] != "NEWS" {
			t.Errorf("sender_id = %v", body["sender_id"])
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := NewGatewayClient("test-api-key", server.URL, "NEWS", time.Second)
	id, err := client.Send(context.Background(), "13800000000", "042917")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("dispatch id %q is not a uuid: %v", id, err)
	}
}

func TestSendNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer server.Close()

	client := NewGatewayClient("key", server.URL, "", time.Second)
	_, err := client.Send(context.Background(), "123", "000000")
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "status=400") {
		t.Errorf("error should mention status, got %v", err)
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewGatewayClient("", "", "", 0)
	if _, err := client.Send(context.Background(), "13800000000", "000000"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSendHonorsContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewGatewayClient("key", server.URL, "", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.Send(ctx, "13800000000", "000000"); err == nil {
		t.Fatal("expected error when context expires")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("Send ignored the context deadline")
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := &LogSender{Logger: log.New(&buf, "", 0)}
	id, err := sender.Send(context.Background(), "13800000000", "042917")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected dispatch id")
	}
	if !strings.Contains(buf.String(), "042917") || !strings.Contains(buf.String(), id) {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}
