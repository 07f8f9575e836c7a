package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/assistant-files/internal/infrastructure/resilience"
)

func TestFetchText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Expires") != "4102444800" {
			t.Errorf("query string must be passed through, got %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte("a,b\n1,2"))
	}))
	defer server.Close()

	text, err := New(Options{}).FetchText(context.Background(), server.URL+"/t.csv?Expires=4102444800&Signature=x")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if text != "a,b\n1,2" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestFetchNon2xxIsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "<Error>AccessDenied</Error>", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := New(Options{}).FetchBytes(context.Background(), server.URL)
	var statusErr *resilience.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "AccessDenied") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	if _, err := New(Options{MaxBytes: 16}).FetchBytes(context.Background(), server.URL); err == nil {
		t.Fatalf("expected size error")
	}
}
