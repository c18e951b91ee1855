package notify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEncoded(t *testing.T) {
	var gotPath, gotSecret, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("x-encoder-secret")
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "s3cret", 5*time.Second, zerolog.Nop())
	if err := c.Encoded(context.Background(), "vid-1"); err != nil {
		t.Fatalf("Encoded: %v", err)
	}
	if gotPath != "/videos/vid-1/encoded" {
		t.Errorf("path = %q, want /videos/vid-1/encoded", gotPath)
	}
	if gotSecret != "s3cret" {
		t.Errorf("secret header = %q", gotSecret)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
}

func TestEncodedDeletedRecordIsBenign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "s", 5*time.Second, zerolog.Nop())
	if err := c.Encoded(context.Background(), "gone"); err != nil {
		t.Fatalf("Encoded after 404: %v, want nil", err)
	}
}

func TestEncodedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "s", 5*time.Second, zerolog.Nop())
	err := c.Encoded(context.Background(), "vid-1")
	var notifyErr *NotifyError
	if !errors.As(err, &notifyErr) {
		t.Fatalf("expected NotifyError, got %v", err)
	}
	if notifyErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", notifyErr.Status)
	}
}

func TestEncodedReusesConnection(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	srv.Config.ConnState = func(c net.Conn, state http.ConnState) {
		if state == http.StateNew {
			mu.Lock()
			conns++
			mu.Unlock()
		}
	}
	srv.Start()
	defer srv.Close()

	c := New(srv.URL, "s", 5*time.Second, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if err := c.Encoded(context.Background(), "vid-1"); err != nil {
			t.Fatalf("Encoded: %v", err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if conns != 1 {
		t.Errorf("connections = %d, want 1 (response bodies must be drained)", conns)
	}
}

func TestEncodedUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, "s", time.Second, zerolog.Nop())
	err := c.Encoded(context.Background(), "vid-1")
	var notifyErr *NotifyError
	if !errors.As(err, &notifyErr) {
		t.Fatalf("expected NotifyError, got %v", err)
	}
}
