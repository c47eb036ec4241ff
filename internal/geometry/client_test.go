package geometry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gmarroquin/fabmarket/internal/models"
)

func TestExtractVolume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volume" {
			t.Errorf("path = %q, want /volume", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "solid cube" {
			t.Errorf("body = %q", body)
		}
		w.Write([]byte(`{"volume_cm3": 12.3456}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	got, err := c.ExtractVolume(context.Background(), []byte("solid cube"))
	if err != nil {
		t.Fatalf("ExtractVolume: %v", err)
	}
	if got != 12.35 {
		t.Errorf("volume = %v, want 12.35 (rounded to 2dp)", got)
	}
}

func TestExtractVolumeNegativeSignedVolume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"volume_cm3": -10}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	got, err := c.ExtractVolume(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("ExtractVolume: %v", err)
	}
	if got != 10 {
		t.Errorf("volume = %v, want magnitude 10", got)
	}
}

func TestExtractVolumeUpstreamFailures(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer garbage.Close()

	tests := []struct {
		name    string
		baseURL string
	}{
		{"error status", bad.URL},
		{"garbage body", garbage.URL},
		{"unreachable", "http://127.0.0.1:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.baseURL, nil)
			if _, err := c.ExtractVolume(context.Background(), []byte("x")); !errors.Is(err, models.ErrUpstream) {
				t.Errorf("expected ErrUpstream, got %v", err)
			}
		})
	}
}
