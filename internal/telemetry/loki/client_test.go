package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestPushEventJSON(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	raw := []byte(`{"id":"e1","kind":"mfa_success","tenant_id":"acme corp","created_at":"2026-02-03T04:05:06Z"}`)
	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != "authcore" || s.Stream["kind"] != "mfa_success" || s.Stream["tenant_id"] != "acme_corp" {
		t.Errorf("labels = %v", s.Stream)
	}
	if len(s.Values) != 1 || s.Values[0][1] != string(raw) {
		t.Errorf("values = %v", s.Values)
	}
	if want := "1770091506000000000"; s.Values[0][0] != want {
		t.Errorf("timestamp = %s, want %s (%v)", s.Values[0][0], want, at)
	}
}

func TestPush_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	c, _ := NewClient(srv.URL, srv.Client())
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err == nil {
		t.Fatal("expected error on 400")
	}
}
