package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "ok" {
		t.Errorf("expected status ok, got %q", res.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h := New(
			Checker{Name: "transport", Check: func(context.Context) error { return nil }},
			Checker{Name: "translator", Check: func(context.Context) error { return nil }},
		)

		rec := httptest.NewRecorder()
		h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var res result
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Checks["transport"] != "ok" || res.Checks["translator"] != "ok" {
			t.Errorf("unexpected checks: %v", res.Checks)
		}
	})

	t.Run("failing check returns 503", func(t *testing.T) {
		h := New(
			Checker{Name: "transport", Check: func(context.Context) error {
				return errors.New("connection failed after 10 attempts")
			}},
		)

		rec := httptest.NewRecorder()
		h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		var res result
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != "fail" {
			t.Errorf("expected status fail, got %q", res.Status)
		}
	})
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
