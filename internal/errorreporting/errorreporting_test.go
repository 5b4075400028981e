package errorreporting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type captured struct {
	errs  []error
	attrs []map[string]string
}

func (c *captured) CaptureException(_ context.Context, err error, attrs map[string]string) {
	c.errs = append(c.errs, err)
	c.attrs = append(c.attrs, attrs)
}

func (c *captured) Shutdown(context.Context) error { return nil }

func TestNew(t *testing.T) {
	t.Run("console by default", func(t *testing.T) {
		r, err := New(Config{})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if _, ok := r.(*consoleReporter); !ok {
			t.Fatalf("expected console reporter, got %T", r)
		}
	})

	t.Run("sentry without dsn falls back to console", func(t *testing.T) {
		r, err := New(Config{Provider: "sentry"})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if _, ok := r.(*consoleReporter); !ok {
			t.Fatalf("expected console reporter, got %T", r)
		}
	})

	t.Run("none", func(t *testing.T) {
		r, err := New(Config{Provider: "off"})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		r.CaptureException(context.Background(), errors.New("ignored"), nil)
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := New(Config{Provider: "bugsnag"}); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("reports panic as 500", func(t *testing.T) {
		c := &captured{}
		h := NewMiddleware(c).Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if len(c.errs) != 1 || c.attrs[0]["panic"] != "true" {
			t.Fatalf("expected panic capture, got %v", c.attrs)
		}
	})

	t.Run("reports 5xx", func(t *testing.T) {
		c := &captured{}
		h := NewMiddleware(c).Wrap(http.HandlerFunc(func(w http.ResponseWriter, *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/distinct-id", nil))
		if len(c.errs) != 1 || c.attrs[0]["http.status"] != "502" {
			t.Fatalf("expected 502 capture, got %v", c.attrs)
		}
	})

	t.Run("ignores 4xx", func(t *testing.T) {
		c := &captured{}
		h := NewMiddleware(c).Wrap(http.HandlerFunc(func(w http.ResponseWriter, *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/events", nil))
		if len(c.errs) != 0 {
			t.Fatalf("expected no capture")
		}
	})
}

func TestCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards error and attrs", func(t *testing.T) {
		rep := &captured{}
		Capture(ctx, rep, errors.New("flush timed out"), map[string]string{"component": "eventctl"})
		if len(rep.errs) != 1 || rep.attrs[0]["component"] != "eventctl" {
			t.Fatalf("unexpected capture %v %v", rep.errs, rep.attrs)
		}
	})

	t.Run("nil error is ignored", func(t *testing.T) {
		rep := &captured{}
		Capture(ctx, rep, nil, nil)
		if len(rep.errs) != 0 {
			t.Fatalf("expected nothing captured")
		}
	})

	t.Run("nil reporter is ignored", func(t *testing.T) {
		Capture(ctx, nil, errors.New("x"), nil)
	})
}
