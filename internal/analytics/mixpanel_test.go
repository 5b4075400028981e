package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mixpanel-logger/internal/identity"
)

func newMixpanelServer(t *testing.T, status int, reply string, got *[]mixpanelEvent) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/track" || r.URL.Query().Get("verbose") != "1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode body: %v", err)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
}

func TestMixpanelTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("posts event with attribution fields", func(t *testing.T) {
		var got []mixpanelEvent
		srv := newMixpanelServer(t, http.StatusOK, `{"status":1,"error":null}`, &got)
		defer srv.Close()

		ids := identity.NewResolver(nil)
		transport := NewMixpanel(srv.URL+"/", ids)
		transport.now = func() time.Time { return time.UnixMilli(1700000000000) }

		err := transport.Send(ctx, Event{
			Name:                      "Signed Up",
			ProjectToken:              "tok",
			SharedContainerIdentifier: "group",
			Properties:                map[string]any{"plan": "pro", "token": "spoofed"},
		})
		if err != nil {
			t.Fatalf("send: %v", err)
		}

		if len(got) != 1 || got[0].Event != "Signed Up" {
			t.Fatalf("unexpected payload %+v", got)
		}
		props := got[0].Properties
		if props["token"] != "tok" {
			t.Fatalf("expected configured token, got %v", props["token"])
		}
		if props["plan"] != "pro" {
			t.Fatalf("expected custom property, got %v", props["plan"])
		}
		if props["distinct_id"] != ids.Resolve(ctx, "group") {
			t.Fatalf("expected resolved distinct id, got %v", props["distinct_id"])
		}
		if props["time"] != float64(1700000000000) {
			t.Fatalf("expected time in ms, got %v", props["time"])
		}
		if s, _ := props["$insert_id"].(string); s == "" {
			t.Fatalf("expected $insert_id")
		}
	})

	t.Run("explicit distinct id kept", func(t *testing.T) {
		var got []mixpanelEvent
		srv := newMixpanelServer(t, http.StatusOK, `{"status":1}`, &got)
		defer srv.Close()

		err := NewMixpanel(srv.URL, nil).Send(ctx, Event{
			Name:         "e",
			ProjectToken: "tok",
			Properties:   map[string]any{"distinct_id": "user-42"},
		})
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if got[0].Properties["distinct_id"] != "user-42" {
			t.Fatalf("expected caller distinct id, got %v", got[0].Properties["distinct_id"])
		}
	})

	t.Run("no token drops without request", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
		defer srv.Close()

		if err := NewMixpanel(srv.URL, nil).Send(ctx, Event{Name: "e"}); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if called {
			t.Fatalf("expected no request")
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := newMixpanelServer(t, http.StatusBadRequest, "bad", nil)
		defer srv.Close()

		err := NewMixpanel(srv.URL, nil).Send(ctx, Event{Name: "e", ProjectToken: "tok"})
		if err == nil || !strings.Contains(err.Error(), "400") {
			t.Fatalf("expected status error, got %v", err)
		}
	})

	t.Run("verbose rejection is an error", func(t *testing.T) {
		srv := newMixpanelServer(t, http.StatusOK, `{"status":0,"error":"token, missing or empty"}`, nil)
		defer srv.Close()

		err := NewMixpanel(srv.URL, nil).Send(ctx, Event{Name: "e", ProjectToken: "tok"})
		if err == nil || !strings.Contains(err.Error(), "missing or empty") {
			t.Fatalf("expected rejection error, got %v", err)
		}
	})

	t.Run("unencodable property is an error", func(t *testing.T) {
		err := NewMixpanel("http://127.0.0.1:0", nil).Send(ctx, Event{
			Name:         "e",
			ProjectToken: "tok",
			Properties:   map[string]any{"ch": make(chan int)},
		})
		if err == nil {
			t.Fatalf("expected encode error")
		}
	})

	t.Run("logger swallows delivery failure", func(t *testing.T) {
		srv := newMixpanelServer(t, http.StatusInternalServerError, "oops", nil)
		defer srv.Close()

		reporter := &recordingReporter{}
		logger := New(NewMixpanel(srv.URL, nil), Config{ProjectToken: "tok"}, WithErrorReporter(reporter))
		logAndFlush(t, logger, "e", nil)
		if len(reporter.errs) != 1 {
			t.Fatalf("expected reported failure")
		}
	})
}

func TestConsoleTransport(t *testing.T) {
	transport := NewConsole(nil)
	if err := transport.Send(context.Background(), Event{Name: "e", Properties: map[string]any{"a": 1}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := transport.Send(context.Background(), Event{Name: "e", Properties: map[string]any{"f": func() {}}}); err == nil {
		t.Fatalf("expected encode error")
	}
}
