package errorreporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter receives failures that are not surfaced to callers, such as
// analytics deliveries that failed after LogEvent returned.
type Reporter interface {
	CaptureException(ctx context.Context, err error, attrs map[string]string)
	Shutdown(ctx context.Context) error
}

type Config struct {
	Provider    string // "console", "sentry", "none"
	DSN         string
	Environment string
	Release     string
	ServiceName string
}

func New(cfg Config) (Reporter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "console":
		return &consoleReporter{}, nil
	case "none", "noop", "disabled", "off":
		return &noopReporter{}, nil
	case "sentry":
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			slog.Warn("SENTRY_DSN not set; reporting errors to console")
			return &consoleReporter{}, nil
		}

		client, err := sentry.NewClient(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      strings.TrimSpace(cfg.Environment),
			Release:          strings.TrimSpace(cfg.Release),
			AttachStacktrace: true,
		})
		if err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}

		hub := sentry.NewHub(client, sentry.NewScope())
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("service", defaultString(cfg.ServiceName, "mixpanel-logger"))
		})

		return &sentryReporter{hub: hub}, nil
	default:
		return nil, fmt.Errorf("unknown ERROR_REPORTING_PROVIDER %q (expected console|sentry|none)", cfg.Provider)
	}
}

type noopReporter struct{}

func (r *noopReporter) CaptureException(context.Context, error, map[string]string) {}
func (r *noopReporter) Shutdown(context.Context) error                             { return nil }

type consoleReporter struct{}

func (r *consoleReporter) CaptureException(_ context.Context, err error, attrs map[string]string) {
	if err == nil {
		return
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := []any{"error", err}
	for _, k := range keys {
		fields = append(fields, k, attrs[k])
	}
	slog.Error("captured exception", fields...)
}

func (r *consoleReporter) Shutdown(context.Context) error { return nil }

type sentryReporter struct {
	hub *sentry.Hub
}

func (r *sentryReporter) CaptureException(_ context.Context, err error, attrs map[string]string) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range attrs {
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

func (r *sentryReporter) Shutdown(ctx context.Context) error {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil
	}

	if !r.hub.Flush(timeout) {
		return fmt.Errorf("sentry flush timed out")
	}
	return nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
