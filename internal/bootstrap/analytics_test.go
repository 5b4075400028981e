package bootstrap

import (
	"context"
	"testing"

	"mixpanel-logger/internal/config"
)

func TestBuildLogger(t *testing.T) {
	ctx := context.Background()

	t.Run("carries configuration", func(t *testing.T) {
		logger, cleanup, err := BuildLogger(ctx, config.Config{
			AnalyticsProvider:         "none",
			IdentityStore:             "file",
			IdentityDir:               t.TempDir(),
			MixpanelProjectToken:      "tok",
			SharedContainerIdentifier: "group.example",
			DefaultProperties:         map[string]any{"app": "demo"},
		}, nil)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		defer func() {
			if err := cleanup(ctx); err != nil {
				t.Fatalf("cleanup: %v", err)
			}
		}()

		if logger.ProjectToken() != "tok" || logger.SharedContainerIdentifier() != "group.example" {
			t.Fatalf("unexpected config %+v", logger.Snapshot())
		}
		if logger.DefaultProperties()["app"] != "demo" {
			t.Fatalf("expected default properties")
		}
		if logger.DistinctIdentifier(ctx) == "" {
			t.Fatalf("expected distinct id")
		}
	})

	t.Run("file store keeps id across builds", func(t *testing.T) {
		cfg := config.Config{AnalyticsProvider: "none", IdentityStore: "file", IdentityDir: t.TempDir()}

		first, cleanup, err := BuildLogger(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if err := cleanup(ctx); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
		second, cleanup, err := BuildLogger(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if err := cleanup(ctx); err != nil {
			t.Fatalf("cleanup: %v", err)
		}

		if first.DistinctIdentifier(ctx) != second.DistinctIdentifier(ctx) {
			t.Fatalf("expected shared distinct id")
		}
	})

	t.Run("cleanup delivers pending events", func(t *testing.T) {
		logger, cleanup, err := BuildLogger(ctx, config.Config{AnalyticsProvider: "console"}, nil)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		logger.LogEvent(ctx, "Shutdown", nil)

		if err := cleanup(ctx); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
		if err := logger.Flush(ctx); err != nil {
			t.Fatalf("flush after cleanup: %v", err)
		}
	})

	t.Run("cleanup with nothing in flight ignores a done context", func(t *testing.T) {
		_, cleanup, err := BuildLogger(ctx, config.Config{AnalyticsProvider: "none"}, nil)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		expired, cancel := context.WithCancel(ctx)
		cancel()
		if err := cleanup(expired); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
	})

	t.Run("bad provider", func(t *testing.T) {
		if _, _, err := BuildLogger(ctx, config.Config{AnalyticsProvider: "segment"}, nil); err == nil {
			t.Fatalf("expected error")
		}
	})
}
