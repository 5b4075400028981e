package telemetry

import (
	"context"
	"testing"
)

func TestParseOTLPHeaders(t *testing.T) {
	got := ParseOTLPHeaders(" authorization=Bearer x , junk, empty= ,k=v")
	if len(got) != 2 || got["authorization"] != "Bearer x" || got["k"] != "v" {
		t.Fatalf("unexpected headers %v", got)
	}
	if ParseOTLPHeaders("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestInit(t *testing.T) {
	t.Run("none exporter", func(t *testing.T) {
		shutdown, err := Init(context.Background(), Config{TracesExporter: "none"})
		if err != nil {
			t.Fatalf("init: %v", err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	})

	t.Run("unknown exporter", func(t *testing.T) {
		if _, err := Init(context.Background(), Config{TracesExporter: "zipkin"}); err == nil {
			t.Fatalf("expected error")
		}
	})
}
