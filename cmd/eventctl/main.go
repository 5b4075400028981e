package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"mixpanel-logger/internal/analytics"
	"mixpanel-logger/internal/bootstrap"
	"mixpanel-logger/internal/config"
	"mixpanel-logger/internal/errorreporting"
	"mixpanel-logger/internal/telemetry"
)

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred flushes run before os.Exit.
func realMain() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		Environment:    cfg.Env,
		Version:        cfg.Version,
		TracesExporter: cfg.OtelTracesExporter,
		OTLPEndpoint:   cfg.OtelOTLPEndpoint,
		OTLPHeaders:    telemetry.ParseOTLPHeaders(cfg.OtelOTLPHeadersRaw),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init telemetry: %v\n", err)
		return 1
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	reporter, err := errorreporting.New(errorreporting.Config{
		Provider:    cfg.ErrorReportingProvider,
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.Version,
		ServiceName: "eventctl",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init error reporting: %v\n", err)
		return 1
	}
	defer func() { _ = reporter.Shutdown(context.Background()) }()

	logger, cleanup, err := bootstrap.BuildLogger(ctx, cfg, reporter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init analytics: %v\n", err)
		errorreporting.Capture(ctx, reporter, err, map[string]string{"component": "eventctl"})
		return 1
	}

	code := 0
	if err := run(ctx, logger, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		errorreporting.Capture(ctx, reporter, err, map[string]string{"component": "eventctl", "command": os.Args[1]})
		usage()
		code = 2
	}

	if err := cleanup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown analytics: %v\n", err)
		errorreporting.Capture(ctx, reporter, err, map[string]string{"component": "eventctl"})
		if code == 0 {
			code = 1
		}
	}
	return code
}

func run(ctx context.Context, logger *analytics.Logger, cmd string, args []string) error {
	switch strings.TrimSpace(cmd) {
	case "log":
		fs := flag.NewFlagSet("log", flag.ContinueOnError)
		name := fs.String("name", "", "event name")
		props := propFlags{}
		fs.Var(&props, "prop", "event property as key=value (repeatable); JSON values are decoded")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			return fmt.Errorf("-name is required")
		}

		logger.LogEvent(ctx, *name, props)
		if err := logger.Flush(ctx); err != nil {
			return fmt.Errorf("deliver %s: %w", *name, err)
		}
		fmt.Printf("logged %s (%d properties)\n", *name, len(props))
		return nil
	case "id":
		fmt.Println(logger.DistinctIdentifier(ctx))
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type propFlags map[string]any

func (p propFlags) String() string {
	b, _ := json.Marshal(map[string]any(p))
	return string(b)
}

func (p propFlags) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("property %q must be key=value", raw)
	}
	p[key] = parseValue(value)
	return nil
}

// parseValue keeps numbers, booleans and JSON literals typed; anything else is a string.
func parseValue(raw string) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return raw
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  go run ./cmd/eventctl log -name NAME [-prop key=value ...]")
	fmt.Fprintln(os.Stderr, "  go run ./cmd/eventctl id")
}
