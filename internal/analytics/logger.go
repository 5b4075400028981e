package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "mixpanel-logger/analytics"

// Config is the façade's mutable configuration. DefaultProperties are sent
// with every event.
type Config struct {
	ProjectToken              string
	SharedContainerIdentifier string
	DefaultProperties         map[string]any
}

// ErrorReporter receives delivery failures that LogEvent swallows.
// errorreporting.Reporter satisfies it.
type ErrorReporter interface {
	CaptureException(ctx context.Context, err error, attrs map[string]string)
}

// Logger merges default properties into each event and hands it to a
// Transport. Build one at startup and share it; it is safe for concurrent use.
type Logger struct {
	transport Transport
	reporter  ErrorReporter
	tracer    trace.Tracer

	mu  sync.RWMutex
	cfg Config

	pending pending
}

// pending counts deliveries that LogEvent handed off but that have not
// finished. idle is closed whenever the count is zero.
type pending struct {
	mu     sync.Mutex
	n      int
	idle   chan struct{}
	closed bool
}

func (p *pending) add() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.n == 0 {
		p.idle = make(chan struct{})
	}
	p.n++
	return true
}

func (p *pending) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n--
	if p.n == 0 {
		close(p.idle)
	}
}

func (p *pending) wait(ctx context.Context, closing bool) error {
	p.mu.Lock()
	if closing {
		p.closed = true
	}
	idle := p.idle
	p.mu.Unlock()

	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	default:
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Option func(*Logger)

func WithErrorReporter(reporter ErrorReporter) Option {
	return func(l *Logger) {
		l.reporter = reporter
	}
}

func New(transport Transport, cfg Config, opts ...Option) *Logger {
	if transport == nil {
		transport = NewNoop(nil)
	}

	l := &Logger{
		transport: transport,
		tracer:    otel.Tracer(tracerName),
		cfg: Config{
			ProjectToken:              cfg.ProjectToken,
			SharedContainerIdentifier: cfg.SharedContainerIdentifier,
			DefaultProperties:         copyProperties(cfg.DefaultProperties),
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Logger) ProjectToken() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.ProjectToken
}

func (l *Logger) SetProjectToken(token string) {
	l.mu.Lock()
	l.cfg.ProjectToken = token
	l.mu.Unlock()
}

func (l *Logger) SharedContainerIdentifier() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.SharedContainerIdentifier
}

func (l *Logger) SetSharedContainerIdentifier(id string) {
	l.mu.Lock()
	l.cfg.SharedContainerIdentifier = id
	l.mu.Unlock()
}

// DefaultProperties returns a copy; mutating it does not affect the Logger.
func (l *Logger) DefaultProperties() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyProperties(l.cfg.DefaultProperties)
}

func (l *Logger) SetDefaultProperties(props map[string]any) {
	copied := copyProperties(props)
	l.mu.Lock()
	l.cfg.DefaultProperties = copied
	l.mu.Unlock()
}

// Snapshot returns a copy of the current configuration.
func (l *Logger) Snapshot() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Config{
		ProjectToken:              l.cfg.ProjectToken,
		SharedContainerIdentifier: l.cfg.SharedContainerIdentifier,
		DefaultProperties:         copyProperties(l.cfg.DefaultProperties),
	}
}

// LogEvent is fire-and-forget. The event is built from the configuration at
// call time and delivered on its own goroutine, so the caller never waits on
// the network. Transport errors and panics are logged and reported, never
// returned. Call Flush or Close to wait for delivery.
func (l *Logger) LogEvent(ctx context.Context, name string, properties map[string]any) {
	if strings.TrimSpace(name) == "" {
		slog.Debug("dropping analytics event with empty name")
		return
	}

	cfg := l.Snapshot()
	event := Event{
		Name:                      name,
		ProjectToken:              cfg.ProjectToken,
		SharedContainerIdentifier: cfg.SharedContainerIdentifier,
		Properties:                MergeProperties(cfg.DefaultProperties, properties),
	}

	if !l.pending.add() {
		slog.Debug("analytics logger closed; dropping event", "event", name)
		return
	}

	ctx, span := l.tracer.Start(ctx, "analytics.LogEvent", trace.WithAttributes(
		attribute.String("analytics.event", name),
		attribute.Int("analytics.properties", len(event.Properties)),
	))
	// The request that logged the event may finish before delivery does.
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer l.pending.done()
		defer span.End()
		l.deliver(ctx, span, event)
	}()
}

func (l *Logger) deliver(ctx context.Context, span trace.Span, event Event) {
	err := l.send(ctx, event)
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "analytics delivery failed")
	slog.Debug("analytics event delivery failed", "event", event.Name, "error", err)
	if l.reporter != nil {
		l.reporter.CaptureException(ctx, err, map[string]string{
			"component":       "analytics",
			"analytics.event": event.Name,
		})
	}
}

// Flush waits until every event logged so far has been delivered or has
// failed, or until ctx is done.
func (l *Logger) Flush(ctx context.Context) error {
	return l.pending.wait(ctx, false)
}

// Close stops accepting events and waits for in-flight deliveries like Flush.
// Events logged after Close are dropped.
func (l *Logger) Close(ctx context.Context) error {
	return l.pending.wait(ctx, true)
}

func (l *Logger) send(ctx context.Context, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("analytics transport panic: %v", recovered)
		}
	}()
	return l.transport.Send(ctx, event)
}

func (l *Logger) DistinctIdentifier(ctx context.Context) string {
	return l.transport.Identifier(ctx, l.SharedContainerIdentifier())
}

// MergeProperties returns a new map holding defaults overlaid with custom;
// custom values win on shared keys. The result is never nil.
func MergeProperties(defaults map[string]any, custom map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(custom))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range custom {
		merged[k] = v
	}
	return merged
}

func copyProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
