package analytics

import (
	"context"
	"fmt"
	"strings"

	"mixpanel-logger/internal/identity"
)

// Event is what a Transport receives: the event name, the project it is
// attributed to, and the already-merged property set.
type Event struct {
	Name                      string
	ProjectToken              string
	SharedContainerIdentifier string
	Properties                map[string]any
}

// Transport delivers events to an analytics vendor and owns the
// installation's distinct identifier.
type Transport interface {
	Send(ctx context.Context, event Event) error
	Identifier(ctx context.Context, sharedContainerIdentifier string) string
}

type NoopTransport struct {
	ids *identity.Resolver
}

// NewNoop drops every event. Distinct identifiers are still handed out from
// ids, or from a process-local resolver when ids is nil.
func NewNoop(ids *identity.Resolver) *NoopTransport {
	if ids == nil {
		ids = identity.NewResolver(nil)
	}
	return &NoopTransport{ids: ids}
}

func (t *NoopTransport) Send(context.Context, Event) error { return nil }

func (t *NoopTransport) Identifier(ctx context.Context, sharedContainerIdentifier string) string {
	return t.ids.Resolve(ctx, sharedContainerIdentifier)
}

func ProviderFromEnv(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "console":
		return "console", nil
	case "mixpanel":
		return "mixpanel", nil
	case "none", "noop", "disabled", "off":
		return "none", nil
	default:
		return "", fmt.Errorf("unknown ANALYTICS_PROVIDER %q (expected console|mixpanel|none)", value)
	}
}

// NewTransport builds the transport named by provider, which must already be
// normalized by ProviderFromEnv.
func NewTransport(provider string, mixpanelHost string, ids *identity.Resolver) Transport {
	switch provider {
	case "none":
		return NewNoop(ids)
	case "mixpanel":
		return NewMixpanel(mixpanelHost, ids)
	default:
		return NewConsole(ids)
	}
}
