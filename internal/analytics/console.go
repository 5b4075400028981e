package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"mixpanel-logger/internal/identity"
)

type ConsoleTransport struct {
	ids *identity.Resolver
}

func NewConsole(ids *identity.Resolver) *ConsoleTransport {
	if ids == nil {
		ids = identity.NewResolver(nil)
	}
	return &ConsoleTransport{ids: ids}
}

func (t *ConsoleTransport) Send(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.Name) == "" {
		return nil
	}

	props := ""
	if len(event.Properties) > 0 {
		encoded, err := json.Marshal(event.Properties)
		if err != nil {
			return err
		}
		props = string(encoded)
	}

	slog.Info("analytics event",
		"name", event.Name,
		"distinct_id", t.Identifier(ctx, event.SharedContainerIdentifier),
		"token_set", event.ProjectToken != "",
		"properties", props,
	)
	return nil
}

func (t *ConsoleTransport) Identifier(ctx context.Context, sharedContainerIdentifier string) string {
	return t.ids.Resolve(ctx, sharedContainerIdentifier)
}
