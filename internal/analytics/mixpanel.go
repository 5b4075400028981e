package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mixpanel-logger/internal/identity"
)

const DefaultMixpanelHost = "https://api.mixpanel.com"

// MixpanelTransport posts each event to the Mixpanel ingestion API as a
// single-element batch.
type MixpanelTransport struct {
	host   string
	client *http.Client
	ids    *identity.Resolver
	now    func() time.Time
}

func NewMixpanel(host string, ids *identity.Resolver) *MixpanelTransport {
	base := strings.TrimRight(strings.TrimSpace(host), "/")
	if base == "" {
		base = DefaultMixpanelHost
	}
	if ids == nil {
		ids = identity.NewResolver(nil)
	}

	client := &http.Client{
		Timeout:   3 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &MixpanelTransport{
		host:   base,
		client: client,
		ids:    ids,
		now:    time.Now,
	}
}

type mixpanelEvent struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
}

type mixpanelResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

func (t *MixpanelTransport) Send(ctx context.Context, event Event) error {
	token := strings.TrimSpace(event.ProjectToken)
	if token == "" {
		slog.Debug("mixpanel project token not set; dropping event", "event", event.Name)
		return nil
	}
	if strings.TrimSpace(event.Name) == "" {
		return nil
	}

	body, err := json.Marshal([]mixpanelEvent{{
		Event:      event.Name,
		Properties: t.properties(ctx, token, event),
	}})
	if err != nil {
		return fmt.Errorf("encode mixpanel event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.host+"/track?verbose=1", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mixpanel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("call mixpanel: %w", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mixpanel status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var result mixpanelResponse
	if err := json.Unmarshal(b, &result); err != nil {
		return fmt.Errorf("decode mixpanel response: %w", err)
	}
	if result.Status != 1 {
		return fmt.Errorf("mixpanel rejected event %q: %s", event.Name, result.Error)
	}

	return nil
}

// properties copies the event's properties and fills in the fields Mixpanel
// needs for attribution. token always comes from configuration.
func (t *MixpanelTransport) properties(ctx context.Context, token string, event Event) map[string]any {
	props := make(map[string]any, len(event.Properties)+4)
	for k, v := range event.Properties {
		props[k] = v
	}

	props["token"] = token
	if _, ok := props["distinct_id"]; !ok {
		props["distinct_id"] = t.Identifier(ctx, event.SharedContainerIdentifier)
	}
	if _, ok := props["time"]; !ok {
		props["time"] = t.now().UnixMilli()
	}
	if _, ok := props["$insert_id"]; !ok {
		props["$insert_id"] = uuid.NewString()
	}
	return props
}

func (t *MixpanelTransport) Identifier(ctx context.Context, sharedContainerIdentifier string) string {
	return t.ids.Resolve(ctx, sharedContainerIdentifier)
}
