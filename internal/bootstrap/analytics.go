package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mixpanel-logger/internal/analytics"
	"mixpanel-logger/internal/config"
	"mixpanel-logger/internal/errorreporting"
	"mixpanel-logger/internal/identity"
)

// Cleanup waits for in-flight events and then releases the identity store.
type Cleanup func(ctx context.Context) error

// BuildLogger wires the identity store, the analytics transport and the
// façade from cfg. The returned Cleanup is never nil.
func BuildLogger(ctx context.Context, cfg config.Config, reporter errorreporting.Reporter) (*analytics.Logger, Cleanup, error) {
	provider, err := analytics.ProviderFromEnv(cfg.AnalyticsProvider)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := identity.OpenStore(ctx, identity.StoreConfig{
		Kind:        cfg.IdentityStore,
		Dir:         cfg.IdentityDir,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
		S3: identity.S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	if provider == "mixpanel" && cfg.MixpanelProjectToken == "" {
		slog.Warn("MIXPANEL_PROJECT_TOKEN not set; events will be dropped until a token is configured")
	}

	transport := analytics.NewTransport(provider, cfg.MixpanelAPIHost, identity.NewResolver(store))

	var opts []analytics.Option
	if reporter != nil {
		opts = append(opts, analytics.WithErrorReporter(reporter))
	}

	logger := analytics.New(transport, analytics.Config{
		ProjectToken:              cfg.MixpanelProjectToken,
		SharedContainerIdentifier: cfg.SharedContainerIdentifier,
		DefaultProperties:         cfg.DefaultProperties,
	}, opts...)

	slog.Info("analytics logger initialized", "provider", provider, "identity_store", defaultString(cfg.IdentityStore, "memory"))

	// Deliveries still resolve distinct ids, so the store closes last.
	cleanup := func(ctx context.Context) error {
		var errs []error
		if err := logger.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush analytics events: %w", err))
		}
		if err := closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("close identity store: %w", err))
		}
		return errors.Join(errs...)
	}
	return logger, cleanup, nil
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
