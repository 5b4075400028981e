package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultNamespace is used when no shared container identifier is configured.
const DefaultNamespace = "default"

var ErrNotFound = errors.New("distinct identifier not found")

// Store persists one distinct identifier per namespace. Processes that share
// a namespace (an app and its extensions) share the identifier.
type Store interface {
	Get(ctx context.Context, namespace string) (string, error)
	// PutIfAbsent stores id unless the namespace already has one, and
	// returns whichever identifier is stored afterwards.
	PutIfAbsent(ctx context.Context, namespace string, id string) (string, error)
}

// DefaultRetryInterval is how long a process-local fallback identifier is
// served before the store is tried again.
const DefaultRetryInterval = 30 * time.Second

// Resolver hands out stable distinct identifiers backed by a Store.
type Resolver struct {
	store Store
	group singleflight.Group

	// retryInterval and now are fields so tests can drive the fallback clock.
	retryInterval time.Duration
	now           func() time.Time

	mu       sync.Mutex
	cached   map[string]string
	fallback map[string]fallbackID
}

type fallbackID struct {
	id      string
	retryAt time.Time
}

func NewResolver(store Store) *Resolver {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Resolver{
		store:         store,
		retryInterval: DefaultRetryInterval,
		now:           time.Now,
		cached:        map[string]string{},
		fallback:      map[string]fallbackID{},
	}
}

func NormalizeNamespace(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// Resolve never returns an empty string.
//
// When the store fails, a process-local identifier is returned instead and
// the store is tried again once the retry interval has passed. The retry
// offers the fallback to PutIfAbsent, so a store that recovers before any
// other process wrote keeps the identifier this process already used. If
// another process got there first, its identifier wins from then on.
//
// Store calls for one namespace are collapsed into a single flight and do
// not hold up other namespaces.
func (r *Resolver) Resolve(ctx context.Context, namespace string) string {
	ns := NormalizeNamespace(namespace)

	r.mu.Lock()
	if id, ok := r.cached[ns]; ok {
		r.mu.Unlock()
		return id
	}
	fb, hasFallback := r.fallback[ns]
	if hasFallback && r.now().Before(fb.retryAt) {
		r.mu.Unlock()
		return fb.id
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(ns, func() (any, error) {
		candidate := fb.id
		if !hasFallback {
			candidate = NewID()
		}

		id, err := r.load(ctx, ns, candidate)

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			slog.Warn("distinct identifier store unavailable; using process-local id", "namespace", ns, "error", err)
			r.fallback[ns] = fallbackID{id: candidate, retryAt: r.now().Add(r.retryInterval)}
			return candidate, nil
		}
		if hasFallback && id != candidate {
			slog.Warn("distinct identifier store recovered with a different id", "namespace", ns)
		}
		delete(r.fallback, ns)
		r.cached[ns] = id
		return id, nil
	})
	return v.(string)
}

func (r *Resolver) load(ctx context.Context, ns string, candidate string) (string, error) {
	id, err := r.store.Get(ctx, ns)
	if err == nil && strings.TrimSpace(id) != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	stored, err := r.store.PutIfAbsent(ctx, ns, candidate)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(stored) == "" {
		return "", errors.New("store returned empty distinct identifier")
	}
	return stored, nil
}

// Forget drops the cached identifier so the next Resolve reads the store again.
func (r *Resolver) Forget(namespace string) {
	ns := NormalizeNamespace(namespace)
	r.mu.Lock()
	delete(r.cached, ns)
	delete(r.fallback, ns)
	r.mu.Unlock()
}

func NewID() string {
	return uuid.NewString()
}
