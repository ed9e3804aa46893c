// Package configstore routes tenant configuration reads and writes to the secret store or the
// relational store depending on key sensitivity.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/repositories"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// ErrUnknownKey is returned for keys outside the catalogue.
var ErrUnknownKey = errors.New("unknown configuration key")

// TokenRefresher hands out an access token that is valid now, refreshing it when needed.
type TokenRefresher interface {
	GetValidAccessToken(ctx context.Context, tenantID string) (*string, error)
}

// Store is the unified config API used by connectors and handlers.
type Store interface {
	Get(ctx context.Context, tenantID string, key keys.Key) (*string, error)
	Save(ctx context.Context, tenantID string, key keys.Key, value string) (bool, error)
	Delete(ctx context.Context, tenantID string, key keys.Key) (bool, error)
	GetAll(ctx context.Context, tenantID string) (map[string]string, error)
}

// Router implements Store over a secret backend and a relational backend.
type Router struct {
	secrets    repositories.ConfigBackend
	relational repositories.ConfigBackend
	logger     ectologger.Logger

	mu         sync.RWMutex
	refreshers map[keys.Key]TokenRefresher
}

func NewRouter(secrets repositories.ConfigBackend, relational repositories.ConfigBackend, logger ectologger.Logger) *Router {
	return &Router{
		secrets:    secrets,
		relational: relational,
		logger:     logger,
		refreshers: map[keys.Key]TokenRefresher{},
	}
}

// RegisterRefresher makes GetAll return a fresh token for accessTokenKey.
func (r *Router) RegisterRefresher(accessTokenKey keys.Key, refresher TokenRefresher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshers[accessTokenKey] = refresher
}

func (r *Router) backendFor(key keys.Key) (repositories.ConfigBackend, error) {
	sensitivity, ok := keys.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if sensitivity == keys.Sensitive {
		return r.secrets, nil
	}
	return r.relational, nil
}

func (r *Router) Get(ctx context.Context, tenantID string, key keys.Key) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "ConfigRouter.Get")
	defer span.End()

	backend, err := r.backendFor(key)
	if err != nil {
		return nil, err
	}
	return backend.Get(ctx, tenantID, key)
}

func (r *Router) Save(ctx context.Context, tenantID string, key keys.Key, value string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ConfigRouter.Save")
	defer span.End()

	backend, err := r.backendFor(key)
	if err != nil {
		return false, err
	}
	return backend.Save(ctx, tenantID, key, value)
}

func (r *Router) Delete(ctx context.Context, tenantID string, key keys.Key) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ConfigRouter.Delete")
	defer span.End()

	backend, err := r.backendFor(key)
	if err != nil {
		return false, err
	}
	return backend.Delete(ctx, tenantID, key)
}

// GetAll merges both backends, secret values winning on collision, then swaps in fresh access
// tokens for connectors with a registered refresher. Refresh failures keep the stored value.
func (r *Router) GetAll(ctx context.Context, tenantID string) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "ConfigRouter.GetAll")
	defer span.End()

	var secretValues, relationalValues map[string]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		secretValues, err = r.secrets.GetAll(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		relationalValues, err = r.relational.GetAll(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		tracing.RecordError(span, err, "failed to load tenant config")
		return nil, err
	}

	merged := make(map[string]string, len(secretValues)+len(relationalValues))
	for k, v := range relationalValues {
		merged[k] = v
	}
	for k, v := range secretValues {
		merged[k] = v
	}

	r.mu.RLock()
	refreshers := make(map[keys.Key]TokenRefresher, len(r.refreshers))
	for k, v := range r.refreshers {
		refreshers[k] = v
	}
	r.mu.RUnlock()

	for key, refresher := range refreshers {
		if _, ok := merged[key.String()]; !ok {
			continue
		}
		token, err := refresher.GetValidAccessToken(ctx, tenantID)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"tenant_id": tenantID,
				"key":       key,
			}).Warn("failed to refresh access token, returning stored value")
			continue
		}
		if token != nil && *token != "" {
			merged[key.String()] = *token
		}
	}

	return merged, nil
}
