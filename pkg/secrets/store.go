// Package secrets stores sensitive tenant configuration as encrypted scy secrets on afs storage.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/viant/afs"
	_ "github.com/viant/afs/mem"
	"github.com/viant/afs/url"
	"github.com/viant/scy"
	_ "github.com/viant/scy/kms/blowfish"

	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// DefaultKey is the scy key used when none is configured.
const DefaultKey = "blowfish://default"

// ErrInvalidSegment is returned when a tenant id or key cannot be used as a storage path segment.
var ErrInvalidSegment = errors.New("invalid secret path segment")

type entry struct {
	Value string `json:"value"`
}

var entryType = reflect.TypeOf(&entry{})

// Config locates the secret store.
type Config struct {
	// BaseURL is any afs URL, e.g. mem://localhost/trellis or file:///var/lib/trellis/secrets.
	BaseURL string
	// Key is the scy encryption key URL.
	Key string
}

// Store keeps one encrypted secret per (tenant, key) at <base>/<tenant>/<key>.
type Store struct {
	service *scy.Service
	fs      afs.Service
	baseURL string
	key     string
	logger  ectologger.Logger
}

func NewStore(cfg Config, logger ectologger.Logger) *Store {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		service: scy.New(),
		fs:      afs.New(),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     key,
		logger:  logger,
	}
}

func (s *Store) location(tenantID string, key keys.Key) (string, error) {
	if err := checkSegment(tenantID); err != nil {
		return "", err
	}
	if err := checkSegment(key.String()); err != nil {
		return "", err
	}
	return url.Join(s.baseURL, tenantID, key.String()), nil
}

func checkSegment(segment string) error {
	if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, "/\\?#") {
		return fmt.Errorf("%w: %q", ErrInvalidSegment, segment)
	}
	return nil
}

func (s *Store) resource(location string) *scy.Resource {
	return scy.NewResource(entryType, location, s.key)
}

// Get returns the decrypted value, or nil when the secret does not exist.
func (s *Store) Get(ctx context.Context, tenantID string, key keys.Key) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "SecretStore.Get")
	defer span.End()

	location, err := s.location(tenantID, key)
	if err != nil {
		return nil, err
	}

	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		metrics.ConfigStoreOperations.WithLabelValues("secret", "get", "error").Inc()
		return nil, fmt.Errorf("failed to check secret %s: %w", key, err)
	}
	if !exists {
		metrics.ConfigStoreOperations.WithLabelValues("secret", "get", "miss").Inc()
		return nil, nil
	}

	secret, err := s.service.Load(ctx, s.resource(location))
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"key":       key,
		}).Error("failed to load secret")
		metrics.ConfigStoreOperations.WithLabelValues("secret", "get", "error").Inc()
		return nil, fmt.Errorf("failed to load secret %s: %w", key, err)
	}

	value, ok := secret.Target.(*entry)
	if !ok || value == nil {
		return nil, fmt.Errorf("secret %s has unexpected type %T", key, secret.Target)
	}

	metrics.ConfigStoreOperations.WithLabelValues("secret", "get", "hit").Inc()
	return &value.Value, nil
}

// Save encrypts and writes value, replacing any previous value.
func (s *Store) Save(ctx context.Context, tenantID string, key keys.Key, value string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "SecretStore.Save")
	defer span.End()

	location, err := s.location(tenantID, key)
	if err != nil {
		return false, err
	}

	secret := scy.NewSecret(&entry{Value: value}, s.resource(location))
	if err := s.service.Store(ctx, secret); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"key":       key,
		}).Error("failed to store secret")
		metrics.ConfigStoreOperations.WithLabelValues("secret", "save", "error").Inc()
		return false, fmt.Errorf("failed to store secret %s: %w", key, err)
	}

	metrics.ConfigStoreOperations.WithLabelValues("secret", "save", "ok").Inc()
	return true, nil
}

// Delete removes the secret. A missing secret counts as deleted.
func (s *Store) Delete(ctx context.Context, tenantID string, key keys.Key) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "SecretStore.Delete")
	defer span.End()

	location, err := s.location(tenantID, key)
	if err != nil {
		return false, err
	}

	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return false, fmt.Errorf("failed to check secret %s: %w", key, err)
	}
	if !exists {
		return true, nil
	}

	if err := s.fs.Delete(ctx, location); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"key":       key,
		}).Error("failed to delete secret")
		metrics.ConfigStoreOperations.WithLabelValues("secret", "delete", "error").Inc()
		return false, fmt.Errorf("failed to delete secret %s: %w", key, err)
	}

	metrics.ConfigStoreOperations.WithLabelValues("secret", "delete", "ok").Inc()
	return true, nil
}

// GetAll returns every catalogued secret stored for the tenant. Files that do not name a known
// key are skipped.
func (s *Store) GetAll(ctx context.Context, tenantID string) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "SecretStore.GetAll")
	defer span.End()

	if err := checkSegment(tenantID); err != nil {
		return nil, err
	}
	dir := url.Join(s.baseURL, tenantID)

	result := map[string]string{}
	exists, err := s.fs.Exists(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to check secrets for tenant: %w", err)
	}
	if !exists {
		return result, nil
	}

	objects, err := s.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets for tenant: %w", err)
	}

	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		key := keys.Key(object.Name())
		if !keys.Known(key) {
			s.logger.WithContext(ctx).WithField("name", object.Name()).Warn("skipping unrecognised secret")
			continue
		}
		value, err := s.Get(ctx, tenantID, key)
		if err != nil {
			return nil, err
		}
		if value != nil {
			result[key.String()] = *value
		}
	}

	return result, nil
}
