package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/configstore"
	"github.com/Ramsey-B/trellis/pkg/jobs"
	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/oauth"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

var (
	// ErrIncomplete is returned when a connect request leaves required keys empty.
	ErrIncomplete = errors.New("connector configuration is incomplete")
	// ErrForeignKey is returned when a connect request carries a key of another connector.
	ErrForeignKey = errors.New("key does not belong to connector")
)

// APIKeyConnector describes a connector configured with static credentials.
type APIKeyConnector struct {
	Connector    models.ConnectorType
	Sensitive    []keys.Key
	NonSensitive []keys.Key
	Required     []keys.Key
	// AnyOf needs at least one non-empty value, e.g. a password or a private key.
	AnyOf []keys.Key
	// ExternalIDKey names the value used as installation external id. The tenant id is used
	// when it is empty.
	ExternalIDKey             keys.Key
	MetadataKeys              []keys.Key
	UpdateMetadataOnReinstall bool
	BackfillOnInstall         bool
}

// Keys lists every key of the connector.
func (c APIKeyConnector) Keys() []keys.Key {
	return append(append([]keys.Key{}, c.Sensitive...), c.NonSensitive...)
}

// IsComplete reports whether config holds every required value.
func (c APIKeyConnector) IsComplete(config map[string]string) bool {
	for _, key := range c.Required {
		if strings.TrimSpace(config[key.String()]) == "" {
			return false
		}
	}
	if len(c.AnyOf) == 0 {
		return true
	}
	return len(ectolinq.Filter(c.AnyOf, func(key keys.Key) bool {
		return strings.TrimSpace(config[key.String()]) != ""
	})) > 0
}

// APIKeyFlow connects and disconnects one API-key connector.
type APIKeyFlow struct {
	connector APIKeyConnector
	store     configstore.Store
	installer oauth.Installer
	jobs      jobs.Enqueuer
	logger    ectologger.Logger
}

func NewAPIKeyFlow(connector APIKeyConnector, store configstore.Store, installer oauth.Installer, enqueuer jobs.Enqueuer, logger ectologger.Logger) *APIKeyFlow {
	return &APIKeyFlow{
		connector: connector,
		store:     store,
		installer: installer,
		jobs:      enqueuer,
		logger:    logger,
	}
}

func (f *APIKeyFlow) Connector() APIKeyConnector {
	return f.connector
}

// Connect saves values, merged over what is already stored, and installs the connector once the
// configuration is complete. Nothing is written when the merged configuration is incomplete.
func (f *APIKeyFlow) Connect(ctx context.Context, tenantID string, values map[string]string) (*models.ConnectorInstallation, error) {
	ctx, span := tracing.StartSpan(ctx, "APIKey.Connect")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, f.connector.Connector.String())

	owned := f.connector.Keys()
	for name := range values {
		if !ectolinq.Contains(owned, keys.Key(name)) {
			return nil, fmt.Errorf("%w: %s", ErrForeignKey, name)
		}
	}

	merged, err := f.current(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for name, value := range values {
		merged[name] = strings.TrimSpace(value)
	}
	if !f.connector.IsComplete(merged) {
		return nil, ErrIncomplete
	}

	for name, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			// An empty value clears an optional key.
			if _, err := f.store.Delete(ctx, tenantID, keys.Key(name)); err != nil {
				tracing.RecordError(span, err, "failed to clear connector config")
				return nil, fmt.Errorf("failed to clear %s: %w", name, err)
			}
			continue
		}
		ok, err := f.store.Save(ctx, tenantID, keys.Key(name), value)
		if err != nil {
			tracing.RecordError(span, err, "failed to save connector config")
			return nil, fmt.Errorf("failed to save %s: %w", name, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", oauth.ErrSaveFailed, name)
		}
	}

	externalID := tenantID
	if f.connector.ExternalIDKey != "" {
		externalID = merged[f.connector.ExternalIDKey.String()]
	}
	metadata := models.Metadata{}
	for _, key := range f.connector.MetadataKeys {
		if value := merged[key.String()]; value != "" {
			metadata[key.String()] = value
		}
	}

	installation := f.installer.InstallConnector(ctx, models.InstallParams{
		TenantID:                 tenantID,
		Type:                     f.connector.Connector,
		ExternalID:               externalID,
		Metadata:                 metadata,
		UpdateMetadataOnExisting: f.connector.UpdateMetadataOnReinstall,
	})

	if f.connector.BackfillOnInstall && f.jobs != nil {
		if err := f.jobs.EnqueueBackfill(ctx, tenantID, f.connector.Connector); err != nil {
			f.logger.WithContext(ctx).WithError(err).WithField("connector", f.connector.Connector).Warn("failed to enqueue backfill after connect")
		}
	}

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"connector":   f.connector.Connector,
		"external_id": externalID,
	}).Info("connector configured")
	return installation, nil
}

// Disconnect deletes every key of the connector and soft-uninstalls it.
func (f *APIKeyFlow) Disconnect(ctx context.Context, tenantID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "APIKey.Disconnect")
	defer span.End()

	for _, key := range f.connector.Keys() {
		if _, err := f.store.Delete(ctx, tenantID, key); err != nil {
			return false, fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return f.installer.UninstallConnector(ctx, tenantID, f.connector.Connector), nil
}

// Status reports CONNECTED when the configuration is complete.
func (f *APIKeyFlow) Status(ctx context.Context, tenantID string) (*oauth.StatusReport, error) {
	config, err := f.current(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	report := &oauth.StatusReport{
		Connector:    f.connector.Connector,
		State:        oauth.StateNotConnected,
		Installation: f.installer.Active(ctx, tenantID, f.connector.Connector),
	}
	if f.connector.IsComplete(config) {
		report.State = oauth.StateConnected
		if report.Installation != nil && report.Installation.Status == models.InstallationError {
			report.State = oauth.StateReconnectRequired
		}
	}
	return report, nil
}

func (f *APIKeyFlow) current(ctx context.Context, tenantID string) (map[string]string, error) {
	config := make(map[string]string)
	for _, key := range f.connector.Keys() {
		value, err := f.store.Get(ctx, tenantID, key)
		if err != nil {
			return nil, err
		}
		if value != nil {
			config[key.String()] = *value
		}
	}
	return config, nil
}
