// Package installations keeps connector installation bookkeeping. Its operations never fail the
// caller: errors are logged and reported through return values only.
package installations

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/repositories"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

type Installer struct {
	repo   repositories.InstallationRepo
	logger ectologger.Logger
}

func NewInstaller(repo repositories.InstallationRepo, logger ectologger.Logger) *Installer {
	return &Installer{repo: repo, logger: logger}
}

// InstallConnector upserts the installation for (tenant, type, external id). The status is always
// refreshed; metadata of an existing row is replaced only when UpdateMetadataOnExisting is set.
// Returns nil when the write failed.
func (i *Installer) InstallConnector(ctx context.Context, params models.InstallParams) *models.ConnectorInstallation {
	ctx, span := tracing.StartSpan(ctx, "Installer.InstallConnector")
	defer span.End()
	tracing.TenantAttributes(span, params.TenantID, params.Type.String())

	status := params.Status
	if status == "" {
		status = models.InstallationActive
	}
	metadata := params.Metadata
	if metadata == nil {
		metadata = models.Metadata{}
	}

	installation := &models.ConnectorInstallation{
		TenantID:         params.TenantID,
		Type:             params.Type,
		ExternalID:       params.ExternalID,
		ExternalMetadata: models.NewMetadata(metadata),
		Status:           status,
	}

	if err := i.repo.Upsert(ctx, installation, params.UpdateMetadataOnExisting); err != nil {
		i.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   params.TenantID,
			"connector":   params.Type,
			"external_id": params.ExternalID,
		}).Error("failed to install connector")
		metrics.InstallationOperationsTotal.WithLabelValues(params.Type.String(), "install", "error").Inc()
		return nil
	}

	i.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":       params.TenantID,
		"connector":       params.Type,
		"installation_id": installation.ID,
		"status":          installation.Status,
	}).Info("connector installed")
	metrics.InstallationOperationsTotal.WithLabelValues(params.Type.String(), "install", "ok").Inc()
	return installation
}

// UninstallConnector marks the active installation disconnected. Returns false when there was no
// active installation or the update failed.
func (i *Installer) UninstallConnector(ctx context.Context, tenantID string, connector models.ConnectorType) bool {
	ctx, span := tracing.StartSpan(ctx, "Installer.UninstallConnector")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, connector.String())

	logger := i.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"connector": connector,
	})

	installation, err := i.repo.GetByTenantAndType(ctx, tenantID, connector)
	if err != nil {
		logger.WithError(err).Error("failed to look up connector installation")
		metrics.InstallationOperationsTotal.WithLabelValues(connector.String(), "uninstall", "error").Inc()
		return false
	}
	if installation == nil {
		logger.Debug("no active installation to uninstall")
		metrics.InstallationOperationsTotal.WithLabelValues(connector.String(), "uninstall", "missing").Inc()
		return false
	}

	if err := i.repo.MarkDisconnected(ctx, tenantID, installation.ID); err != nil {
		logger.WithError(err).Error("failed to mark connector installation disconnected")
		metrics.InstallationOperationsTotal.WithLabelValues(connector.String(), "uninstall", "error").Inc()
		return false
	}

	logger.WithField("installation_id", installation.ID).Info("connector uninstalled")
	metrics.InstallationOperationsTotal.WithLabelValues(connector.String(), "uninstall", "ok").Inc()
	return true
}

// MarkError flags the active installation as needing attention, e.g. after a refresh token was
// revoked. Returns false when nothing was updated.
func (i *Installer) MarkError(ctx context.Context, tenantID string, connector models.ConnectorType) bool {
	ctx, span := tracing.StartSpan(ctx, "Installer.MarkError")
	defer span.End()

	installation, err := i.repo.GetByTenantAndType(ctx, tenantID, connector)
	if err != nil || installation == nil {
		if err != nil {
			i.logger.WithContext(ctx).WithError(err).WithField("connector", connector).Error("failed to look up connector installation")
		}
		return false
	}
	if installation.Status == models.InstallationError {
		return true
	}

	if err := i.repo.UpdateStatus(ctx, tenantID, installation.ID, models.InstallationError); err != nil {
		i.logger.WithContext(ctx).WithError(err).WithField("installation_id", installation.ID).Error("failed to mark connector installation as error")
		return false
	}
	metrics.InstallationOperationsTotal.WithLabelValues(connector.String(), "mark_error", "ok").Inc()
	return true
}

// RecoverMetadata returns the metadata of the newest disconnected installation, used to pre-fill
// a reconnect. Returns nil when there is none.
func (i *Installer) RecoverMetadata(ctx context.Context, tenantID string, connector models.ConnectorType) models.Metadata {
	ctx, span := tracing.StartSpan(ctx, "Installer.RecoverMetadata")
	defer span.End()

	installation, err := i.repo.GetDisconnectedByTenantAndType(ctx, tenantID, connector)
	if err != nil {
		i.logger.WithContext(ctx).WithError(err).WithField("connector", connector).Warn("failed to look up disconnected installation")
		return nil
	}
	if installation == nil {
		return nil
	}
	return installation.ExternalMetadata.Data
}

// Active returns the active installation or nil.
func (i *Installer) Active(ctx context.Context, tenantID string, connector models.ConnectorType) *models.ConnectorInstallation {
	installation, err := i.repo.GetByTenantAndType(ctx, tenantID, connector)
	if err != nil {
		i.logger.WithContext(ctx).WithError(err).WithField("connector", connector).Warn("failed to look up connector installation")
		return nil
	}
	return installation
}

// List returns every installation of the tenant.
func (i *Installer) List(ctx context.Context, tenantID string) ([]models.ConnectorInstallation, error) {
	return i.repo.GetByTenant(ctx, tenantID)
}
