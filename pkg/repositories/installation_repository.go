package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

const installationsTable = "connector_installations"

var installationStruct = database.NewStruct(new(models.ConnectorInstallation))

var installationColumns = []string{
	"id", "tenant_id", "type", "external_id", "external_metadata", "status", "created_at", "updated_at",
}

// InstallationRepository handles connector_installations rows.
type InstallationRepository struct {
	*Repository
}

func NewInstallationRepository(db database.DB, logger ectologger.Logger) *InstallationRepository {
	return &InstallationRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByID returns the installation or a 404 error.
func (r *InstallationRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ConnectorInstallation, error) {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.GetByID")
	defer span.End()

	sb := installationStruct.SelectFrom(installationsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	installation, err := r.getOne(ctx, sb)
	if err != nil {
		return nil, err
	}
	if installation == nil {
		return nil, NotFound("connector installation %s does not exist", id)
	}
	return installation, nil
}

// GetByTenant lists every installation of a tenant, newest first, disconnected rows included.
func (r *InstallationRepository) GetByTenant(ctx context.Context, tenantID string) ([]models.ConnectorInstallation, error) {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.GetByTenant")
	defer span.End()

	sb := installationStruct.SelectFrom(installationsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	installations := []models.ConnectorInstallation{}
	if err := r.DB().SelectContext(ctx, &installations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list connector installations")
		return nil, Internal("failed to list connector installations")
	}
	return installations, nil
}

// GetByTenantAndType returns the active installation: the newest row that is not disconnected.
func (r *InstallationRepository) GetByTenantAndType(ctx context.Context, tenantID string, connector models.ConnectorType) (*models.ConnectorInstallation, error) {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.GetByTenantAndType")
	defer span.End()

	sb := installationStruct.SelectFrom(installationsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("type", connector),
		sb.NotEqual("status", models.InstallationDisconnected),
	)
	sb.OrderBy("created_at DESC", "id DESC").Limit(1)

	return r.getOne(ctx, sb)
}

// GetDisconnectedByTenantAndType returns the newest disconnected installation.
func (r *InstallationRepository) GetDisconnectedByTenantAndType(ctx context.Context, tenantID string, connector models.ConnectorType) (*models.ConnectorInstallation, error) {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.GetDisconnectedByTenantAndType")
	defer span.End()

	sb := installationStruct.SelectFrom(installationsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("type", connector),
		sb.Equal("status", models.InstallationDisconnected),
	)
	sb.OrderBy("updated_at DESC", "id DESC").Limit(1)

	return r.getOne(ctx, sb)
}

// GetByTenantTypeAndExternalID looks up the row behind the unique triple.
func (r *InstallationRepository) GetByTenantTypeAndExternalID(ctx context.Context, tenantID string, connector models.ConnectorType, externalID string) (*models.ConnectorInstallation, error) {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.GetByTenantTypeAndExternalID")
	defer span.End()

	sb := installationStruct.SelectFrom(installationsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("type", connector),
		sb.Equal("external_id", externalID),
	)

	return r.getOne(ctx, sb)
}

// Create inserts a new installation.
func (r *InstallationRepository) Create(ctx context.Context, installation *models.ConnectorInstallation) error {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.Create")
	defer span.End()

	if installation.ID == uuid.Nil {
		installation.ID = uuid.New()
	}
	if installation.Status == "" {
		installation.Status = models.InstallationActive
	}
	if installation.ExternalMetadata.Data == nil {
		installation.ExternalMetadata.Data = models.Metadata{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(installationsTable).
		Cols(installationColumns...).
		Values(installation.ID, installation.TenantID, installation.Type, installation.ExternalID,
			installation.ExternalMetadata, installation.Status, database.Now(), database.Now()).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&installation.CreatedAt, &installation.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": installation.TenantID,
			"connector": installation.Type,
		}).Error("failed to create connector installation")
		return Internal("failed to create connector installation")
	}
	return nil
}

// Upsert inserts the installation or, when (tenant_id, type, external_id) exists, refreshes its
// status and, only if overwriteMetadata is set, its metadata. One statement, so concurrent
// callbacks for the same account cannot create duplicates.
func (r *InstallationRepository) Upsert(ctx context.Context, installation *models.ConnectorInstallation, overwriteMetadata bool) error {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.Upsert")
	defer span.End()

	if installation.ID == uuid.Nil {
		installation.ID = uuid.New()
	}
	if installation.ExternalMetadata.Data == nil {
		installation.ExternalMetadata.Data = models.Metadata{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(installationsTable).
		Cols(installationColumns...).
		Values(installation.ID, installation.TenantID, installation.Type, installation.ExternalID,
			installation.ExternalMetadata, installation.Status, database.Now(), database.Now())

	ub := ib.OnConflict("tenant_id", "type", "external_id")
	assignments := []string{
		ub.Assign("status", database.Excluded("status")),
		ub.Assign("updated_at", database.Now()),
	}
	if overwriteMetadata {
		assignments = append(assignments, ub.Assign("external_metadata", database.Excluded("external_metadata")))
	}
	ub.Set(assignments...)
	ib.Returning(installationColumns...)

	query, args := ib.Build()
	if err := r.DB().QueryRowxContext(ctx, query, args...).StructScan(installation); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   installation.TenantID,
			"connector":   installation.Type,
			"external_id": installation.ExternalID,
		}).Error("failed to upsert connector installation")
		return Internal("failed to upsert connector installation")
	}
	return nil
}

// UpdateStatus sets the status of one installation.
func (r *InstallationRepository) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status models.InstallationStatus) error {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(installationsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	return r.execUpdate(ctx, ub, id, "update connector installation status")
}

// UpdateMetadata replaces the metadata of one installation.
func (r *InstallationRepository) UpdateMetadata(ctx context.Context, tenantID string, id uuid.UUID, metadata models.Metadata) error {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.UpdateMetadata")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(installationsTable).
		Set(
			ub.Assign("external_metadata", database.NewJSONB(metadata)),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	return r.execUpdate(ctx, ub, id, "update connector installation metadata")
}

// MarkDisconnected soft-disconnects one installation.
func (r *InstallationRepository) MarkDisconnected(ctx context.Context, tenantID string, id uuid.UUID) error {
	return r.UpdateStatus(ctx, tenantID, id, models.InstallationDisconnected)
}

// Delete hard-deletes one installation.
func (r *InstallationRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "InstallationRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(installationsTable)
	db.Where(db.Equal("tenant_id", tenantID), db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("installation_id", id).Error("failed to delete connector installation")
		return Internal("failed to delete connector installation")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NotFound("connector installation %s does not exist", id)
	}
	return nil
}

func (r *InstallationRepository) getOne(ctx context.Context, sb *database.SelectBuilder) (*models.ConnectorInstallation, error) {
	query, args := sb.Build()
	var installation models.ConnectorInstallation
	err := r.DB().GetContext(ctx, &installation, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get connector installation")
		return nil, Internal("failed to get connector installation")
	}
	return &installation, nil
}

func (r *InstallationRepository) execUpdate(ctx context.Context, ub *database.UpdateBuilder, id uuid.UUID, action string) error {
	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("installation_id", id).Errorf("failed to %s", action)
		return Internal("failed to " + action)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NotFound("connector installation %s does not exist", id)
	}
	return nil
}
