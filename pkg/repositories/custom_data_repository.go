package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

const (
	customDataTypesTable = "custom_data_types"
	documentsTable       = "documents"
	ingestArtifactTable  = "ingest_artifact"
)

// ErrConflict is returned when a write violates a unique constraint.
var ErrConflict = errors.New("unique constraint violation")

var customDataTypeStruct = database.NewStruct(new(models.CustomDataType))

// CustomDataRepository handles custom_data_types and the documents that belong to them.
type CustomDataRepository struct {
	*Repository
}

func NewCustomDataRepository(db database.DB, logger ectologger.Logger) *CustomDataRepository {
	return &CustomDataRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByID returns a non-deleted type or nil.
func (r *CustomDataRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.CustomDataType, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomDataRepository.GetByID")
	defer span.End()

	sb := customDataTypeStruct.SelectFrom(customDataTypesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.NotEqual("state", models.CustomDataDeleted),
	)
	return getCustomDataType(ctx, r.DB(), r.logger, sb)
}

// GetDeletedBySlug returns the most recently deleted type with slug, or nil.
func (r *CustomDataRepository) GetDeletedBySlug(ctx context.Context, tenantID string, slug string) (*models.CustomDataType, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomDataRepository.GetDeletedBySlug")
	defer span.End()

	sb := customDataTypeStruct.SelectFrom(customDataTypesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("slug", slug),
		sb.Equal("state", models.CustomDataDeleted),
	)
	sb.OrderBy("updated_at DESC", "id DESC").Limit(1)
	return getCustomDataType(ctx, r.DB(), r.logger, sb)
}

// List returns the tenant's non-deleted types ordered by display name.
func (r *CustomDataRepository) List(ctx context.Context, tenantID string) ([]models.CustomDataType, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomDataRepository.List")
	defer span.End()

	sb := customDataTypeStruct.SelectFrom(customDataTypesTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.NotEqual("state", models.CustomDataDeleted))
	sb.OrderBy("display_name")

	query, args := sb.Build()
	types := []models.CustomDataType{}
	if err := r.DB().SelectContext(ctx, &types, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list custom data types")
		return nil, Internal("failed to list custom data types")
	}
	return types, nil
}

// Insert creates a type. Returns ErrConflict when the slug is taken.
func (r *CustomDataRepository) Insert(ctx context.Context, t *models.CustomDataType) error {
	ctx, span := tracing.StartSpan(ctx, "CustomDataRepository.Insert")
	defer span.End()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(customDataTypesTable).
		Cols("id", "tenant_id", "display_name", "slug", "description", "custom_fields", "state", "created_at", "updated_at").
		Values(t.ID, t.TenantID, t.DisplayName, t.Slug, t.Description, t.CustomFields, t.State, database.Now(), database.Now()).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&t.CreatedAt, &t.UpdatedAt)
	return r.writeError(ctx, err, t, "create")
}

// Update writes display name, slug, description, fields and state of an existing row. Reactivating
// a deleted row goes through here with state enabled.
func (r *CustomDataRepository) Update(ctx context.Context, t *models.CustomDataType) error {
	ctx, span := tracing.StartSpan(ctx, "CustomDataRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(customDataTypesTable).
		Set(
			ub.Assign("display_name", t.DisplayName),
			ub.Assign("slug", t.Slug),
			ub.Assign("description", t.Description),
			ub.Assign("custom_fields", t.CustomFields),
			ub.Assign("state", t.State),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("tenant_id", t.TenantID), ub.Equal("id", t.ID))
	ub.SQL("RETURNING created_at, updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("custom data type %s does not exist", t.ID)
	}
	return r.writeError(ctx, err, t, "update")
}

func (r *CustomDataRepository) writeError(ctx context.Context, err error, t *models.CustomDataType, action string) error {
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: slug %q", ErrConflict, t.Slug)
	}
	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"tenant_id": t.TenantID,
		"slug":      t.Slug,
	}).Errorf("failed to %s custom data type", action)
	return Internal(fmt.Sprintf("failed to %s custom data type", action))
}

// BeginDeletion opens a transaction on one pooled connection for a cascading type deletion.
func (r *CustomDataRepository) BeginDeletion(ctx context.Context) (context.Context, DeletionTx, error) {
	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return ctx, nil, Internal("failed to begin transaction")
	}
	return ctx, &CustomDataDeletionTx{tx: tx, logger: r.logger}, nil
}

// CustomDataDeletionTx runs the deletion statements inside one transaction.
type CustomDataDeletionTx struct {
	tx     database.Tx
	logger ectologger.Logger
}

// GetForUpdate locks and returns a non-deleted type, or nil.
func (d *CustomDataDeletionTx) GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*models.CustomDataType, error) {
	sb := customDataTypeStruct.SelectFrom(customDataTypesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
		sb.NotEqual("state", models.CustomDataDeleted),
	)
	sb.ForUpdate()
	return getCustomDataType(ctx, d.tx, d.logger, sb)
}

// NextDocumentPage returns up to limit document ids of the type with id greater than afterID.
func (d *CustomDataDeletionTx) NextDocumentPage(ctx context.Context, tenantID string, slug string, afterID string, limit int) ([]string, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id").From(documentsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("source", models.CustomDataSource),
		sb.Equal("source_type", slug),
	)
	if afterID != "" {
		sb.Where(sb.GreaterThan("id", afterID))
	}
	sb.OrderBy("id").Limit(limit)

	query, args := sb.Build()
	ids := []string{}
	if err := d.tx.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to page documents: %w", err)
	}
	return ids, nil
}

// DeleteDocuments removes the listed documents of the tenant.
func (d *CustomDataDeletionTx) DeleteDocuments(ctx context.Context, tenantID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(documentsTable)
	db.Where(db.Equal("tenant_id", tenantID), db.In("id", values...))

	query, args := db.Build()
	result, err := d.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// DeleteArtifacts removes ingest artifacts whose entity_id starts with "<slug>/".
func (d *CustomDataDeletionTx) DeleteArtifacts(ctx context.Context, tenantID string, slug string) (int, error) {
	pattern := database.EscapeLike(slug) + "/%"

	db := database.NewDeleteBuilder()
	db.DeleteFrom(ingestArtifactTable)
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Equal("entity", models.CustomDataArtifactEntity),
		fmt.Sprintf(`entity_id LIKE %s ESCAPE '\'`, db.Var(pattern)),
	)

	query, args := db.Build()
	result, err := d.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ingest artifacts: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// SoftDelete marks the type deleted.
func (d *CustomDataDeletionTx) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) error {
	ub := database.NewUpdateBuilder()
	ub.Update(customDataTypesTable).
		Set(
			ub.Assign("state", models.CustomDataDeleted),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := d.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to soft delete custom data type: %w", err)
	}
	return nil
}

func (d *CustomDataDeletionTx) Commit(ctx context.Context) error {
	return d.tx.Commit(ctx)
}

func (d *CustomDataDeletionTx) Rollback(ctx context.Context) error {
	return d.tx.Rollback(ctx)
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func getCustomDataType(ctx context.Context, q getter, logger ectologger.Logger, sb *database.SelectBuilder) (*models.CustomDataType, error) {
	query, args := sb.Build()
	var t models.CustomDataType
	err := q.GetContext(ctx, &t, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to get custom data type")
		return nil, Internal("failed to get custom data type")
	}
	return &t, nil
}
