package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

const tenantConfigsTable = "tenant_configs"

var tenantConfigStruct = database.NewStruct(new(models.TenantConfig))

// TenantConfigRepository stores non-sensitive configuration, one row per (tenant_id, key).
type TenantConfigRepository struct {
	*Repository
}

func NewTenantConfigRepository(db database.DB, logger ectologger.Logger) *TenantConfigRepository {
	return &TenantConfigRepository{
		Repository: NewRepository(db, logger),
	}
}

// Get returns the stored value or nil.
func (r *TenantConfigRepository) Get(ctx context.Context, tenantID string, key keys.Key) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantConfigRepository.Get")
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("value").From(tenantConfigsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("key", key.String()))

	query, args := sb.Build()
	var value string
	err := r.DB().GetContext(ctx, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ConfigStoreOperations.WithLabelValues("relational", "get", "miss").Inc()
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"key":       key,
		}).Error("failed to get tenant config")
		metrics.ConfigStoreOperations.WithLabelValues("relational", "get", "error").Inc()
		return nil, Internal("failed to get tenant config")
	}

	metrics.ConfigStoreOperations.WithLabelValues("relational", "get", "hit").Inc()
	return &value, nil
}

// Save upserts the value.
func (r *TenantConfigRepository) Save(ctx context.Context, tenantID string, key keys.Key, value string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantConfigRepository.Save")
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return false, err
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tenantConfigsTable).
		Cols("tenant_id", "key", "value", "created_at", "updated_at").
		Values(tenantID, key.String(), value, database.Now(), database.Now())
	ub := ib.OnConflict("tenant_id", "key")
	ub.Set(
		ub.Assign("value", database.Excluded("value")),
		ub.Assign("updated_at", database.Now()),
	)

	query, args := ib.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"key":       key,
		}).Error("failed to save tenant config")
		metrics.ConfigStoreOperations.WithLabelValues("relational", "save", "error").Inc()
		return false, Internal("failed to save tenant config")
	}

	metrics.ConfigStoreOperations.WithLabelValues("relational", "save", "ok").Inc()
	return true, nil
}

// Delete removes the row. Deleting a missing row succeeds.
func (r *TenantConfigRepository) Delete(ctx context.Context, tenantID string, key keys.Key) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantConfigRepository.Delete")
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return false, err
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(tenantConfigsTable)
	db.Where(db.Equal("tenant_id", tenantID), db.Equal("key", key.String()))

	query, args := db.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"key":       key,
		}).Error("failed to delete tenant config")
		metrics.ConfigStoreOperations.WithLabelValues("relational", "delete", "error").Inc()
		return false, Internal("failed to delete tenant config")
	}

	metrics.ConfigStoreOperations.WithLabelValues("relational", "delete", "ok").Inc()
	return true, nil
}

// GetAll returns every row of the tenant as a key/value map.
func (r *TenantConfigRepository) GetAll(ctx context.Context, tenantID string) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "TenantConfigRepository.GetAll")
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	sb := tenantConfigStruct.SelectFrom(tenantConfigsTable)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("key")

	query, args := sb.Build()
	var rows []models.TenantConfig
	if err := r.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("failed to list tenant config")
		metrics.ConfigStoreOperations.WithLabelValues("relational", "get_all", "error").Inc()
		return nil, Internal("failed to list tenant config")
	}

	result := make(map[string]string, len(rows))
	for _, row := range rows {
		result[row.Key] = row.Value
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"config_count": len(result),
	}).Debugf("Listed %s", tenantConfigsTable)
	metrics.ConfigStoreOperations.WithLabelValues("relational", "get_all", "ok").Inc()
	return result, nil
}
