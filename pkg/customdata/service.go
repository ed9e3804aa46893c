// Package customdata manages tenant-defined custom data types and the documents filed under them.
package customdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/jobs"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/repositories"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

var (
	ErrInvalidDisplayName = errors.New("INVALID_DISPLAY_NAME")
	ErrDuplicateSlug      = errors.New("DUPLICATE_SLUG")
	ErrNotFound           = errors.New("custom data type not found")
)

const (
	// DocumentPageSize bounds how many document ids one deletion holds per round trip.
	DocumentPageSize = 1000
	// IndexDeleteBatchSize is the number of document ids per index-delete job.
	IndexDeleteBatchSize = 500
)

type Service struct {
	repo      repositories.CustomDataRepo
	jobs      jobs.Enqueuer
	logger    ectologger.Logger
	pageSize  int
	batchSize int
}

func NewService(repo repositories.CustomDataRepo, enqueuer jobs.Enqueuer, logger ectologger.Logger) *Service {
	return &Service{
		repo:      repo,
		jobs:      enqueuer,
		logger:    logger,
		pageSize:  DocumentPageSize,
		batchSize: IndexDeleteBatchSize,
	}
}

// Create adds a type. A previously deleted type with the same slug is brought back instead,
// keeping its id.
func (s *Service) Create(ctx context.Context, tenantID string, req models.CreateCustomDataTypeRequest) (*models.CustomDataType, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomData.Create")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, "")

	slug, err := GenerateSlug(req.DisplayName)
	if err != nil {
		return nil, err
	}

	deleted, err := s.repo.GetDeletedBySlug(ctx, tenantID, slug)
	if err != nil {
		return nil, err
	}
	if deleted != nil {
		deleted.DisplayName = req.DisplayName
		deleted.Description = req.Description
		deleted.CustomFields = database.NewJSONB(models.CustomFields{
			Fields:  nonNil(req.Fields),
			Version: deleted.CustomFields.Data.Version + 1,
		})
		deleted.State = models.CustomDataEnabled
		if err := s.repo.Update(ctx, deleted); err != nil {
			return nil, conflictError(err, slug)
		}
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id": tenantID,
			"id":        deleted.ID,
			"slug":      slug,
		}).Info("custom data type reactivated")
		return deleted, nil
	}

	t := &models.CustomDataType{
		TenantID:     tenantID,
		DisplayName:  req.DisplayName,
		Slug:         slug,
		Description:  req.Description,
		CustomFields: database.NewJSONB(models.CustomFields{Fields: nonNil(req.Fields), Version: 1}),
		State:        models.CustomDataEnabled,
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, conflictError(err, slug)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"id":        t.ID,
		"slug":      slug,
	}).Info("custom data type created")
	return t, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.CustomDataType, error) {
	t, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]models.CustomDataType, error) {
	return s.repo.List(ctx, tenantID)
}

// Update applies the non-nil fields of req. Renaming re-derives the slug.
func (s *Service) Update(ctx context.Context, tenantID string, id uuid.UUID, req models.UpdateCustomDataTypeRequest) (*models.CustomDataType, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomData.Update")
	defer span.End()

	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil && *req.DisplayName != t.DisplayName {
		slug, err := GenerateSlug(*req.DisplayName)
		if err != nil {
			return nil, err
		}
		t.DisplayName = *req.DisplayName
		t.Slug = slug
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.Fields != nil {
		t.CustomFields = database.NewJSONB(models.CustomFields{
			Fields:  req.Fields,
			Version: t.CustomFields.Data.Version + 1,
		})
	}
	if req.State != nil {
		t.State = *req.State
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, conflictError(err, t.Slug)
	}
	return t, nil
}

// Delete removes the type with all of its data. Returns ErrNotFound for a missing or already
// deleted type.
func (s *Service) Delete(ctx context.Context, tenantID string, id uuid.UUID) (*models.DeleteResult, error) {
	result, err := s.DeleteCustomDataTypeWithData(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNotFound
	}
	return result, nil
}

// DeleteCustomDataTypeWithData deletes the documents and ingest artifacts of a type and
// soft-deletes it, all in one transaction. Index-delete jobs are enqueued only after the commit,
// in batches; a failed batch is logged and skipped. Returns nil, nil when the type does not exist.
func (s *Service) DeleteCustomDataTypeWithData(ctx context.Context, tenantID string, id uuid.UUID) (*models.DeleteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomData.DeleteWithData")
	defer span.End()
	tracing.TenantAttributes(span, tenantID, "")
	logger := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"id":        id,
	})

	txCtx, tx, err := s.repo.BeginDeletion(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(txCtx); err != nil {
			logger.WithError(err).Error("failed to roll back custom data deletion")
		}
	}()

	fail := func(err error, msg string) (*models.DeleteResult, error) {
		tracing.RecordError(span, err, msg)
		metrics.CustomDataDeletionsTotal.WithLabelValues("error").Inc()
		logger.WithError(err).Error(msg)
		return nil, err
	}

	t, err := tx.GetForUpdate(txCtx, tenantID, id)
	if err != nil {
		return fail(err, "failed to load custom data type")
	}
	if t == nil {
		metrics.CustomDataDeletionsTotal.WithLabelValues("not_found").Inc()
		return nil, nil
	}

	result := &models.DeleteResult{}
	var deletedIDs []string
	after := ""
	for {
		page, err := tx.NextDocumentPage(txCtx, tenantID, t.Slug, after, s.pageSize)
		if err != nil {
			return fail(err, "failed to page custom data documents")
		}
		if len(page) == 0 {
			break
		}

		n, err := tx.DeleteDocuments(txCtx, tenantID, page)
		if err != nil {
			return fail(err, "failed to delete custom data documents")
		}
		result.DeletedDocuments += n
		deletedIDs = append(deletedIDs, page...)
		after = page[len(page)-1]

		if len(page) < s.pageSize {
			break
		}
	}

	artifacts, err := tx.DeleteArtifacts(txCtx, tenantID, t.Slug)
	if err != nil {
		return fail(err, "failed to delete custom data artifacts")
	}
	result.DeletedArtifacts = artifacts

	if err := tx.SoftDelete(txCtx, tenantID, t.ID); err != nil {
		return fail(err, "failed to soft delete custom data type")
	}
	if err := tx.Commit(txCtx); err != nil {
		return fail(err, "failed to commit custom data deletion")
	}
	committed = true

	metrics.CustomDataDeletionsTotal.WithLabelValues("ok").Inc()
	metrics.CustomDataDocumentsDeleted.Add(float64(result.DeletedDocuments))

	for start := 0; start < len(deletedIDs); start += s.batchSize {
		end := min(start+s.batchSize, len(deletedIDs))
		if err := s.jobs.EnqueueDeleteDocuments(ctx, tenantID, deletedIDs[start:end]); err != nil {
			result.FailedJobs++
			logger.WithError(err).WithField("batch_start", start).Warn("failed to enqueue index delete batch")
			continue
		}
		result.EnqueuedJobs++
	}
	result.SearchIndexDeleteTriggered = result.EnqueuedJobs > 0

	logger.WithFields(map[string]any{
		"slug":      t.Slug,
		"documents": result.DeletedDocuments,
		"artifacts": result.DeletedArtifacts,
		"jobs":      result.EnqueuedJobs,
		"failed":    result.FailedJobs,
	}).Info("custom data type deleted")
	return result, nil
}

func conflictError(err error, slug string) error {
	if errors.Is(err, repositories.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrDuplicateSlug, slug)
	}
	return err
}

func nonNil(fields []models.CustomField) []models.CustomField {
	if fields == nil {
		return []models.CustomField{}
	}
	return fields
}
