package customdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/repositories"
)

// fakeRepo keeps types and documents in memory. A deletion transaction buffers its changes until
// Commit.
type fakeRepo struct {
	types     map[uuid.UUID]*models.CustomDataType
	docs      map[string][]string
	artifacts map[string]int
	events    []string

	failArtifacts bool
	failCommit    bool
	lastTx        *fakeTx
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		types:     map[uuid.UUID]*models.CustomDataType{},
		docs:      map[string][]string{},
		artifacts: map[string]int{},
	}
}

func (r *fakeRepo) add(tenantID, slug string, state models.CustomDataState, docs int) *models.CustomDataType {
	t := &models.CustomDataType{ID: uuid.New(), TenantID: tenantID, DisplayName: slug, Slug: slug, State: state}
	r.types[t.ID] = t
	for i := 0; i < docs; i++ {
		r.docs[slug] = append(r.docs[slug], fmt.Sprintf("doc-%05d", i))
	}
	r.artifacts[slug] = docs
	return t
}

func (r *fakeRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*models.CustomDataType, error) {
	t, ok := r.types[id]
	if !ok || t.TenantID != tenantID || t.State == models.CustomDataDeleted {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r *fakeRepo) GetDeletedBySlug(_ context.Context, tenantID string, slug string) (*models.CustomDataType, error) {
	for _, t := range r.types {
		if t.TenantID == tenantID && t.Slug == slug && t.State == models.CustomDataDeleted {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) List(_ context.Context, tenantID string) ([]models.CustomDataType, error) {
	var out []models.CustomDataType
	for _, t := range r.types {
		if t.TenantID == tenantID && t.State != models.CustomDataDeleted {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeRepo) conflicts(t *models.CustomDataType) bool {
	for _, other := range r.types {
		if other.ID != t.ID && other.TenantID == t.TenantID && other.Slug == t.Slug && other.State != models.CustomDataDeleted {
			return true
		}
	}
	return false
}

func (r *fakeRepo) Insert(_ context.Context, t *models.CustomDataType) error {
	if r.conflicts(t) {
		return repositories.ErrConflict
	}
	t.ID = uuid.New()
	c := *t
	r.types[t.ID] = &c
	return nil
}

func (r *fakeRepo) Update(_ context.Context, t *models.CustomDataType) error {
	if r.conflicts(t) {
		return repositories.ErrConflict
	}
	c := *t
	r.types[t.ID] = &c
	return nil
}

func (r *fakeRepo) BeginDeletion(ctx context.Context) (context.Context, repositories.DeletionTx, error) {
	r.lastTx = &fakeTx{repo: r, deleted: map[string]bool{}}
	return ctx, r.lastTx, nil
}

type fakeTx struct {
	repo        *fakeRepo
	deleted     map[string]bool
	artifacts   string
	softDeleted *uuid.UUID
	pages       []int
	committed   bool
	rolledBack  bool
}

func (tx *fakeTx) GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*models.CustomDataType, error) {
	return tx.repo.GetByID(ctx, tenantID, id)
}

func (tx *fakeTx) NextDocumentPage(_ context.Context, _ string, slug string, afterID string, limit int) ([]string, error) {
	ids := append([]string{}, tx.repo.docs[slug]...)
	sort.Strings(ids)
	var page []string
	for _, id := range ids {
		if id > afterID && !tx.deleted[id] {
			page = append(page, id)
		}
		if len(page) == limit {
			break
		}
	}
	tx.pages = append(tx.pages, len(page))
	return page, nil
}

func (tx *fakeTx) DeleteDocuments(_ context.Context, _ string, ids []string) (int, error) {
	for _, id := range ids {
		tx.deleted[id] = true
	}
	return len(ids), nil
}

func (tx *fakeTx) DeleteArtifacts(_ context.Context, _ string, slug string) (int, error) {
	if tx.repo.failArtifacts {
		return 0, errors.New("artifacts table locked")
	}
	tx.artifacts = slug
	return tx.repo.artifacts[slug], nil
}

func (tx *fakeTx) SoftDelete(_ context.Context, _ string, id uuid.UUID) error {
	tx.softDeleted = &id
	return nil
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.repo.failCommit {
		return errors.New("serialization failure")
	}
	tx.committed = true
	tx.repo.events = append(tx.repo.events, "commit")
	if tx.softDeleted != nil {
		t := tx.repo.types[*tx.softDeleted]
		t.State = models.CustomDataDeleted
		var kept []string
		for _, id := range tx.repo.docs[t.Slug] {
			if !tx.deleted[id] {
				kept = append(kept, id)
			}
		}
		tx.repo.docs[t.Slug] = kept
		delete(tx.repo.artifacts, tx.artifacts)
	}
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueDeleteDocuments(ctx context.Context, tenantID string, ids []string) error {
	args := m.Called(ctx, tenantID, ids)
	return args.Error(0)
}

func (m *mockEnqueuer) EnqueueBackfill(ctx context.Context, tenantID string, connector models.ConnectorType) error {
	args := m.Called(ctx, tenantID, connector)
	return args.Error(0)
}

func newService(repo *fakeRepo, enqueuer *mockEnqueuer) *Service {
	return NewService(repo, enqueuer, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
}

func TestDeleteCustomDataTypeWithData(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	target := repo.add("t1", "meeting-notes", models.CustomDataEnabled, 2500)
	repo.add("t1", "other", models.CustomDataEnabled, 3)

	enqueuer := &mockEnqueuer{}
	var batches [][]string
	enqueuer.On("EnqueueDeleteDocuments", mock.Anything, "t1", mock.Anything).
		Run(func(args mock.Arguments) {
			repo.events = append(repo.events, "enqueue")
			batches = append(batches, args.Get(2).([]string))
		}).
		Return(nil)

	result, err := newService(repo, enqueuer).DeleteCustomDataTypeWithData(ctx, "t1", target.ID)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2500, result.DeletedDocuments)
	assert.Equal(t, 2500, result.DeletedArtifacts)
	assert.Equal(t, 5, result.EnqueuedJobs)
	assert.Zero(t, result.FailedJobs)
	assert.True(t, result.SearchIndexDeleteTriggered)

	assert.Equal(t, []int{1000, 1000, 500}, repo.lastTx.pages, "keyset pages stop at the first short page")
	assert.Equal(t, "commit", repo.events[0], "jobs are only enqueued after the commit")
	assert.Len(t, repo.events, 6)

	seen := map[string]bool{}
	for _, batch := range batches {
		assert.LessOrEqual(t, len(batch), IndexDeleteBatchSize)
		for _, id := range batch {
			assert.False(t, seen[id], "%s enqueued twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 2500)

	assert.Equal(t, models.CustomDataDeleted, repo.types[target.ID].State)
	assert.Empty(t, repo.docs["meeting-notes"])
	assert.Len(t, repo.docs["other"], 3, "documents of other types are untouched")
	assert.False(t, repo.lastTx.rolledBack)
}

func TestDeleteCustomDataTypeWithData_NoDocuments(t *testing.T) {
	repo := newFakeRepo()
	target := repo.add("t1", "empty", models.CustomDataEnabled, 0)
	enqueuer := &mockEnqueuer{}

	result, err := newService(repo, enqueuer).DeleteCustomDataTypeWithData(context.Background(), "t1", target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeleteResult{}, *result)
	assert.Equal(t, models.CustomDataDeleted, repo.types[target.ID].State)
	enqueuer.AssertNotCalled(t, "EnqueueDeleteDocuments", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteCustomDataTypeWithData_Missing(t *testing.T) {
	repo := newFakeRepo()
	deleted := repo.add("t1", "gone", models.CustomDataDeleted, 0)
	foreign := repo.add("t2", "theirs", models.CustomDataEnabled, 2)
	enqueuer := &mockEnqueuer{}
	svc := newService(repo, enqueuer)

	for _, id := range []uuid.UUID{uuid.New(), deleted.ID, foreign.ID} {
		result, err := svc.DeleteCustomDataTypeWithData(context.Background(), "t1", id)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.True(t, repo.lastTx.rolledBack)

		_, err = svc.Delete(context.Background(), "t1", id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Len(t, repo.docs["theirs"], 2)
	enqueuer.AssertNotCalled(t, "EnqueueDeleteDocuments", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteCustomDataTypeWithData_RollsBackOnFailure(t *testing.T) {
	repo := newFakeRepo()
	target := repo.add("t1", "notes", models.CustomDataEnabled, 40)
	repo.failArtifacts = true
	enqueuer := &mockEnqueuer{}

	result, err := newService(repo, enqueuer).DeleteCustomDataTypeWithData(context.Background(), "t1", target.ID)
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, repo.lastTx.rolledBack)
	assert.Len(t, repo.docs["notes"], 40)
	assert.Equal(t, models.CustomDataEnabled, repo.types[target.ID].State)
	enqueuer.AssertNotCalled(t, "EnqueueDeleteDocuments", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteCustomDataTypeWithData_CommitFailure(t *testing.T) {
	repo := newFakeRepo()
	target := repo.add("t1", "notes", models.CustomDataEnabled, 10)
	repo.failCommit = true
	enqueuer := &mockEnqueuer{}

	_, err := newService(repo, enqueuer).DeleteCustomDataTypeWithData(context.Background(), "t1", target.ID)
	assert.Error(t, err)
	assert.Len(t, repo.docs["notes"], 10)
	enqueuer.AssertNotCalled(t, "EnqueueDeleteDocuments", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteCustomDataTypeWithData_EnqueueFailureIsBestEffort(t *testing.T) {
	repo := newFakeRepo()
	target := repo.add("t1", "notes", models.CustomDataEnabled, 1200)
	enqueuer := &mockEnqueuer{}
	enqueuer.On("EnqueueDeleteDocuments", mock.Anything, "t1", mock.MatchedBy(func(ids []string) bool {
		return ids[0] == "doc-00500"
	})).Return(errors.New("broker unavailable")).Once()
	enqueuer.On("EnqueueDeleteDocuments", mock.Anything, "t1", mock.Anything).Return(nil)

	result, err := newService(repo, enqueuer).DeleteCustomDataTypeWithData(context.Background(), "t1", target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200, result.DeletedDocuments)
	assert.Equal(t, 2, result.EnqueuedJobs)
	assert.Equal(t, 1, result.FailedJobs)
	assert.Equal(t, models.CustomDataDeleted, repo.types[target.ID].State)
	enqueuer.AssertNumberOfCalls(t, "EnqueueDeleteDocuments", 3)
}

func TestDeleteCustomDataTypeWithData_SmallPages(t *testing.T) {
	repo := newFakeRepo()
	target := repo.add("t1", "notes", models.CustomDataEnabled, 9)
	enqueuer := &mockEnqueuer{}
	enqueuer.On("EnqueueDeleteDocuments", mock.Anything, "t1", mock.Anything).Return(nil)

	svc := newService(repo, enqueuer)
	svc.pageSize = 3
	svc.batchSize = 4

	result, err := svc.DeleteCustomDataTypeWithData(context.Background(), "t1", target.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, result.DeletedDocuments)
	assert.Equal(t, []int{3, 3, 3, 0}, repo.lastTx.pages, "a full last page needs one more empty page")
	assert.Equal(t, 3, result.EnqueuedJobs)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts a new type", func(t *testing.T) {
		repo := newFakeRepo()
		created, err := newService(repo, &mockEnqueuer{}).Create(ctx, "t1", models.CreateCustomDataTypeRequest{
			DisplayName: "Sales Calls",
			Fields:      []models.CustomField{{Name: "duration", Type: "number"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "sales-calls", created.Slug)
		assert.Equal(t, models.CustomDataEnabled, created.State)
		assert.Equal(t, 1, created.CustomFields.Data.Version)
		assert.NotEqual(t, uuid.Nil, created.ID)
	})

	t.Run("reactivates a deleted type with the same slug", func(t *testing.T) {
		repo := newFakeRepo()
		old := repo.add("t1", "sales-calls", models.CustomDataDeleted, 0)

		created, err := newService(repo, &mockEnqueuer{}).Create(ctx, "t1", models.CreateCustomDataTypeRequest{DisplayName: "Sales  calls"})
		require.NoError(t, err)
		assert.Equal(t, old.ID, created.ID)
		assert.Equal(t, "Sales  calls", created.DisplayName)
		assert.Equal(t, models.CustomDataEnabled, repo.types[old.ID].State)
		assert.NotNil(t, created.CustomFields.Data.Fields)
		assert.Len(t, repo.types, 1)
	})

	t.Run("rejects a duplicate slug", func(t *testing.T) {
		repo := newFakeRepo()
		repo.add("t1", "sales-calls", models.CustomDataEnabled, 0)

		_, err := newService(repo, &mockEnqueuer{}).Create(ctx, "t1", models.CreateCustomDataTypeRequest{DisplayName: "Sales Calls!"})
		assert.ErrorIs(t, err, ErrDuplicateSlug)
	})

	t.Run("same slug in another tenant", func(t *testing.T) {
		repo := newFakeRepo()
		repo.add("t2", "sales-calls", models.CustomDataEnabled, 0)

		_, err := newService(repo, &mockEnqueuer{}).Create(ctx, "t1", models.CreateCustomDataTypeRequest{DisplayName: "Sales Calls"})
		assert.NoError(t, err)
	})

	t.Run("invalid display name", func(t *testing.T) {
		_, err := newService(newFakeRepo(), &mockEnqueuer{}).Create(ctx, "t1", models.CreateCustomDataTypeRequest{DisplayName: "***"})
		assert.ErrorIs(t, err, ErrInvalidDisplayName)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	target := repo.add("t1", "notes", models.CustomDataEnabled, 0)
	repo.add("t1", "call-logs", models.CustomDataEnabled, 0)
	svc := newService(repo, &mockEnqueuer{})

	name := "Meeting Notes"
	disabled := models.CustomDataDisabled
	updated, err := svc.Update(ctx, "t1", target.ID, models.UpdateCustomDataTypeRequest{
		DisplayName: &name,
		State:       &disabled,
		Fields:      []models.CustomField{{Name: "attendees", Type: "text"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "meeting-notes", updated.Slug)
	assert.Equal(t, models.CustomDataDisabled, updated.State)
	assert.Equal(t, 1, updated.CustomFields.Data.Version)

	clash := "Call Logs"
	_, err = svc.Update(ctx, "t1", target.ID, models.UpdateCustomDataTypeRequest{DisplayName: &clash})
	assert.ErrorIs(t, err, ErrDuplicateSlug)

	_, err = svc.Update(ctx, "t1", uuid.New(), models.UpdateCustomDataTypeRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}
