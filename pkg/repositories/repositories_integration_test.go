package repositories_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/repositories"
)

var migrateOnce sync.Once

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// getTestDB connects to the database named by the DB_* variables and applies the migrations once.
func getTestDB(t *testing.T) database.DB {
	t.Helper()

	dbName := envOr("DB_NAME", "trellis")
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("DB_HOST", "localhost"), envOr("DB_PORT", "5432"), envOr("DB_USER_NAME", "user"),
		envOr("DB_PASSWORD", "password"), dbName)
	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	db := database.NewDatabaseInstance(conn, getTestLogger())
	migrateOnce.Do(func() {
		migrations := database.NewMigrationService(getTestLogger(), &database.MigrationConfig{
			MigrationFolderPath: "../../db/pg",
			AutoRollback:        true,
		})
		require.NoError(t, migrations.Migrate(dbName, db))
	})
	t.Cleanup(func() { _ = conn.Close() })
	return db
}

func newTenant() string {
	return "tenant-" + uuid.NewString()
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestTenantConfigRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	repo := repositories.NewTenantConfigRepository(getTestDB(t), getTestLogger())
	tenantID := newTenant()

	value, err := repo.Get(ctx, tenantID, keys.CompanyName)
	require.NoError(t, err)
	assert.Nil(t, value)

	ok, err := repo.Save(ctx, tenantID, keys.CompanyName, "acme")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Save(ctx, tenantID, keys.CompanyName, "acme-corp")
	require.NoError(t, err)
	assert.True(t, ok, "saving an existing key overwrites it")

	value, err = repo.Get(ctx, tenantID, keys.CompanyName)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "acme-corp", *value)

	other, err := repo.GetAll(ctx, newTenant())
	require.NoError(t, err)
	assert.Empty(t, other)

	all, err := repo.GetAll(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{keys.CompanyName.String(): "acme-corp"}, all)

	ok, err = repo.Delete(ctx, tenantID, keys.CompanyName)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(ctx, tenantID, keys.CompanyName)
	require.NoError(t, err)
	assert.True(t, ok, "deleting a missing key succeeds")

	_, err = repo.Get(ctx, "", keys.CompanyName)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestInstallationRepository_UpsertAndDisconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	repo := repositories.NewInstallationRepository(getTestDB(t), getTestLogger())
	tenantID := newTenant()

	first := &models.ConnectorInstallation{
		TenantID:         tenantID,
		Type:             models.ConnectorSlack,
		ExternalID:       "T123",
		ExternalMetadata: models.NewMetadata(models.Metadata{"team": "acme"}),
		Status:           models.InstallationActive,
	}
	require.NoError(t, repo.Upsert(ctx, first, false))
	assert.NotEqual(t, uuid.Nil, first.ID)

	again := &models.ConnectorInstallation{
		TenantID:         tenantID,
		Type:             models.ConnectorSlack,
		ExternalID:       "T123",
		ExternalMetadata: models.NewMetadata(models.Metadata{"team": "renamed"}),
		Status:           models.InstallationActive,
	}
	require.NoError(t, repo.Upsert(ctx, again, false))
	assert.Equal(t, first.ID, again.ID, "the unique triple maps to one row")
	assert.Equal(t, "acme", again.ExternalMetadata.Data["team"], "metadata is kept unless overwrite is requested")

	require.NoError(t, repo.Upsert(ctx, again, true))
	assert.Equal(t, "renamed", again.ExternalMetadata.Data["team"])

	active, err := repo.GetByTenantAndType(ctx, tenantID, models.ConnectorSlack)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, repo.MarkDisconnected(ctx, tenantID, first.ID))

	active, err = repo.GetByTenantAndType(ctx, tenantID, models.ConnectorSlack)
	require.NoError(t, err)
	assert.Nil(t, active)

	disconnected, err := repo.GetDisconnectedByTenantAndType(ctx, tenantID, models.ConnectorSlack)
	require.NoError(t, err)
	require.NotNil(t, disconnected)
	assert.Equal(t, models.InstallationDisconnected, disconnected.Status)

	all, err := repo.GetByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, all, 1, "disconnect keeps the row")

	_, err = repo.GetByID(ctx, newTenant(), first.ID)
	assertNotFound(t, err)

	assertNotFound(t, repo.UpdateStatus(ctx, tenantID, uuid.New(), models.InstallationError))
}

func TestCustomDataRepository_DeletionTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db := getTestDB(t)
	repo := repositories.NewCustomDataRepository(db, getTestLogger())
	tenantID := newTenant()

	dataType := &models.CustomDataType{
		TenantID:     tenantID,
		DisplayName:  "Support Tickets",
		Slug:         "support-tickets",
		CustomFields: database.NewJSONB(models.CustomFields{Version: 1}),
		State:        models.CustomDataEnabled,
	}
	require.NoError(t, repo.Insert(ctx, dataType))

	duplicate := *dataType
	duplicate.ID = uuid.Nil
	assert.ErrorIs(t, repo.Insert(ctx, &duplicate), repositories.ErrConflict)

	for i := 0; i < 5; i++ {
		_, err := db.ExecContext(ctx, `INSERT INTO documents (id, tenant_id, source, source_type) VALUES ($1, $2, $3, $4)`,
			fmt.Sprintf("doc-%02d", i), tenantID, models.CustomDataSource, dataType.Slug)
		require.NoError(t, err)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO documents (id, tenant_id, source, source_type) VALUES ($1, $2, $3, $4)`,
		"other-doc", tenantID, models.CustomDataSource, "other-type")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO ingest_artifact (tenant_id, entity, entity_id) VALUES ($1, $2, $3), ($1, $2, $4)`,
		tenantID, models.CustomDataArtifactEntity, dataType.Slug+"/doc-00", "support-tickets-archive/doc-00")
	require.NoError(t, err)

	txCtx, tx, err := repo.BeginDeletion(ctx)
	require.NoError(t, err)

	locked, err := tx.GetForUpdate(txCtx, tenantID, dataType.ID)
	require.NoError(t, err)
	require.NotNil(t, locked)

	page, err := tx.NextDocumentPage(txCtx, tenantID, dataType.Slug, "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-00", "doc-01", "doc-02"}, page)

	next, err := tx.NextDocumentPage(txCtx, tenantID, dataType.Slug, page[len(page)-1], 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-03", "doc-04"}, next)

	deleted, err := tx.DeleteDocuments(txCtx, tenantID, append(page, next...))
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	artifacts, err := tx.DeleteArtifacts(txCtx, tenantID, dataType.Slug)
	require.NoError(t, err)
	assert.Equal(t, 1, artifacts, "only entity ids under the slug prefix are removed")

	require.NoError(t, tx.SoftDelete(txCtx, tenantID, dataType.ID))
	require.NoError(t, tx.Commit(txCtx))

	live, err := repo.GetByID(ctx, tenantID, dataType.ID)
	require.NoError(t, err)
	assert.Nil(t, live)

	reactivatable, err := repo.GetDeletedBySlug(ctx, tenantID, dataType.Slug)
	require.NoError(t, err)
	require.NotNil(t, reactivatable)
	assert.Equal(t, dataType.ID, reactivatable.ID)

	var remaining int
	require.NoError(t, db.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM documents WHERE tenant_id = $1`, tenantID))
	assert.Equal(t, 1, remaining)
}

func TestCustomDataRepository_RollbackKeepsData(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db := getTestDB(t)
	repo := repositories.NewCustomDataRepository(db, getTestLogger())
	tenantID := newTenant()

	dataType := &models.CustomDataType{
		TenantID:     tenantID,
		DisplayName:  "Leads",
		Slug:         "leads",
		CustomFields: database.NewJSONB(models.CustomFields{Version: 1}),
		State:        models.CustomDataEnabled,
	}
	require.NoError(t, repo.Insert(ctx, dataType))

	txCtx, tx, err := repo.BeginDeletion(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SoftDelete(txCtx, tenantID, dataType.ID))
	require.NoError(t, tx.Rollback(txCtx))

	live, err := repo.GetByID(ctx, tenantID, dataType.ID)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, models.CustomDataEnabled, live.State)
}
