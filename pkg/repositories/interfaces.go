package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/keys"
	"github.com/Ramsey-B/trellis/pkg/models"
)

// ConfigBackend is one of the two stores behind the config router.
type ConfigBackend interface {
	Get(ctx context.Context, tenantID string, key keys.Key) (*string, error)
	Save(ctx context.Context, tenantID string, key keys.Key, value string) (bool, error)
	Delete(ctx context.Context, tenantID string, key keys.Key) (bool, error)
	GetAll(ctx context.Context, tenantID string) (map[string]string, error)
}

// InstallationRepo defines the interface for connector installation persistence
type InstallationRepo interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ConnectorInstallation, error)
	GetByTenant(ctx context.Context, tenantID string) ([]models.ConnectorInstallation, error)
	GetByTenantAndType(ctx context.Context, tenantID string, connector models.ConnectorType) (*models.ConnectorInstallation, error)
	GetDisconnectedByTenantAndType(ctx context.Context, tenantID string, connector models.ConnectorType) (*models.ConnectorInstallation, error)
	GetByTenantTypeAndExternalID(ctx context.Context, tenantID string, connector models.ConnectorType, externalID string) (*models.ConnectorInstallation, error)
	Create(ctx context.Context, installation *models.ConnectorInstallation) error
	Upsert(ctx context.Context, installation *models.ConnectorInstallation, overwriteMetadata bool) error
	UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status models.InstallationStatus) error
	UpdateMetadata(ctx context.Context, tenantID string, id uuid.UUID, metadata models.Metadata) error
	MarkDisconnected(ctx context.Context, tenantID string, id uuid.UUID) error
	Delete(ctx context.Context, tenantID string, id uuid.UUID) error
}

// CustomDataRepo defines the interface for custom data type persistence
type CustomDataRepo interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.CustomDataType, error)
	GetDeletedBySlug(ctx context.Context, tenantID string, slug string) (*models.CustomDataType, error)
	List(ctx context.Context, tenantID string) ([]models.CustomDataType, error)
	Insert(ctx context.Context, t *models.CustomDataType) error
	Update(ctx context.Context, t *models.CustomDataType) error
	BeginDeletion(ctx context.Context) (context.Context, DeletionTx, error)
}

// DeletionTx is an open transaction for deleting a custom data type with its documents.
type DeletionTx interface {
	GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*models.CustomDataType, error)
	NextDocumentPage(ctx context.Context, tenantID string, slug string, afterID string, limit int) ([]string, error)
	DeleteDocuments(ctx context.Context, tenantID string, ids []string) (int, error)
	DeleteArtifacts(ctx context.Context, tenantID string, slug string) (int, error)
	SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

var (
	_ ConfigBackend    = (*TenantConfigRepository)(nil)
	_ InstallationRepo = (*InstallationRepository)(nil)
	_ CustomDataRepo   = (*CustomDataRepository)(nil)
	_ DeletionTx       = (*CustomDataDeletionTx)(nil)
)
