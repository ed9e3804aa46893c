package installations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/trellis/pkg/installations"
	"github.com/Ramsey-B/trellis/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type mockInstallationRepo struct {
	mock.Mock
}

func (m *mockInstallationRepo) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.ConnectorInstallation, error) {
	args := m.Called(ctx, tenantID, id)
	inst, _ := args.Get(0).(*models.ConnectorInstallation)
	return inst, args.Error(1)
}

func (m *mockInstallationRepo) GetByTenant(ctx context.Context, tenantID string) ([]models.ConnectorInstallation, error) {
	args := m.Called(ctx, tenantID)
	list, _ := args.Get(0).([]models.ConnectorInstallation)
	return list, args.Error(1)
}

func (m *mockInstallationRepo) GetByTenantAndType(ctx context.Context, tenantID string, connector models.ConnectorType) (*models.ConnectorInstallation, error) {
	args := m.Called(ctx, tenantID, connector)
	inst, _ := args.Get(0).(*models.ConnectorInstallation)
	return inst, args.Error(1)
}

func (m *mockInstallationRepo) GetDisconnectedByTenantAndType(ctx context.Context, tenantID string, connector models.ConnectorType) (*models.ConnectorInstallation, error) {
	args := m.Called(ctx, tenantID, connector)
	inst, _ := args.Get(0).(*models.ConnectorInstallation)
	return inst, args.Error(1)
}

func (m *mockInstallationRepo) GetByTenantTypeAndExternalID(ctx context.Context, tenantID string, connector models.ConnectorType, externalID string) (*models.ConnectorInstallation, error) {
	args := m.Called(ctx, tenantID, connector, externalID)
	inst, _ := args.Get(0).(*models.ConnectorInstallation)
	return inst, args.Error(1)
}

func (m *mockInstallationRepo) Create(ctx context.Context, installation *models.ConnectorInstallation) error {
	return m.Called(ctx, installation).Error(0)
}

func (m *mockInstallationRepo) Upsert(ctx context.Context, installation *models.ConnectorInstallation, overwriteMetadata bool) error {
	return m.Called(ctx, installation, overwriteMetadata).Error(0)
}

func (m *mockInstallationRepo) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status models.InstallationStatus) error {
	return m.Called(ctx, tenantID, id, status).Error(0)
}

func (m *mockInstallationRepo) UpdateMetadata(ctx context.Context, tenantID string, id uuid.UUID, metadata models.Metadata) error {
	return m.Called(ctx, tenantID, id, metadata).Error(0)
}

func (m *mockInstallationRepo) MarkDisconnected(ctx context.Context, tenantID string, id uuid.UUID) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *mockInstallationRepo) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func TestInstallConnector_DefaultsToActive(t *testing.T) {
	ctx := context.Background()
	repo := &mockInstallationRepo{}
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(inst *models.ConnectorInstallation) bool {
		return inst.TenantID == "t1" &&
			inst.Type == models.ConnectorGitLab &&
			inst.ExternalID == "42" &&
			inst.Status == models.InstallationActive &&
			inst.ExternalMetadata.Data["username"] == "octo"
	}), false).Return(nil)

	installer := installations.NewInstaller(repo, getTestLogger())
	inst := installer.InstallConnector(ctx, models.InstallParams{
		TenantID:   "t1",
		Type:       models.ConnectorGitLab,
		ExternalID: "42",
		Metadata:   models.Metadata{"username": "octo"},
	})

	require.NotNil(t, inst)
	assert.Equal(t, models.InstallationActive, inst.Status)
	repo.AssertExpectations(t)
}

func TestInstallConnector_PassesMetadataOptIn(t *testing.T) {
	ctx := context.Background()
	repo := &mockInstallationRepo{}
	repo.On("Upsert", mock.Anything, mock.Anything, true).Return(nil)

	installer := installations.NewInstaller(repo, getTestLogger())
	inst := installer.InstallConnector(ctx, models.InstallParams{
		TenantID:                 "t1",
		Type:                     models.ConnectorSlack,
		ExternalID:               "T1",
		Status:                   models.InstallationPending,
		UpdateMetadataOnExisting: true,
	})

	require.NotNil(t, inst)
	assert.Equal(t, models.InstallationPending, inst.Status)
	repo.AssertExpectations(t)
}

func TestInstallConnector_SwallowsErrors(t *testing.T) {
	ctx := context.Background()
	repo := &mockInstallationRepo{}
	repo.On("Upsert", mock.Anything, mock.Anything, false).Return(errors.New("db down"))

	installer := installations.NewInstaller(repo, getTestLogger())
	assert.NotPanics(t, func() {
		inst := installer.InstallConnector(ctx, models.InstallParams{TenantID: "t1", Type: models.ConnectorSlack, ExternalID: "T1"})
		assert.Nil(t, inst)
	})
}

func TestUninstallConnector(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("marks active installation disconnected", func(t *testing.T) {
		repo := &mockInstallationRepo{}
		repo.On("GetByTenantAndType", mock.Anything, "t1", models.ConnectorAsana).
			Return(&models.ConnectorInstallation{ID: id, Status: models.InstallationActive}, nil)
		repo.On("MarkDisconnected", mock.Anything, "t1", id).Return(nil)

		installer := installations.NewInstaller(repo, getTestLogger())
		assert.True(t, installer.UninstallConnector(ctx, "t1", models.ConnectorAsana))
		repo.AssertExpectations(t)
	})

	t.Run("returns false when nothing is installed", func(t *testing.T) {
		repo := &mockInstallationRepo{}
		repo.On("GetByTenantAndType", mock.Anything, "t1", models.ConnectorAsana).Return(nil, nil)

		installer := installations.NewInstaller(repo, getTestLogger())
		assert.False(t, installer.UninstallConnector(ctx, "t1", models.ConnectorAsana))
		repo.AssertNotCalled(t, "MarkDisconnected", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns false when the update fails", func(t *testing.T) {
		repo := &mockInstallationRepo{}
		repo.On("GetByTenantAndType", mock.Anything, "t1", models.ConnectorAsana).
			Return(&models.ConnectorInstallation{ID: id}, nil)
		repo.On("MarkDisconnected", mock.Anything, "t1", id).Return(errors.New("db down"))

		installer := installations.NewInstaller(repo, getTestLogger())
		assert.False(t, installer.UninstallConnector(ctx, "t1", models.ConnectorAsana))
	})
}

func TestMarkError(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	repo := &mockInstallationRepo{}
	repo.On("GetByTenantAndType", mock.Anything, "t1", models.ConnectorGitLab).
		Return(&models.ConnectorInstallation{ID: id, Status: models.InstallationActive}, nil)
	repo.On("UpdateStatus", mock.Anything, "t1", id, models.InstallationError).Return(nil)

	installer := installations.NewInstaller(repo, getTestLogger())
	assert.True(t, installer.MarkError(ctx, "t1", models.ConnectorGitLab))
	repo.AssertExpectations(t)
}

func TestRecoverMetadata(t *testing.T) {
	ctx := context.Background()
	repo := &mockInstallationRepo{}
	repo.On("GetDisconnectedByTenantAndType", mock.Anything, "t1", models.ConnectorZendesk).
		Return(&models.ConnectorInstallation{
			Status:           models.InstallationDisconnected,
			ExternalMetadata: models.NewMetadata(models.Metadata{"subdomain": "acme"}),
		}, nil)

	installer := installations.NewInstaller(repo, getTestLogger())
	assert.Equal(t, models.Metadata{"subdomain": "acme"}, installer.RecoverMetadata(ctx, "t1", models.ConnectorZendesk))
}
