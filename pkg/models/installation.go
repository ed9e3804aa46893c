package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/database"
)

// ConnectorType identifies a third-party connector.
type ConnectorType string

func (c ConnectorType) String() string {
	return string(c)
}

const (
	ConnectorSlack     ConnectorType = "slack"
	ConnectorAsana     ConnectorType = "asana"
	ConnectorClickUp   ConnectorType = "clickup"
	ConnectorGitLab    ConnectorType = "gitlab"
	ConnectorIntercom  ConnectorType = "intercom"
	ConnectorZendesk   ConnectorType = "zendesk"
	ConnectorPipedrive ConnectorType = "pipedrive"
	ConnectorJira      ConnectorType = "jira"
	ConnectorSnowflake ConnectorType = "snowflake"
	ConnectorPostHog   ConnectorType = "posthog"
	ConnectorPylon     ConnectorType = "pylon"
)

// InstallationStatus is the lifecycle state of a connector installation.
type InstallationStatus string

const (
	InstallationPending      InstallationStatus = "pending"
	InstallationActive       InstallationStatus = "active"
	InstallationError        InstallationStatus = "error"
	InstallationDisconnected InstallationStatus = "disconnected"
)

// Metadata is free-form connector metadata stored as jsonb.
type Metadata = map[string]any

// ConnectorInstallation records that a tenant connected an external account.
// Rows are unique on (tenant_id, type, external_id) and are never removed on disconnect.
type ConnectorInstallation struct {
	ID               uuid.UUID                `db:"id" json:"id"`
	TenantID         string                   `db:"tenant_id" json:"tenant_id"`
	Type             ConnectorType            `db:"type" json:"type"`
	ExternalID       string                   `db:"external_id" json:"external_id"`
	ExternalMetadata database.JSONB[Metadata] `db:"external_metadata" json:"external_metadata"`
	Status           InstallationStatus       `db:"status" json:"status"`
	CreatedAt        time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                `db:"updated_at" json:"updated_at"`
}

func (ConnectorInstallation) TableName() string {
	return "connector_installations"
}

// InstallParams describes an installConnector request.
type InstallParams struct {
	TenantID   string
	Type       ConnectorType
	ExternalID string
	Metadata   Metadata
	// Status defaults to active.
	Status InstallationStatus
	// UpdateMetadataOnExisting overwrites metadata when the row already exists.
	UpdateMetadataOnExisting bool
}

// NewMetadata wraps metadata for the jsonb column.
func NewMetadata(metadata Metadata) database.JSONB[Metadata] {
	return database.NewJSONB(metadata)
}
