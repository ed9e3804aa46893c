package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/trellis/pkg/database"
)

// CustomDataState is the lifecycle state of a custom data type.
type CustomDataState string

const (
	CustomDataEnabled  CustomDataState = "enabled"
	CustomDataDisabled CustomDataState = "disabled"
	CustomDataDeleted  CustomDataState = "deleted"
)

const (
	// CustomDataSource is documents.source for custom data documents.
	CustomDataSource = "custom_data"
	// CustomDataArtifactEntity is ingest_artifact.entity for custom data artifacts.
	CustomDataArtifactEntity = "custom_data_document"
)

// CustomField is one tenant-defined field of a custom data type.
type CustomField struct {
	Name        string `json:"name" validate:"required,max=100"`
	Type        string `json:"type" validate:"required,oneof=text number date boolean url"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// CustomFields is the versioned field schema stored as jsonb.
type CustomFields struct {
	Fields  []CustomField `json:"fields" validate:"dive"`
	Version int           `json:"version"`
}

// CustomDataType is a tenant-defined document type.
type CustomDataType struct {
	ID           uuid.UUID                    `db:"id" json:"id"`
	TenantID     string                       `db:"tenant_id" json:"tenant_id"`
	DisplayName  string                       `db:"display_name" json:"display_name"`
	Slug         string                       `db:"slug" json:"slug"`
	Description  *string                      `db:"description" json:"description,omitempty"`
	CustomFields database.JSONB[CustomFields] `db:"custom_fields" json:"custom_fields"`
	State        CustomDataState              `db:"state" json:"state"`
	CreatedAt    time.Time                    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time                    `db:"updated_at" json:"updated_at"`
}

func (CustomDataType) TableName() string {
	return "custom_data_types"
}

// CreateCustomDataTypeRequest is the body of a create call.
type CreateCustomDataTypeRequest struct {
	DisplayName string        `json:"display_name" validate:"required,max=200"`
	Description *string       `json:"description,omitempty"`
	Fields      []CustomField `json:"fields" validate:"dive"`
}

// UpdateCustomDataTypeRequest is the body of an update call; nil fields are left unchanged.
type UpdateCustomDataTypeRequest struct {
	DisplayName *string          `json:"display_name,omitempty" validate:"omitempty,max=200"`
	Description *string          `json:"description,omitempty"`
	Fields      []CustomField    `json:"fields,omitempty" validate:"dive"`
	State       *CustomDataState `json:"state,omitempty" validate:"omitempty,oneof=enabled disabled"`
}

// DeleteResult reports what a custom data type deletion removed.
type DeleteResult struct {
	DeletedDocuments int `json:"deleted_documents"`
	DeletedArtifacts int `json:"deleted_artifacts"`
	// EnqueuedJobs counts index-delete batches that were accepted by the queue.
	EnqueuedJobs int `json:"enqueued_jobs"`
	FailedJobs   int `json:"failed_jobs"`
	// SearchIndexDeleteTriggered is set once at least one batch was enqueued.
	SearchIndexDeleteTriggered bool `json:"search_index_delete_triggered"`
}
