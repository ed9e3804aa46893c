package models

import "time"

// JobType names a downstream job.
type JobType string

const (
	JobDeleteDocuments JobType = "delete_documents"
	JobBackfillIngest  JobType = "backfill_ingest"
)

// JobMessage is the envelope published to the job topic.
type JobMessage struct {
	Type        JobType   `json:"type"`
	TenantID    string    `json:"tenant_id"`
	Connector   string    `json:"connector,omitempty"`
	DocumentIDs []string  `json:"document_ids,omitempty"`
	TraceParent string    `json:"traceparent,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
