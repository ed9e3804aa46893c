// Package jobs enqueues downstream index jobs (document deletes, connector backfills).
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/kafka"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// Publisher writes messages to the job topic.
type Publisher interface {
	Publish(ctx context.Context, messages ...kafka.Message) error
}

// Enqueuer is what services depend on.
type Enqueuer interface {
	EnqueueDeleteDocuments(ctx context.Context, tenantID string, documentIDs []string) error
	EnqueueBackfill(ctx context.Context, tenantID string, connector models.ConnectorType) error
}

type Queue struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

func NewQueue(publisher Publisher, logger ectologger.Logger) *Queue {
	return &Queue{publisher: publisher, logger: logger, now: time.Now}
}

// EnqueueDeleteDocuments publishes one delete job carrying every id given.
func (q *Queue) EnqueueDeleteDocuments(ctx context.Context, tenantID string, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return q.publish(ctx, models.JobMessage{
		Type:        models.JobDeleteDocuments,
		TenantID:    tenantID,
		DocumentIDs: documentIDs,
	})
}

func (q *Queue) EnqueueBackfill(ctx context.Context, tenantID string, connector models.ConnectorType) error {
	return q.publish(ctx, models.JobMessage{
		Type:      models.JobBackfillIngest,
		TenantID:  tenantID,
		Connector: connector.String(),
	})
}

func (q *Queue) publish(ctx context.Context, job models.JobMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Jobs.Enqueue")
	defer span.End()
	tracing.TenantAttributes(span, job.TenantID, job.Connector)

	job.Timestamp = q.now().UTC()
	job.TraceParent = tracing.GetTraceParent(ctx)

	err := q.publisher.Publish(ctx, kafka.Message{
		Key:   fmt.Sprintf("%s:%s", job.TenantID, job.Type),
		Value: job,
		Headers: map[string]string{
			"tenant_id": job.TenantID,
			"type":      string(job.Type),
		},
	})
	if err != nil {
		tracing.RecordError(span, err, "failed to enqueue job")
		metrics.JobsPublishedTotal.WithLabelValues(string(job.Type), "error").Inc()
		return fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
	}

	metrics.JobsPublishedTotal.WithLabelValues(string(job.Type), "ok").Inc()
	q.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": job.TenantID,
		"type":      job.Type,
		"documents": len(job.DocumentIDs),
	}).Debug("job enqueued")
	return nil
}
