// Package metrics provides Prometheus metrics for the trellis service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConfigStoreOperations counts config store calls by backend (secret, relational), operation and result
	ConfigStoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "config_store",
			Name:      "operations_total",
			Help:      "Total number of config store operations by backend, operation and result",
		},
		[]string{"backend", "operation", "result"},
	)

	// TokenRefreshesTotal tracks OAuth refresh grants by connector and result
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "oauth",
			Name:      "token_refreshes_total",
			Help:      "Total number of OAuth token refreshes by connector and result",
		},
		[]string{"connector", "result"},
	)

	// OAuthExchangesTotal tracks authorization code exchanges
	OAuthExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "oauth",
			Name:      "code_exchanges_total",
			Help:      "Total number of OAuth authorization code exchanges by connector and result",
		},
		[]string{"connector", "result"},
	)

	// InstallationOperationsTotal tracks connector installation bookkeeping
	InstallationOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "installations",
			Name:      "operations_total",
			Help:      "Total number of connector installation operations by connector, operation and result",
		},
		[]string{"connector", "operation", "result"},
	)

	// CustomDataDeletionsTotal tracks custom data type deletions
	CustomDataDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "custom_data",
			Name:      "deletions_total",
			Help:      "Total number of custom data type deletions by result",
		},
		[]string{"result"},
	)

	// CustomDataDocumentsDeleted counts documents removed with their custom data type
	CustomDataDocumentsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "custom_data",
			Name:      "documents_deleted_total",
			Help:      "Total number of documents deleted together with a custom data type",
		},
	)

	// JobsPublishedTotal tracks downstream job messages
	JobsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "jobs",
			Name:      "published_total",
			Help:      "Total number of job messages published by type and result",
		},
		[]string{"type", "result"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests to providers
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"host", "method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trellis",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"host"},
	)
)
