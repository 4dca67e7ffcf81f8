package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTracked tracks the number of transfers held by the store by direction and status
	TransfersTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_transfers",
			Help: "Number of tracked transfers",
		},
		[]string{"direction", "status"},
	)

	// StoreActions counts reducer actions applied to the transfer store
	StoreActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_store_actions_total",
			Help: "Total number of actions applied to the transfer store",
		},
		[]string{"action"},
	)

	// StoreNotes counts reducer diagnostics such as rejected regressions
	StoreNotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_store_notes_total",
			Help: "Total number of store diagnostics by kind",
		},
		[]string{"kind"},
	)

	// PersistFailures counts failed writes of tracker documents
	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_persist_failures_total",
			Help: "Total number of failed document writes",
		},
		[]string{"document"},
	)

	// Resolutions counts status resolutions by outcome
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_resolutions_total",
			Help: "Total number of cross-chain message status resolutions",
		},
		[]string{"era", "outcome"},
	)

	// ResolutionDuration tracks the time spent resolving one transfer
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_resolution_duration_seconds",
			Help:    "Cross-chain message status resolution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"era"},
	)

	// ResolutionsInFlight tracks resolutions currently running
	ResolutionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_resolutions_in_flight",
			Help: "Number of status resolutions currently running",
		},
	)

	// PollTicks counts scheduler ticks
	PollTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_poll_ticks_total",
			Help: "Total number of polling ticks",
		},
	)

	// BackfillPages counts fetched backfill pages by fetcher and outcome
	BackfillPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_backfill_pages_total",
			Help: "Total number of backfill pages fetched",
		},
		[]string{"fetcher", "outcome"},
	)

	// BackfillTransfers counts transfers discovered by backfill per fetcher
	BackfillTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_backfill_transfers_total",
			Help: "Total number of transfers discovered by backfill",
		},
		[]string{"fetcher"},
	)

	// EventsDetected counts bridge events decoded per chain
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_events_detected_total",
			Help: "Total number of bridge events detected",
		},
		[]string{"chain", "event_type"},
	)

	// IndexerRecordsSkipped counts indexer records that could not be normalized
	IndexerRecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_indexer_records_skipped_total",
			Help: "Total number of malformed indexer records skipped",
		},
		[]string{"reason"},
	)

	// NewTransfers tracks transfers not yet marked seen
	NewTransfers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_new_transfers",
			Help: "Number of transfers not yet marked as seen",
		},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
