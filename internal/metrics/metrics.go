package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Upstream adapter outcomes
	// ============================================
	AdapterOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_adapter_outcomes_total",
			Help: "Outcomes of upstream adapter calls (ok, not_found, transient_error)",
		},
		[]string{"adapter", "outcome"},
	)

	AdapterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airdrop_adapter_duration_seconds",
			Help:    "Upstream adapter call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	// ============================================
	// Batched availability reads
	// ============================================
	MulticallBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airdrop_multicall_batch_size",
		Help:    "Number of recipients packed into one availability multicall",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	MulticallSlotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airdrop_multicall_slot_failures_total",
		Help: "Availability slots that reverted or could not be decoded",
	})

	// ============================================
	// Status requests
	// ============================================
	StatusRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_status_requests_total",
			Help: "Airdrop status computations by reason code",
		},
		[]string{"reason"},
	)

	StatusDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airdrop_status_duration_seconds",
		Help:    "End-to-end airdrop status computation duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	RecipientStatuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_recipient_statuses_total",
			Help: "Reconciled recipient statuses by status and claim basis",
		},
		[]string{"status", "basis"},
	)

	// ============================================
	// Claim event ingestion
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airdrop_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	ClaimEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_claim_events_received_total",
			Help: "Claim events received from NATS by result",
		},
		[]string{"result"},
	)
)
