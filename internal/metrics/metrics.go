package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails accepted by the email transport",
		},
	)

	EmailFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total queue messages reported back for redelivery",
		},
		[]string{"kind"}, // transient, permanent
	)

	DuplicatesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_duplicates_skipped_total",
			Help: "Total queue messages skipped because their idempotency key was already recorded",
		},
	)

	MessagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_messages_dropped_total",
			Help: "Total queue messages consumed without delivery because they never parsed",
		},
	)

	IdempotencyRecordErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_idempotency_record_errors_total",
			Help: "Total failures to record a sent email in the idempotency store",
		},
		[]string{"outcome"}, // already_exists, store_error
	)

	BatchesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_batches_processed_total",
			Help: "Total queue batches handled by the consumer",
		},
	)

	JobsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_jobs_enqueued_total",
			Help: "Total email jobs accepted by the queue",
		},
	)

	JobsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_jobs_rejected_total",
			Help: "Total email jobs rejected by the queue",
		},
	)

	JobsFiltered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_jobs_filtered_total",
			Help: "Total email jobs dropped for an invalid or blocked recipient",
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(DuplicatesSkipped)
	prometheus.MustRegister(MessagesDropped)
	prometheus.MustRegister(IdempotencyRecordErrors)
	prometheus.MustRegister(BatchesProcessed)
	prometheus.MustRegister(JobsEnqueued)
	prometheus.MustRegister(JobsRejected)
	prometheus.MustRegister(JobsFiltered)
}
