package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "settlement_"

	resultSuccess   = "success"
	resultError     = "error"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
)

var (
	registerOnce sync.Once

	checkoutTotal   *prometheus.CounterVec
	checkoutLatency *prometheus.HistogramVec

	paymentConfirmTotal   *prometheus.CounterVec
	paymentConfirmLatency *prometheus.HistogramVec

	escrowOperations *prometheus.CounterVec

	reservationsTotal   *prometheus.CounterVec
	reservationsExpired prometheus.Counter
	sweepTotal          *prometheus.CounterVec

	milestoneTransitions *prometheus.CounterVec

	retriesTotal *prometheus.CounterVec

	consumerLag        *prometheus.GaugeVec
	notificationsTotal *prometheus.CounterVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxDispatched      *prometheus.CounterVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec
)

// Init registers settlement metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		checkoutTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "checkout_total",
				Help: "Total checkouts by result",
			},
			[]string{"result"},
		)
		checkoutLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "checkout_latency_seconds",
				Help:    "Checkout latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		paymentConfirmTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_confirm_total",
				Help: "Total payment confirmations by result",
			},
			[]string{"result"},
		)
		paymentConfirmLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payment_confirm_latency_seconds",
				Help:    "Payment confirmation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		escrowOperations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "escrow_operations_total",
				Help: "Escrow account operations by operation and result",
			},
			[]string{"operation", "result"},
		)

		reservationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "inventory_reservations_total",
				Help: "Inventory reservation attempts by result",
			},
			[]string{"result"},
		)
		reservationsExpired = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "inventory_reservations_expired_total",
				Help: "Reservations released by the expiry sweep",
			},
		)
		sweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reservation_sweep_total",
				Help: "Reservation expiry sweeps by result",
			},
			[]string{"result"},
		)

		milestoneTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "milestone_transitions_total",
				Help: "Milestone transitions by target status",
			},
			[]string{"status"},
		)

		retriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "contention_retries_total",
				Help: "Retries caused by resource contention by operation",
			},
			[]string{"operation"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Outbound notifications by event and result",
			},
			[]string{"event", "result"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Outbox writes by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox write latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatched = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_records_total",
				Help: "Outbox records handled by outcome",
			},
			[]string{"outcome"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total vendor revenue exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Vendor revenue export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			checkoutTotal,
			checkoutLatency,
			paymentConfirmTotal,
			paymentConfirmLatency,
			escrowOperations,
			reservationsTotal,
			reservationsExpired,
			sweepTotal,
			milestoneTransitions,
			retriesTotal,
			consumerLag,
			notificationsTotal,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDispatched,
			reportExportTotal,
			reportExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveCheckout records checkout latency and result.
func ObserveCheckout(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if checkoutTotal != nil {
		checkoutTotal.WithLabelValues(result).Inc()
	}
	if checkoutLatency != nil {
		checkoutLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObservePaymentConfirm records payment confirmation latency and result.
func ObservePaymentConfirm(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if paymentConfirmTotal != nil {
		paymentConfirmTotal.WithLabelValues(result).Inc()
	}
	if paymentConfirmLatency != nil {
		paymentConfirmLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncEscrowOperation counts an escrow mutation.
func IncEscrowOperation(operation, result string) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if escrowOperations != nil {
		escrowOperations.WithLabelValues(operation, result).Inc()
	}
}

// IncReservation counts a reservation attempt.
func IncReservation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reservationsTotal != nil {
		reservationsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSweep records a sweep run and the number of released reservations.
func ObserveSweep(result string, released int) {
	if result == "" {
		result = resultSuccess
	}
	if sweepTotal != nil {
		sweepTotal.WithLabelValues(result).Inc()
	}
	if released > 0 && reservationsExpired != nil {
		reservationsExpired.Add(float64(released))
	}
}

// IncMilestoneTransition counts a milestone transition.
func IncMilestoneTransition(status string) {
	if status == "" {
		status = "unknown"
	}
	if milestoneTransitions != nil {
		milestoneTransitions.WithLabelValues(status).Inc()
	}
}

// IncRetry counts a contention retry.
func IncRetry(operation string) {
	if operation == "" {
		operation = "unknown"
	}
	if retriesTotal != nil {
		retriesTotal.WithLabelValues(operation).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// IncNotification counts an outbound notification.
func IncNotification(event, result string) {
	if event == "" {
		event = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(event, result).Inc()
	}
}

// ObserveOutboxPublish records an outbox write.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a dispatch run and its record outcomes.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatched == nil {
		return
	}
	if sent > 0 {
		outboxDispatched.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		outboxDispatched.WithLabelValues("failed").Add(float64(failed))
	}
	if dlq > 0 {
		outboxDispatched.WithLabelValues("dlq").Add(float64(dlq))
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess   = resultSuccess
	ResultError     = resultError
	ResultDuplicate = resultDuplicate
	ResultRejected  = resultRejected
)
