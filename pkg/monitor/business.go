package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	TxRequestedTotal      *prometheus.CounterVec
	TxApprovedTotal       *prometheus.CounterVec
	TxCancelledTotal      *prometheus.CounterVec
	TxFailedTotal         *prometheus.CounterVec
	MetaTxRejectedTotal   *prometheus.CounterVec
	PendingTransactions   *prometheus.GaugeVec
	OutboxBacklog         prometheus.Gauge
	DispatchDuration      *prometheus.HistogramVec
	PaymentsReleasedTotal *prometheus.CounterVec
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		TxRequestedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secureop_tx_requested_total",
			Help: "The total number of requested transactions",
		}, []string{"operation_type"}),
		TxApprovedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secureop_tx_approved_total",
			Help: "The total number of approved (completed) transactions",
		}, []string{"operation_type", "via"}), // via: delayed / metatx
		TxCancelledTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secureop_tx_cancelled_total",
			Help: "The total number of cancelled transactions",
		}, []string{"operation_type"}),
		TxFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secureop_tx_failed_total",
			Help: "The total number of transactions whose dispatch reverted",
		}, []string{"operation_type"}),
		MetaTxRejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secureop_metatx_rejected_total",
			Help: "Meta-transaction verification failures by reason",
		}, []string{"reason"}),
		PendingTransactions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "secureop_pending_transactions",
			Help: "Number of transactions currently in pending state",
		}, []string{"operation_type"}),
		OutboxBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "secureop_outbox_backlog",
			Help: "Outbox messages not yet relayed to the MQ",
		}),
		DispatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "secureop_dispatch_duration_seconds",
			Help:    "Duration of execution payload dispatch on approval",
			Buckets: prometheus.DefBuckets,
		}, []string{"execution_type"}),
		PaymentsReleasedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secureop_payments_released_total",
			Help: "Payments released on completed transactions",
		}, []string{"kind"}), // kind: native / token
	}
}
