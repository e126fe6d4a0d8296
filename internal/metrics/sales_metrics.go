package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics содержит метрики жизненного цикла заказов и продаж.
// Все методы безопасно вызывать на nil.
type SalesMetrics struct {
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    prometheus.Counter
	activeCheckouts   prometheus.Gauge

	ordersCreated  prometheus.Counter
	ordersPaid     prometheus.Counter
	ordersCanceled prometheus.Counter
	ordersExpired  prometheus.Counter

	settlementsCreated prometheus.Counter
	settlementsVoided  prometheus.Counter
	installmentsPaid   prometheus.Counter

	stockRejections  prometheus.Counter
	stockAdjustments prometheus.Counter
	gatewayErrors    prometheus.Counter

	webhookOutcomes *prometheus.CounterVec

	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec
}

// NewSalesMetrics создаёт метрики в реестре по умолчанию.
func NewSalesMetrics() *SalesMetrics {
	return NewSalesMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSalesMetricsWithRegisterer создаёт метрики в указанном реестре (в тестах изолированном).
func NewSalesMetricsWithRegisterer(registerer prometheus.Registerer) *SalesMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SalesMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_checkout_started_total",
			Help: "Total number of checkouts started",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_checkout_completed_total",
			Help: "Total number of checkouts that produced an order",
		}),
		checkoutFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_checkout_failed_total",
			Help: "Total number of checkouts that failed",
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "sales_active_checkouts",
			Help: "Number of checkouts currently in progress",
		}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_orders_created_total",
			Help: "Total number of orders created with reserved stock",
		}),
		ordersPaid: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_orders_paid_total",
			Help: "Total number of orders confirmed as paid",
		}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_orders_canceled_total",
			Help: "Total number of orders canceled",
		}),
		ordersExpired: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_orders_expired_total",
			Help: "Total number of orders moved to expired",
		}),
		settlementsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_settlements_created_total",
			Help: "Total number of settlements created",
		}),
		settlementsVoided: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_settlements_voided_total",
			Help: "Total number of settlements voided",
		}),
		installmentsPaid: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_installments_paid_total",
			Help: "Total number of installments marked paid",
		}),
		stockRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_stock_rejections_total",
			Help: "Total number of reservations rejected for insufficient stock",
		}),
		stockAdjustments: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_stock_adjustments_total",
			Help: "Total number of manual stock adjustments",
		}),
		gatewayErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "sales_gateway_errors_total",
			Help: "Total number of payment gateway failures",
		}),
		webhookOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "sales_webhook_events_total",
			Help: "Total number of gateway events grouped by outcome",
		}, []string{"outcome"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "sales_checkout_duration_seconds",
			Help:    "Duration of checkout in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "sales_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
	}
}

// RecordCheckoutStarted увеличивает счётчик начатых оформлений.
func (m *SalesMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.checkoutStarted.Inc()
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished фиксирует результат и длительность оформления.
func (m *SalesMetrics) RecordCheckoutFinished(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	if ok {
		m.checkoutCompleted.Inc()
	} else {
		m.checkoutFailed.Inc()
	}
	m.activeCheckouts.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *SalesMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

func (m *SalesMetrics) RecordOrderCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

func (m *SalesMetrics) RecordOrderPaid() {
	if m != nil {
		m.ordersPaid.Inc()
	}
}

func (m *SalesMetrics) RecordOrderCanceled() {
	if m != nil {
		m.ordersCanceled.Inc()
	}
}

func (m *SalesMetrics) RecordOrderExpired() {
	if m != nil {
		m.ordersExpired.Inc()
	}
}

func (m *SalesMetrics) RecordSettlementCreated() {
	if m != nil {
		m.settlementsCreated.Inc()
	}
}

func (m *SalesMetrics) RecordSettlementVoided() {
	if m != nil {
		m.settlementsVoided.Inc()
	}
}

func (m *SalesMetrics) RecordInstallmentPaid() {
	if m != nil {
		m.installmentsPaid.Inc()
	}
}

// RecordStockRejected считает отказы резервирования из-за нехватки остатка.
func (m *SalesMetrics) RecordStockRejected() {
	if m != nil {
		m.stockRejections.Inc()
	}
}

func (m *SalesMetrics) RecordStockAdjusted() {
	if m != nil {
		m.stockAdjustments.Inc()
	}
}

func (m *SalesMetrics) RecordGatewayError() {
	if m != nil {
		m.gatewayErrors.Inc()
	}
}

// RecordWebhookOutcome считает обработанные события шлюза по исходу.
func (m *SalesMetrics) RecordWebhookOutcome(outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(outcome).Inc()
}
