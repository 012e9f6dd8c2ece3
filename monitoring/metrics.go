package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"fanzone-tickets/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhooks and client-reported references by outcome",
		},
		[]string{"source", "result"},
	)

	ticketPurchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_purchases_total",
			Help: "Ticket purchase attempts by method and outcome",
		},
		[]string{"method", "result"},
	)

	admissionScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_scans_total",
			Help: "Check-in scans by result",
		},
		[]string{"result"},
	)

	fulfillmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_failures_total",
			Help: "Charged payments whose effects could not be applied",
		},
		[]string{"context"},
	)

	walletMovements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_movements_total",
			Help: "Wallet credits and debits by reason",
		},
		[]string{"type", "reason"},
	)

	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Duration of payment provider calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "operation", "result"},
	)

	eventReservations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_reservations",
			Help: "Claimed seats per active event",
		},
		[]string{"event_id"},
	)

	eventCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_capacity",
			Help: "Seat capacity per active event",
		},
		[]string{"event_id"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

func TrackWebhook(source, result string) {
	webhookEvents.WithLabelValues(source, result).Inc()
}

func TrackPurchase(method, result string) {
	ticketPurchases.WithLabelValues(method, result).Inc()
}

func TrackScan(result string) {
	admissionScans.WithLabelValues(result).Inc()
}

func TrackFulfillmentFailure(paymentContext string) {
	fulfillmentFailures.WithLabelValues(paymentContext).Inc()
}

func TrackWalletMovement(txType, reason string) {
	walletMovements.WithLabelValues(txType, reason).Inc()
}

func TrackProviderRequest(provider, operation, result string, d time.Duration) {
	providerRequestDuration.WithLabelValues(provider, operation, result).Observe(d.Seconds())
}

// EventLister returns the events whose seat gauges are exported.
type EventLister interface {
	ActiveEvents(ctx context.Context) ([]*models.Event, error)
}

// Monitor refreshes gauges that are read from storage rather than counted
// inline.
type Monitor struct {
	events   EventLister
	interval time.Duration
	logger   *slog.Logger
}

func NewMonitor(events EventLister, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{events: events, interval: 30 * time.Second, logger: logger}
}

// Run collects until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	events, err := m.events.ActiveEvents(ctx)
	if err != nil {
		m.logger.Warn("collect event gauges", "error", err)
		return
	}

	eventReservations.Reset()
	eventCapacity.Reset()
	for _, e := range events {
		eventReservations.WithLabelValues(e.ID).Set(float64(e.CurrentReservations))
		eventCapacity.WithLabelValues(e.ID).Set(float64(e.Capacity))
	}
}
