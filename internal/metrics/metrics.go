package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "motherbot"

var (
	// Registry holds the bot's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	eventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "events_total",
			Help:      "Inbound workflow events by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one workflow event, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"kind"},
	)

	sessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "sessions_swept_total",
			Help:      "Sessions cancelled by the inactivity sweep.",
		},
	)

	paymentsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "submitted_total",
			Help:      "Payments submitted for verification by type.",
		},
		[]string{"type"},
	)

	paymentsDecided = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "decided_total",
			Help:      "Administrator payment decisions by result.",
		},
		[]string{"decision"},
	)

	referralCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "credits_total",
			Help:      "Referral records credited by level.",
		},
		[]string{"level"},
	)

	broadcastDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Broadcast deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	broadcastPauses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "flood_pauses_total",
			Help:      "Pipeline pauses caused by transport flood control.",
		},
	)
)

func init() {
	Registry.MustRegister(
		eventsProcessed,
		eventDuration,
		sessionsSwept,
		paymentsSubmitted,
		paymentsDecided,
		referralCredits,
		broadcastDeliveries,
		broadcastPauses,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func RecordEvent(kind, outcome string, duration time.Duration) {
	eventsProcessed.WithLabelValues(kind, outcome).Inc()
	eventDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordSwept(n int) {
	sessionsSwept.Add(float64(n))
}

func RecordPaymentSubmitted(paymentType string) {
	paymentsSubmitted.WithLabelValues(paymentType).Inc()
}

func RecordPaymentDecided(decision string) {
	paymentsDecided.WithLabelValues(decision).Inc()
}

func RecordReferralCredit(level string) {
	referralCredits.WithLabelValues(level).Inc()
}

func RecordDelivery(outcome string) {
	broadcastDeliveries.WithLabelValues(outcome).Inc()
}

func RecordFloodPause() {
	broadcastPauses.Inc()
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router serves /metrics and /healthz. Each named check is pinged on /healthz.
func Router(checks map[string]Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		for name, c := range checks {
			if err := c.Ping(ctx); err != nil {
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve runs the ops server until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.WithField("addr", addr).Info("ops server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
