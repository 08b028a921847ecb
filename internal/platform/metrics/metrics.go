package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"rudefriend/contexts/community-board/board-service/domain/entities"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rudefriend"

// Recorder owns a private registry so tests and multiple processes never
// collide on the global default registry.
type Recorder struct {
	Registry *prometheus.Registry

	votesCast       *prometheus.CounterVec
	voteRejections  *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	tallyRepairs    prometheus.Counter

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		votesCast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_cast_total",
				Help:      "Accepted votes by outcome.",
			},
			[]string{"outcome"},
		),
		voteRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vote_rejections_total",
				Help:      "Rejected vote attempts by reason.",
			},
			[]string{"reason"},
		),
		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Summary reconciliations after post edits by mode.",
			},
			[]string{"mode"},
		),
		tallyRepairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tally_repairs_total",
				Help:      "Posts whose summary rows were rebuilt from the ledger.",
			},
		),
		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "route"},
		),
	}
	r.Registry.MustRegister(
		r.votesCast,
		r.voteRejections,
		r.reconciliations,
		r.tallyRepairs,
		r.httpInFlight,
		r.httpRequests,
		r.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Recorder) VoteCast(outcome entities.VoteOutcome) {
	r.votesCast.WithLabelValues(string(outcome)).Inc()
}

func (r *Recorder) VoteRejected(reason string) {
	r.voteRejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) SummariesReconciled(mode string) {
	r.reconciliations.WithLabelValues(mode).Inc()
}

func (r *Recorder) TallyRepaired(string) {
	r.tallyRepairs.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request count and latency labelled by the
// matched ServeMux pattern, never the raw path.
func (r *Recorder) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()

		next.ServeHTTP(rec, req)

		route := routeLabel(req)
		method := strings.ToUpper(req.Method)
		r.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		r.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(req *http.Request) string {
	pattern := req.Pattern
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.wroteHeader = true
	}
	return s.ResponseWriter.Write(b)
}
