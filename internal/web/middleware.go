package web

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument records request count, duration and in-flight requests, labelled
// by the matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	m := s.config.Metrics
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
			m.HTTPRequestDuration.WithLabelValues(r.Method, route(r)).Observe(v)
		}))

		next.ServeHTTP(rec, r)

		timer.ObserveDuration()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route(r), strconv.Itoa(rec.status)).Inc()
	})
}

// route is the pattern the mux matched, set on r once it has been served.
func route(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}
