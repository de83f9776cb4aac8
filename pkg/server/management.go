package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fluentstream/fluentstream/pkg/health"
	"github.com/fluentstream/fluentstream/pkg/observability/metrics"
	"github.com/fluentstream/fluentstream/pkg/version"
)

// NewManagementHandler builds the management mux:
//
//	GET /healthz   liveness (process is up)
//	GET /readyz    readiness (all registered health checks pass)
//	GET /metrics   Prometheus exposition
//	GET /version   build metadata
func NewManagementHandler(serviceName string, checks *health.Registry, reg *metrics.Registry) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checks.Check(r.Context())
		code := http.StatusOK
		if !result.IsHealthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, result)
	}).Methods(http.MethodGet)

	router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Current(serviceName))
	}).Methods(http.MethodGet)

	return router
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
