package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Registry JobRegistry
	Ledger   RunLedger
	Batch    BatchRunner
	// Verifier guards /api routes; nil leaves them open.
	Verifier TokenVerifier
	// DB backs the readiness probe (optional).
	DB     Pinger
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := http.NewServeMux()
	jobHandlers := &JobHandlers{Registry: services.Registry, Ledger: services.Ledger}
	batchHandlers := &BatchHandlers{Svc: services.Batch}
	registerJobRoutes(api, jobHandlers)
	registerBatchRoutes(api, batchHandlers)

	mux := http.NewServeMux()
	mux.Handle("/api/", RequireBearer(services.Verifier, logger)(api))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.DB))
	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/activate", h.ActivateJob)
	mux.HandleFunc("POST /api/jobs/{id}/deactivate", h.DeactivateJob)
	mux.HandleFunc("GET /api/jobs/{id}/runs", h.ListRuns)
	mux.HandleFunc("GET /api/jobs/{id}/runs/last-completed", h.LastCompletedRun)
	mux.HandleFunc("GET /api/runs/{id}", h.GetRun)
}

func registerBatchRoutes(mux *http.ServeMux, h *BatchHandlers) {
	mux.HandleFunc("POST /api/batch/runs", h.Trigger)
	mux.HandleFunc("GET /api/activity", h.LatestActivity)
}
