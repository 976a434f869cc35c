// Package httptransport is the thin HTTP layer over the coordinator. It
// decodes requests, delegates, and encodes results; business rules live
// below it.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/coordinator"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
)

type Handler struct {
	coord     *coordinator.Coordinator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func NewHandler(coord *coordinator.Coordinator, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		coord:     coord,
		logger:    logger,
		metrics:   m,
		validator: validator,
	}
}

// NewRouter wires all endpoints. Health and metrics stay outside the auth
// boundary; everything else requires a valid bearer token.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Latency(h.metrics))

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Post("/stock/receive", h.handleReceiveStock)
		r.Post("/stock/transfer", h.handleTransferStock)
		r.Post("/stock/retrieve", h.handleRetrieveStock)
		r.Get("/stock", h.handleListStock)
		r.Get("/stock/balance/{custodianID}", h.handleBalance)

		r.Get("/custodians", h.handleListCustodians)
		r.Post("/custodians", h.handleCreateCustodian)

		r.Post("/deliveries", h.handleRecordDelivery)
		r.Put("/deliveries/{id}", h.handleUpdateDelivery)
		r.Get("/deliveries", h.handleListDeliveries)

		r.Delete("/records/{kind}/{id}", h.handleDeleteRecord)

		r.Get("/team/rollup", h.handleTeamRollup)
		r.Put("/profiles/{id}", h.handleUpdateProfile)
		r.Delete("/session", h.handleTerminateSession)
	})

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
