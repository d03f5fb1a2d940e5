package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(h.metrics),
		Logging(h.logger),
	)

	// Health и metrics
	mux.HandleFunc("GET /healthz", h.Health)
	if h.metricsHandler != nil {
		mux.Handle("GET /metrics", h.metricsHandler)
	}

	// Deployments
	mux.Handle("GET /api/v1/deployments", chain(http.HandlerFunc(h.ListDeployments)))
	mux.Handle("POST /api/v1/deployments", chain(http.HandlerFunc(h.CreateDeployment)))
	mux.Handle("GET /api/v1/deployments/{id}", chain(http.HandlerFunc(h.GetDeployment)))
	mux.Handle("GET /api/v1/deployments/{id}/definition", chain(http.HandlerFunc(h.GetDefinition)))

	// Events
	mux.Handle("POST /api/v1/events/s3", chain(http.HandlerFunc(h.ObjectEvent)))
}
