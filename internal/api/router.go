package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shardgate/controlplane/internal/metrics"
	"github.com/shardgate/controlplane/internal/middleware"
)

// maxRequestBody caps request bodies; no control-plane payload is large.
const maxRequestBody = 1 << 20

// NewRouter creates the control-plane router with all API routes
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(middleware.HTTPLogging(h.logger))
	r.Use(middleware.MaxBodySize(maxRequestBody))
	r.Use(chimw.Recoverer)

	// Probes (no auth)
	r.Get("/healthz", h.HandleHealth)
	r.Get("/readyz", h.HandleReady)

	r.Route("/v1", func(r chi.Router) {
		// Project and token lifecycle
		r.Post("/projects", h.HandleCreateProject)
		r.Post("/tokens/macaroon", h.HandleMintToken)
		r.Post("/tokens/verify", h.HandleVerifyToken)
		r.Post("/tokens/revoke", h.HandleRevokeToken)

		// Signed-request credentials
		r.Post("/sigv4/keys", h.HandleCreateKey)
		r.Get("/sigv4/keys", h.HandleListKeys)
		r.Post("/sigv4/keys/revoke", h.HandleRevokeKey)

		// Node lifecycle
		r.Post("/nodes/register", h.HandleRegisterNode)
		r.Post("/nodes/heartbeat", h.HandleHeartbeat)
		r.Post("/proofs/submit", h.HandleSubmitProof)
		r.Get("/nodes", h.HandleListNodes)
		r.Get("/nodes/{node_id}", h.HandleGetNode)

		// Placement planner
		r.Post("/placement/suggest", h.HandleSuggestPlacement)
		r.Get("/ai/placement/strategy", h.HandlePlacementStrategy)
		r.Get("/ai/nodes/risk", h.HandleNodeRisk)

		// Usage and billing
		r.Post("/usage/ingest", h.HandleIngestUsage)
		r.Get("/usage/{project_id}", h.HandleGetUsage)
		r.Get("/payouts/preview", h.HandlePayoutsPreview)
		r.Get("/pricing/quote", h.HandlePricingQuote)

		// Gateway-facing endpoints (shared internal token)
		r.Group(func(r chi.Router) {
			r.Use(h.internalAuth)
			r.Post("/sigv4/resolve", h.HandleResolveKey)
			r.Post("/sigv4/check", h.HandleCheckSignature)
		})

		// Admin (shared internal token)
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.internalAuth)
			r.Get("/whoami", h.HandleWhoami)
			r.Post("/loglevel", h.HandleSetLogLevel)
		})
	})

	return r
}
