package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/shardgate/controlplane/internal/billing"
	"github.com/shardgate/controlplane/internal/reliability"
)

// IngestUsageRequest is one usage delta from the data plane.
type IngestUsageRequest struct {
	ProjectID      string  `json:"project_id"`
	StorageGBHours float64 `json:"storage_gb_hours"`
	EgressGB       float64 `json:"egress_gb"`
	APIOps         float64 `json:"api_ops"`
}

// HandleIngestUsage folds a usage delta into the project's current billing
// period. Metering is best-effort: the delta is accepted before the save
// lands, and a failed save costs at most one delta, never the request.
// POST /v1/usage/ingest
func (h *Handler) HandleIngestUsage(w http.ResponseWriter, r *http.Request) {
	var req IngestUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.ProjectID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "project_id is required")
		return
	}
	if req.StorageGBHours < 0 || req.EgressGB < 0 || req.APIOps < 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "usage counters must be non-negative")
		return
	}

	period := billing.PeriodOf(h.now())
	delta := billing.UsageRecord{
		StorageGBHours: req.StorageGBHours,
		EgressGB:       req.EgressGB,
		APIOps:         req.APIOps,
	}

	h.mu.Lock()
	h.st.Usage[req.ProjectID] = billing.Accumulate(h.st.Usage[req.ProjectID], delta, period)
	h.mu.Unlock()
	h.persistBestEffort(r.Context())

	WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "period": period})
}

// UsageResponse is a project's accumulated usage with its billing estimate.
type UsageResponse struct {
	ProjectID string              `json:"project_id"`
	Usage     billing.UsageRecord `json:"usage"`
	Bill      billing.Bill        `json:"bill"`
}

// HandleGetUsage returns a project's current-period usage and estimated bill.
// GET /v1/usage/{project_id}
func (h *Handler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")

	h.mu.Lock()
	project, ok := h.st.Projects[projectID]
	rec := h.st.Usage[projectID]
	h.mu.Unlock()
	if !ok {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "unknown project")
		return
	}
	if rec.Period == "" {
		rec.Period = billing.PeriodOf(h.now())
	}

	bill, err := billing.EstimateProjectBill(rec, project.Tier)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "billing estimate failed")
		return
	}

	WriteJSON(w, http.StatusOK, UsageResponse{ProjectID: projectID, Usage: rec, Bill: bill})
}

// PayoutsPreviewResponse is the fleet payout preview for the current period.
type PayoutsPreviewResponse struct {
	Period      string           `json:"period"`
	ActiveNodes int              `json:"active_nodes"`
	Payouts     []billing.Payout `json:"payouts"`
	TotalUSD    float64          `json:"total_usd"`
}

// HandlePayoutsPreview previews node payouts for the current period. Served
// bytes are not attributed per node, so fleet usage is split evenly across
// active nodes; each node's share is then scaled by its own quality
// multiplier and proof penalties.
// GET /v1/payouts/preview
func (h *Handler) HandlePayoutsPreview(w http.ResponseWriter, r *http.Request) {
	period := billing.PeriodOf(h.now())

	var fleet billing.UsageRecord
	h.mu.Lock()
	for _, rec := range h.st.Usage {
		if rec.Period != period {
			continue
		}
		fleet.StorageGBHours += rec.StorageGBHours
		fleet.EgressGB += rec.EgressGB
		fleet.APIOps += rec.APIOps
	}
	h.mu.Unlock()

	active := h.registry.List(reliability.StatusActive, "")
	resp := PayoutsPreviewResponse{Period: period, ActiveNodes: len(active)}

	if len(active) > 0 {
		share := billing.UsageRecord{
			Period:         period,
			StorageGBHours: fleet.StorageGBHours / float64(len(active)),
			EgressGB:       fleet.EgressGB / float64(len(active)),
			APIOps:         fleet.APIOps / float64(len(active)),
		}
		for _, n := range active {
			p := billing.EstimateNodePayout(n, share, n.ProofFailures)
			resp.Payouts = append(resp.Payouts, p)
			resp.TotalUSD += p.TotalUSD
		}
		sort.Slice(resp.Payouts, func(i, j int) bool {
			return resp.Payouts[i].NodeID < resp.Payouts[j].NodeID
		})
	}

	WriteJSON(w, http.StatusOK, resp)
}

// HandlePricingQuote returns the rate card for one tier, or all tiers when no
// tier is given.
// GET /v1/pricing/quote
func (h *Handler) HandlePricingQuote(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tier")
	if raw != "" {
		tier, err := billing.ParseTier(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		rates, err := billing.RatesFor(tier)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"tier": tier, "rates": rates})
		return
	}

	all := make(map[billing.Tier]billing.Rates)
	for _, tier := range billing.AllTiers() {
		rates, err := billing.RatesFor(tier)
		if err != nil {
			continue
		}
		all[tier] = rates
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tiers": all})
}
