package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shardgate/controlplane/internal/metrics"
	"github.com/shardgate/controlplane/internal/reliability"
)

// RegisterNodeRequest is the request body for POST /v1/nodes/register.
type RegisterNodeRequest struct {
	NodeID        string  `json:"node_id"`
	Wallet        string  `json:"wallet"`
	Region        string  `json:"region"`
	ASN           int     `json:"asn"`
	CapacityGB    float64 `json:"capacity_gb"`
	BandwidthMbps float64 `json:"bandwidth_mbps"`
}

// HandleRegisterNode registers a storage node or refreshes the declared
// attributes of an existing one. Health history survives re-registration.
// POST /v1/nodes/register
func (h *Handler) HandleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req RegisterNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.NodeID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "node_id is required")
		return
	}
	if req.CapacityGB < 0 || req.BandwidthMbps < 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "capacity_gb and bandwidth_mbps must be non-negative")
		return
	}

	node := h.registry.Register(&reliability.Node{
		ID:            req.NodeID,
		Wallet:        req.Wallet,
		Region:        req.Region,
		ASN:           req.ASN,
		CapacityGB:    req.CapacityGB,
		AvailableGB:   req.CapacityGB,
		BandwidthMbps: req.BandwidthMbps,
	})

	h.updateNodeGauges()
	h.persistBestEffort(r.Context())
	h.audit(r.Context(), "node_registered", req.NodeID, map[string]string{"region": req.Region})

	WriteJSON(w, http.StatusCreated, node)
}

// HeartbeatRequest is the request body for POST /v1/nodes/heartbeat.
type HeartbeatRequest struct {
	NodeID          string  `json:"node_id"`
	LatencyMs       float64 `json:"latency_ms"`
	UptimePct       float64 `json:"uptime_pct"`
	ProofSuccessPct float64 `json:"proof_success_pct"`
	AvailableGB     float64 `json:"available_gb"`
}

// HandleHeartbeat ingests one health report. The response carries the node
// record after scoring, so providers see status transitions immediately.
// POST /v1/nodes/heartbeat
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.NodeID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "node_id is required")
		return
	}

	sample := reliability.Sample{
		LatencyMs:       req.LatencyMs,
		UptimePct:       req.UptimePct,
		ProofSuccessPct: req.ProofSuccessPct,
	}
	node, err := h.registry.ApplyHeartbeat(req.NodeID, sample, req.AvailableGB)
	if errors.Is(err, reliability.ErrNodeNotFound) {
		WriteErrorWithHint(w, http.StatusNotFound, ErrCodeNotFound, "unknown node",
			"register the node before sending heartbeats")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "heartbeat processing failed")
		return
	}

	metrics.RecordHeartbeat(string(node.Status))
	h.updateNodeGauges()
	h.persistBestEffort(r.Context())

	WriteJSON(w, http.StatusOK, node)
}

// ProofRequest is the request body for POST /v1/proofs/submit.
type ProofRequest struct {
	NodeID  string `json:"node_id"`
	Success bool   `json:"success"`
}

// HandleSubmitProof records a storage-proof outcome. Failed proofs feed both
// the quarantine gate and payout penalties.
// POST /v1/proofs/submit
func (h *Handler) HandleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req ProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.NodeID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "node_id is required")
		return
	}

	node, err := h.registry.ApplyProof(req.NodeID, req.Success)
	if errors.Is(err, reliability.ErrNodeNotFound) {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "unknown node")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "proof processing failed")
		return
	}

	h.updateNodeGauges()
	h.persistBestEffort(r.Context())

	WriteJSON(w, http.StatusOK, node)
}

// ListNodesResponse wraps the node listing.
type ListNodesResponse struct {
	Nodes []*reliability.Node `json:"nodes"`
	Count int                 `json:"count"`
}

// HandleListNodes lists registered nodes, optionally filtered by status and
// region. Listing is a read: it reflects timeouts already observed but does
// not itself transition nodes.
// GET /v1/nodes
func (h *Handler) HandleListNodes(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatus(r.URL.Query().Get("status"))
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown status filter")
		return
	}
	region := r.URL.Query().Get("region")

	nodes := h.registry.List(status, region)
	WriteJSON(w, http.StatusOK, ListNodesResponse{Nodes: nodes, Count: len(nodes)})
}

// HandleGetNode returns one node record.
// GET /v1/nodes/{node_id}
func (h *Handler) HandleGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "node_id")
	node, err := h.registry.Get(id)
	if errors.Is(err, reliability.ErrNodeNotFound) {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "unknown node")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "node lookup failed")
		return
	}
	WriteJSON(w, http.StatusOK, node)
}

func parseStatus(raw string) (reliability.Status, bool) {
	switch reliability.Status(raw) {
	case "", reliability.StatusActive, reliability.StatusProbation,
		reliability.StatusQuarantined, reliability.StatusOffline:
		return reliability.Status(raw), true
	}
	return "", false
}
