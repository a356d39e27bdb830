package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/shardgate/controlplane/internal/billing"
	"github.com/shardgate/controlplane/internal/metrics"
	"github.com/shardgate/controlplane/internal/placement"
	"github.com/shardgate/controlplane/internal/reliability"
)

const defaultReplicaCount = 3

// SuggestPlacementRequest is the request body for POST /v1/placement/suggest.
type SuggestPlacementRequest struct {
	ReplicaCount int    `json:"replica_count"`
	Objective    string `json:"objective"`
}

// SuggestPlacementResponse carries the ranked, diversity-aware selection.
type SuggestPlacementResponse struct {
	Objective  placement.Objective   `json:"objective"`
	Candidates []placement.Candidate `json:"candidates"`
	Count      int                   `json:"count"`
}

// HandleSuggestPlacement picks placement candidates for a new object from the
// current fleet. Fewer candidates than requested is not an error; callers see
// what the fleet can offer.
// POST /v1/placement/suggest
func (h *Handler) HandleSuggestPlacement(w http.ResponseWriter, r *http.Request) {
	var req SuggestPlacementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	objective, err := placement.ParseObjective(req.Objective)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	count := req.ReplicaCount
	if count <= 0 {
		count = defaultReplicaCount
	}

	candidates := placement.PickCandidates(h.registry.List("", ""), count, objective)

	metrics.RecordPlacementDecision(string(objective))
	h.audit(r.Context(), "placement_decision", "", map[string]any{
		"objective": string(objective),
		"requested": count,
		"selected":  len(candidates),
	})

	WriteJSON(w, http.StatusOK, SuggestPlacementResponse{
		Objective:  objective,
		Candidates: candidates,
		Count:      len(candidates),
	})
}

// PlacementStrategyResponse is the replica-policy recommendation for a
// project's current traffic.
type PlacementStrategyResponse struct {
	ProjectID   string                  `json:"project_id,omitempty"`
	Heat        placement.Heat          `json:"heat"`
	HeatScore   float64                 `json:"heat_score"`
	NodeRiskP90 float64                 `json:"node_risk_p90"`
	Policy      placement.ReplicaPolicy `json:"policy"`
}

// HandlePlacementStrategy recommends a replica policy from the project's
// observed traffic and the fleet's risk tail.
// GET /v1/ai/placement/strategy
func (h *Handler) HandlePlacementStrategy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	objective, err := placement.ParseObjective(q.Get("objective"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	var sizeMB float64
	if raw := q.Get("object_size_mb"); raw != "" {
		parsed, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil || parsed < 0 {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "object_size_mb must be a non-negative number")
			return
		}
		sizeMB = parsed
	}

	projectID := q.Get("project_id")
	var tr placement.Traffic
	if projectID != "" {
		h.mu.Lock()
		rec, ok := h.st.Usage[projectID]
		h.mu.Unlock()
		if !ok {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "no usage recorded for project")
			return
		}
		tr = usageToTraffic(rec)
	}

	score := placement.HeatScore(tr)
	heat := placement.ClassifyHeat(score)
	riskP90 := h.fleetRiskPercentile(0.90)

	policy := placement.RecommendReplicaPolicy(placement.PolicyInput{
		Tier:         q.Get("tier"),
		Objective:    objective,
		Heat:         heat,
		NodeRiskP90:  riskP90,
		ObjectSizeMB: sizeMB,
	})

	WriteJSON(w, http.StatusOK, PlacementStrategyResponse{
		ProjectID:   projectID,
		Heat:        heat,
		HeatScore:   score,
		NodeRiskP90: riskP90,
		Policy:      policy,
	})
}

// NodeRiskResponse is the fleet risk report.
type NodeRiskResponse struct {
	Nodes   []reliability.RiskAssessment `json:"nodes"`
	RiskP50 float64                      `json:"risk_p50"`
	RiskP90 float64                      `json:"risk_p90"`
}

// HandleNodeRisk assesses every registered node and summarizes the fleet's
// risk distribution.
// GET /v1/ai/nodes/risk
func (h *Handler) HandleNodeRisk(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	policy := h.registry.Policy().Risk

	nodes := h.registry.List("", "")
	assessments := make([]reliability.RiskAssessment, 0, len(nodes))
	for _, n := range nodes {
		assessments = append(assessments, reliability.AssessRisk(n, now, policy))
	}
	sort.Slice(assessments, func(i, j int) bool {
		if assessments[i].RiskScore != assessments[j].RiskScore {
			return assessments[i].RiskScore > assessments[j].RiskScore
		}
		return assessments[i].NodeID < assessments[j].NodeID
	})

	scores := make([]float64, len(assessments))
	for i, a := range assessments {
		scores[i] = a.RiskScore
	}

	WriteJSON(w, http.StatusOK, NodeRiskResponse{
		Nodes:   assessments,
		RiskP50: percentile(scores, 0.50),
		RiskP90: percentile(scores, 0.90),
	})
}

// fleetRiskPercentile computes a percentile of current node risk scores.
func (h *Handler) fleetRiskPercentile(p float64) float64 {
	now := h.now()
	policy := h.registry.Policy().Risk

	var scores []float64
	for _, n := range h.registry.List("", "") {
		scores = append(scores, reliability.AssessRisk(n, now, policy).RiskScore)
	}
	return percentile(scores, p)
}

// percentile is the nearest-rank percentile of an unsorted sample; an empty
// sample scores zero.
func percentile(scores []float64, p float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// usageToTraffic bridges a billing record into the planner's traffic shape.
func usageToTraffic(rec billing.UsageRecord) placement.Traffic {
	return placement.Traffic{
		StorageGBHours: rec.StorageGBHours,
		EgressGB:       rec.EgressGB,
		APIOps:         rec.APIOps,
	}
}
