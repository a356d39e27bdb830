// Package placement ranks storage nodes for replica assignment. It scores
// candidates under a named objective, selects a region/ASN-diverse subset,
// and recommends a redundancy policy from traffic heat and fleet risk.
package placement

import (
	"errors"
	"fmt"

	"github.com/shardgate/controlplane/internal/reliability"
)

// Objective is a named weighting profile for candidate ranking.
type Objective string

const (
	ObjectiveLatency    Objective = "latency"
	ObjectiveDurability Objective = "durability"
	ObjectiveCost       Objective = "cost"
	ObjectiveBalanced   Objective = "balanced"
)

// ErrUnknownObjective is returned for objective strings outside the known set.
var ErrUnknownObjective = errors.New("placement: unknown objective")

// ParseObjective maps a request string to an Objective. Empty means balanced.
func ParseObjective(s string) (Objective, error) {
	switch Objective(s) {
	case ObjectiveLatency, ObjectiveDurability, ObjectiveCost, ObjectiveBalanced:
		return Objective(s), nil
	case "":
		return ObjectiveBalanced, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownObjective, s)
}

// weights is the component blend for one objective. Components are normalized
// to [0, 1] before blending, so the weights sum to 1.
type weights struct {
	reliability float64
	latency     float64
	capacity    float64
	bandwidth   float64
}

var objectiveWeights = map[Objective]weights{
	ObjectiveLatency:    {reliability: 0.25, latency: 0.55, capacity: 0.10, bandwidth: 0.10},
	ObjectiveDurability: {reliability: 0.50, latency: 0.05, capacity: 0.35, bandwidth: 0.10},
	ObjectiveCost:       {reliability: 0.20, latency: 0.05, capacity: 0.60, bandwidth: 0.15},
	ObjectiveBalanced:   {reliability: 0.35, latency: 0.25, capacity: 0.25, bandwidth: 0.15},
}

// Normalization reference points for the latency and bandwidth components.
const (
	targetLatencyMs    = 50.0
	referenceBandwidth = 1000.0
	anomalyPenalty     = 0.6
	// anomalyExclusion is the anomaly score at which a node is dropped from
	// candidate pools outright, regardless of raw score.
	anomalyExclusion = 0.7
)

// ScoreCandidate is the objective-weighted placement score in [0, 1]:
// reliability, inverse latency, available capacity ratio, and bandwidth,
// penalized by the node's anomaly score.
func ScoreCandidate(n *reliability.Node, objective Objective) float64 {
	w, ok := objectiveWeights[objective]
	if !ok {
		w = objectiveWeights[ObjectiveBalanced]
	}

	rel := clamp01(n.AI.ReliabilityScore / 100)

	lat := 1.0
	if n.LatencyMs > 0 {
		lat = clamp01(targetLatencyMs / n.LatencyMs)
	}

	capRatio := 0.0
	if n.CapacityGB > 0 {
		capRatio = clamp01(n.AvailableGB / n.CapacityGB)
	}

	bw := clamp01(n.BandwidthMbps / referenceBandwidth)

	score := w.reliability*rel + w.latency*lat + w.capacity*capRatio + w.bandwidth*bw
	score *= 1 - anomalyPenalty*clamp01(n.AI.AnomalyScore)
	return clamp01(score)
}

// Eligible reports whether a node may appear in candidate pools at all:
// quarantined, offline, and anomalous nodes are excluded outright.
func Eligible(n *reliability.Node) bool {
	switch n.Status {
	case reliability.StatusQuarantined, reliability.StatusOffline:
		return false
	}
	return n.AI.AnomalyScore < anomalyExclusion
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
