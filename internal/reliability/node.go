// Package reliability tracks storage-node health. It turns registration and
// heartbeat/proof reports into a per-node exponentially weighted health
// profile, a reliability score, an anomaly score, and a composite risk score,
// and drives the node status state machine.
package reliability

import "time"

// Status is a node lifecycle state. Transitions are event-driven by incoming
// heartbeats and proofs, not by timers.
type Status string

const (
	// StatusActive nodes are eligible for placement.
	StatusActive Status = "active"
	// StatusProbation nodes had a sustained run of low scores.
	StatusProbation Status = "probation"
	// StatusQuarantined nodes combined anomalous behavior with proof failures.
	StatusQuarantined Status = "quarantined"
	// StatusOffline nodes missed heartbeats past the timeout.
	StatusOffline Status = "offline"
)

// Node is a registered storage provider. Nodes are never hard-deleted, only
// marked offline or quarantined. Records are treated as immutable values and
// replaced wholesale on update, which keeps scoring logic pure and testable.
type Node struct {
	ID            string  `json:"node_id"`
	Wallet        string  `json:"wallet"`
	Region        string  `json:"region"`
	ASN           int     `json:"asn"`
	CapacityGB    float64 `json:"capacity_gb"`
	AvailableGB   float64 `json:"available_gb"`
	BandwidthMbps float64 `json:"bandwidth_mbps"`

	Score           float64   `json:"score"`
	LatencyMs       float64   `json:"latency_ms"`
	UptimePct       float64   `json:"uptime_pct"`
	ProofSuccessPct float64   `json:"proof_success_pct"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Status          Status    `json:"status"`

	AI Snapshot `json:"ai"`

	// Streak counters feeding the status transitions.
	HealthyStreak  int `json:"healthy_streak,omitempty"`
	LowScoreStreak int `json:"low_score_streak,omitempty"`

	// ProofFailures counts failed storage proofs, used for payout penalties.
	ProofFailures int64 `json:"proof_failures,omitempty"`
}

// Clone returns a deep copy of the node record.
func (n *Node) Clone() *Node {
	out := *n
	out.AI.Reasons = append([]string(nil), n.AI.Reasons...)
	return &out
}

// CapacityPressure is how full the node is, in [0, 1].
func (n *Node) CapacityPressure() float64 {
	if n.CapacityGB <= 0 {
		return 0
	}
	p := 1 - n.AvailableGB/n.CapacityGB
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
