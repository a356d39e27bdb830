package reliability

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNodeNotFound is returned for operations on unregistered nodes.
var ErrNodeNotFound = errors.New("reliability: node not found")

// Policy holds the tunable constants for scoring and status transitions.
// The exact cutoffs are policy, not contract; the transition shape (a fixed
// small state set with health-driven edges) is the contract.
type Policy struct {
	Weights Weights
	Risk    RiskPolicy

	// LowScoreThreshold marks a heartbeat as a low-score event.
	LowScoreThreshold float64
	// HealthyScoreThreshold marks a heartbeat as healthy (with low anomaly).
	HealthyScoreThreshold float64
	// HealthyAnomalyMax is the anomaly ceiling for a healthy heartbeat.
	HealthyAnomalyMax float64

	// ProbationAfterLowScores moves active nodes to probation after this many
	// consecutive low-score heartbeats.
	ProbationAfterLowScores int
	// ProbationRecovery returns probation nodes to active after this many
	// consecutive healthy heartbeats.
	ProbationRecovery int
	// QuarantineRecovery returns quarantined nodes to active after this many
	// consecutive healthy heartbeats.
	QuarantineRecovery int

	// QuarantineAnomaly and QuarantineProofPct gate the probation->quarantine
	// edge: anomalous behavior combined with proof failure.
	QuarantineAnomaly  float64
	QuarantineProofPct float64

	// OfflineTimeout is the heartbeat age past which a node reads as offline.
	OfflineTimeout time.Duration
}

// DefaultPolicy returns the production transition tuning.
func DefaultPolicy() Policy {
	return Policy{
		Weights:                 DefaultWeights(),
		Risk:                    DefaultRiskPolicy(),
		LowScoreThreshold:       60,
		HealthyScoreThreshold:   80,
		HealthyAnomalyMax:       0.3,
		ProbationAfterLowScores: 3,
		ProbationRecovery:       3,
		QuarantineRecovery:      5,
		QuarantineAnomaly:       0.8,
		QuarantineProofPct:      90,
		OfflineTimeout:          30 * time.Minute,
	}
}

// Registry is the in-memory node registry. It is an explicit store passed
// into handlers rather than a package-level global, so tests construct
// isolated instances. Heartbeats for different nodes proceed independently;
// each update computes the replacement record outside any cross-node lock and
// swaps it in atomically.
type Registry struct {
	policy Policy
	now    func() time.Time

	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewRegistry creates an empty registry with the given policy.
func NewRegistry(policy Policy) *Registry {
	return &Registry{policy: policy, now: time.Now, nodes: make(map[string]*Node)}
}

// WithClock overrides the time source. Used by tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Policy returns the registry's policy constants.
func (r *Registry) Policy() Policy { return r.policy }

// Register adds a node or refreshes the registration fields of an existing
// one. Health history survives re-registration.
func (r *Registry) Register(n *Node) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nodes[n.ID]; ok {
		next := existing.Clone()
		next.Wallet = n.Wallet
		next.Region = n.Region
		next.ASN = n.ASN
		next.CapacityGB = n.CapacityGB
		next.AvailableGB = n.AvailableGB
		next.BandwidthMbps = n.BandwidthMbps
		r.nodes[n.ID] = next
		return next.Clone()
	}

	next := n.Clone()
	next.Status = StatusActive
	next.LastHeartbeatAt = r.now()
	r.nodes[next.ID] = next
	return next.Clone()
}

// ApplyHeartbeat folds a health sample into the node's record: score, AI
// snapshot, streaks, and status transitions are all recomputed from
// (previous record, sample) and written back as one replacement.
func (r *Registry) ApplyHeartbeat(id string, s Sample, availableGB float64) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}

	next := advance(prev, s, r.now(), r.policy)
	if availableGB >= 0 {
		next.AvailableGB = availableGB
	}
	r.nodes[id] = next
	return next.Clone(), nil
}

// ApplyProof records a storage-proof outcome. Success and failure move the
// proof-success rate; failures also count toward payout penalties, and a
// failed proof on an anomalous probation node quarantines it.
func (r *Registry) ApplyProof(id string, success bool) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}

	next := prev.Clone()
	outcome := 0.0
	if success {
		outcome = 100.0
	} else {
		next.ProofFailures++
	}
	if next.ProofSuccessPct == 0 && next.AI.SampleCount == 0 {
		next.ProofSuccessPct = outcome
	} else {
		next.ProofSuccessPct = ema(next.ProofSuccessPct, outcome)
	}

	if !success && next.Status == StatusProbation && next.AI.AnomalyScore >= r.policy.QuarantineAnomaly {
		next.Status = StatusQuarantined
		next.HealthyStreak = 0
	}

	r.nodes[id] = next
	return next.Clone(), nil
}

// Get returns the node, first applying the offline check; a node whose last
// heartbeat is older than the timeout reads as offline. The check runs on
// reads rather than on a ticker, keeping all bookkeeping reactive.
func (r *Registry) Get(id string) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	n = r.markOfflineLocked(n)
	return n.Clone(), nil
}

// List returns all nodes, optionally filtered by status and region, sorted by
// id for stable output.
func (r *Registry) List(status Status, region string) []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		n = r.markOfflineLocked(n)
		if status != "" && n.Status != status {
			continue
		}
		if region != "" && n.Region != region {
			continue
		}
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Export snapshots the registry for persistence.
func (r *Registry) Export() map[string]*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Node, len(r.nodes))
	for id, n := range r.nodes {
		out[id] = n.Clone()
	}
	return out
}

// Load seeds the registry from persisted state, replacing current contents.
func (r *Registry) Load(nodes map[string]*Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes = make(map[string]*Node, len(nodes))
	for id, n := range nodes {
		r.nodes[id] = n.Clone()
	}
}

// markOfflineLocked applies the heartbeat-timeout edge. Caller holds r.mu.
func (r *Registry) markOfflineLocked(n *Node) *Node {
	if n.Status == StatusOffline || r.policy.OfflineTimeout <= 0 {
		return n
	}
	if r.now().Sub(n.LastHeartbeatAt) > r.policy.OfflineTimeout {
		next := n.Clone()
		next.Status = StatusOffline
		next.HealthyStreak = 0
		r.nodes[n.ID] = next
		return next
	}
	return n
}

// advance is the pure heartbeat transition: (previous record, sample) -> next
// record. The caller swaps the result in under the registry lock.
func advance(prev *Node, s Sample, now time.Time, p Policy) *Node {
	next := prev.Clone()
	next.LatencyMs = s.LatencyMs
	next.UptimePct = s.UptimePct
	next.ProofSuccessPct = s.ProofSuccessPct
	next.LastHeartbeatAt = now
	next.Score = Score(s, p.Weights)
	next.AI = UpdateSnapshot(prev.AI, s, p.Weights)

	healthy := next.Score >= p.HealthyScoreThreshold && next.AI.AnomalyScore <= p.HealthyAnomalyMax
	if healthy {
		next.HealthyStreak++
		next.LowScoreStreak = 0
	} else {
		next.HealthyStreak = 0
		if next.Score < p.LowScoreThreshold {
			next.LowScoreStreak++
		}
	}

	switch prev.Status {
	case StatusActive:
		if next.LowScoreStreak >= p.ProbationAfterLowScores {
			next.Status = StatusProbation
		}
	case StatusProbation:
		switch {
		case next.AI.AnomalyScore >= p.QuarantineAnomaly && s.ProofSuccessPct < p.QuarantineProofPct:
			next.Status = StatusQuarantined
			next.HealthyStreak = 0
		case next.HealthyStreak >= p.ProbationRecovery:
			next.Status = StatusActive
			next.LowScoreStreak = 0
		}
	case StatusQuarantined:
		if next.HealthyStreak >= p.QuarantineRecovery {
			next.Status = StatusActive
			next.LowScoreStreak = 0
		}
	case StatusOffline:
		// A returning heartbeat puts the node back through probation rather
		// than straight into placement eligibility.
		next.Status = StatusProbation
		next.HealthyStreak = 0
	}

	return next
}
