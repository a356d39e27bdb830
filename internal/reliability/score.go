package reliability

// Sample is one raw health report from a node heartbeat.
type Sample struct {
	LatencyMs       float64 `json:"latency_ms"`
	UptimePct       float64 `json:"uptime_pct"`
	ProofSuccessPct float64 `json:"proof_success_pct"`
}

// Weights shape the base node score. Uptime and proof success contribute
// directly; latency contributes inversely, scaled against a target latency.
type Weights struct {
	Uptime          float64
	Latency         float64
	Proof           float64
	TargetLatencyMs float64
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{Uptime: 0.4, Latency: 0.3, Proof: 0.3, TargetLatencyMs: 100}
}

// Score combines a sample into a clamped [0, 100] node score. Healthy nodes
// (>=99% uptime, <100ms latency, >=99% proof success) land at 80 or above;
// degraded nodes (<80% uptime, >500ms latency, <90% proof success) land at 70
// or below.
func Score(s Sample, w Weights) float64 {
	uptime := clamp(s.UptimePct, 0, 100)
	proof := clamp(s.ProofSuccessPct, 0, 100)

	latency := s.LatencyMs
	if latency < 0 {
		latency = 0
	}
	target := w.TargetLatencyMs
	if target <= 0 {
		target = 1
	}
	// Strictly decreasing in latency: 100 at zero, 50 at target, tending to
	// zero. Never saturates, so faster nodes always outscore slower ones.
	latencyComponent := 100 * target / (target + latency)

	return clamp(w.Uptime*uptime+w.Latency*latencyComponent+w.Proof*proof, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
