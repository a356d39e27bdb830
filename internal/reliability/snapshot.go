package reliability

import "math"

// Smoothing and normalization constants for the health profile.
const (
	// emaAlpha is the fixed smoothing factor for all EMA dimensions.
	emaAlpha = 0.3

	// anomalyNorm scales the Euclidean z-score distance into [0, 1].
	anomalyNorm = 6.0

	// Variance floors keep z-scores finite on a flat history.
	latencyVarFloor = 25.0
	pctVarFloor     = 1.0

	// latencySpikeFactor flags a latency sample this many times the EMA.
	latencySpikeFactor = 3.0
)

// Reason strings carried on a snapshot.
const (
	ReasonLatencySpike    = "latency_spike"
	ReasonUptimeDrop      = "uptime_drop"
	ReasonProofRegression = "proof_regression"
)

// Snapshot is a node's rolling health profile. It is recomputed on every
// heartbeat as a pure function of (previous snapshot, new sample), which makes
// the scoring deterministic and unit-testable without touching the registry.
type Snapshot struct {
	SampleCount  int     `json:"sample_count"`
	EMALatencyMs float64 `json:"ema_latency_ms"`
	EMAUptimePct float64 `json:"ema_uptime_pct"`
	EMAProofPct  float64 `json:"ema_proof_success_pct"`

	// Exponentially weighted variances backing the z-score computation.
	VarLatency float64 `json:"var_latency,omitempty"`
	VarUptime  float64 `json:"var_uptime,omitempty"`
	VarProof   float64 `json:"var_proof,omitempty"`

	AnomalyScore     float64  `json:"anomaly_score"`
	ReliabilityScore float64  `json:"reliability_score"`
	Reasons          []string `json:"reasons,omitempty"`
}

// UpdateSnapshot folds a new sample into the previous profile.
//
// The anomaly score is the normalized Euclidean distance of the sample's
// z-scores across latency/uptime/proof against the rolling mean and variance.
// It is monotone in each dimension's deviation: of two samples differing only
// in how far they stray from history, the more deviant one never scores lower.
// The reliability score is the base score of the updated EMAs penalized by
// the anomaly score.
func UpdateSnapshot(prev Snapshot, s Sample, w Weights) Snapshot {
	if prev.SampleCount == 0 {
		return Snapshot{
			SampleCount:      1,
			EMALatencyMs:     s.LatencyMs,
			EMAUptimePct:     s.UptimePct,
			EMAProofPct:      s.ProofSuccessPct,
			VarLatency:       latencyVarFloor,
			VarUptime:        pctVarFloor,
			VarProof:         pctVarFloor,
			AnomalyScore:     0,
			ReliabilityScore: Score(s, w),
		}
	}

	zLat := zScore(s.LatencyMs, prev.EMALatencyMs, prev.VarLatency, latencyVarFloor)
	zUp := zScore(s.UptimePct, prev.EMAUptimePct, prev.VarUptime, pctVarFloor)
	zProof := zScore(s.ProofSuccessPct, prev.EMAProofPct, prev.VarProof, pctVarFloor)

	distance := math.Sqrt(zLat*zLat + zUp*zUp + zProof*zProof)
	anomaly := clamp(distance/anomalyNorm, 0, 1)

	var reasons []string
	if zLat > 0 && prev.EMALatencyMs > 0 && s.LatencyMs >= latencySpikeFactor*prev.EMALatencyMs {
		reasons = append(reasons, ReasonLatencySpike)
	}
	if prev.EMAUptimePct-s.UptimePct > 10 {
		reasons = append(reasons, ReasonUptimeDrop)
	}
	if prev.EMAProofPct-s.ProofSuccessPct > 5 {
		reasons = append(reasons, ReasonProofRegression)
	}

	next := Snapshot{
		SampleCount:  prev.SampleCount + 1,
		EMALatencyMs: ema(prev.EMALatencyMs, s.LatencyMs),
		EMAUptimePct: ema(prev.EMAUptimePct, s.UptimePct),
		EMAProofPct:  ema(prev.EMAProofPct, s.ProofSuccessPct),
		VarLatency:   emaVar(prev.VarLatency, prev.EMALatencyMs, s.LatencyMs),
		VarUptime:    emaVar(prev.VarUptime, prev.EMAUptimePct, s.UptimePct),
		VarProof:     emaVar(prev.VarProof, prev.EMAProofPct, s.ProofSuccessPct),
		AnomalyScore: anomaly,
		Reasons:      reasons,
	}

	base := Score(Sample{
		LatencyMs:       next.EMALatencyMs,
		UptimePct:       next.EMAUptimePct,
		ProofSuccessPct: next.EMAProofPct,
	}, w)
	next.ReliabilityScore = clamp(base*(1-0.5*anomaly), 0, 100)

	return next
}

func zScore(x, mean, variance, floor float64) float64 {
	if variance < floor {
		variance = floor
	}
	return (x - mean) / math.Sqrt(variance)
}

func ema(prev, x float64) float64 {
	return prev + emaAlpha*(x-prev)
}

// emaVar is the exponentially weighted variance update paired with ema.
func emaVar(prevVar, prevMean, x float64) float64 {
	diff := x - prevMean
	return (1 - emaAlpha) * (prevVar + emaAlpha*diff*diff)
}
