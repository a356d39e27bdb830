package reliability

import "time"

// Risk reason strings.
const (
	ReasonLowReliability    = "low_reliability"
	ReasonStaleHeartbeat    = "stale_heartbeat"
	ReasonCapacityPressure  = "capacity_pressure"
	ReasonAnomalousBehavior = "anomalous_behavior"
	ReasonOffline           = "offline"
)

// RiskPolicy tunes the risk computation.
type RiskPolicy struct {
	// StalenessThreshold is the heartbeat age after which risk rises sharply.
	StalenessThreshold time.Duration
	// AnomalyAlert is the anomaly score that earns an explanatory reason.
	AnomalyAlert float64
}

// DefaultRiskPolicy returns the production risk tuning.
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{StalenessThreshold: 5 * time.Minute, AnomalyAlert: 0.6}
}

// RiskAssessment is a node's composite risk with explanations.
type RiskAssessment struct {
	NodeID    string   `json:"node_id"`
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"reasons"`
}

// Component weights of the risk blend.
const (
	riskWeightReliability = 0.35
	riskWeightStaleness   = 0.30
	riskWeightCapacity    = 0.15
	riskWeightAnomaly     = 0.20
)

// AssessRisk combines inverse reliability, heartbeat staleness, capacity
// pressure, and the anomaly score into a [0, 100] risk score. A degraded,
// stale, anomalous node scores strictly higher than a healthy fresh one, and
// carries reasons naming each contributing factor.
func AssessRisk(n *Node, now time.Time, p RiskPolicy) RiskAssessment {
	invReliability := clamp((100-n.AI.ReliabilityScore)/100, 0, 1)

	age := now.Sub(n.LastHeartbeatAt)
	var staleness float64
	if p.StalenessThreshold > 0 {
		if age <= p.StalenessThreshold {
			staleness = 0.5 * float64(age) / float64(p.StalenessThreshold)
		} else {
			// Past the threshold risk rises sharply.
			staleness = 0.5 + float64(age-p.StalenessThreshold)/float64(p.StalenessThreshold)
		}
		staleness = clamp(staleness, 0, 1)
	}

	pressure := n.CapacityPressure()
	anomaly := clamp(n.AI.AnomalyScore, 0, 1)

	score := 100 * (riskWeightReliability*invReliability +
		riskWeightStaleness*staleness +
		riskWeightCapacity*pressure +
		riskWeightAnomaly*anomaly)

	var reasons []string
	if invReliability > 0.3 {
		reasons = append(reasons, ReasonLowReliability)
	}
	if age > p.StalenessThreshold {
		reasons = append(reasons, ReasonStaleHeartbeat)
	}
	if pressure > 0.9 {
		reasons = append(reasons, ReasonCapacityPressure)
	}
	if anomaly >= p.AnomalyAlert {
		reasons = append(reasons, ReasonAnomalousBehavior)
	}
	if n.Status == StatusOffline {
		reasons = append(reasons, ReasonOffline)
	}

	return RiskAssessment{NodeID: n.ID, RiskScore: clamp(score, 0, 100), Reasons: reasons}
}
