package billing

import "github.com/shardgate/controlplane/internal/reliability"

// Node payout rates and quality tuning. The quality multiplier crosses 1.0 at
// the score threshold, rewarding nodes above it and docking those below, with
// a floor so a struggling node still earns something for bytes actually
// served.
const (
	payoutStorageUSDPerTBMonth = 1.50
	payoutEgressUSDPerTB       = 2.00
	payoutScoreThreshold       = 80.0
	payoutMultiplierFloor      = 0.25
	payoutMultiplierCeiling    = 1.25
	proofFailurePenaltyUSD     = 0.05
)

// Payout is one node's payout preview for a period.
type Payout struct {
	NodeID            string  `json:"node_id"`
	Wallet            string  `json:"wallet"`
	BaseUSD           float64 `json:"base_usd"`
	QualityMultiplier float64 `json:"quality_multiplier"`
	PenaltyUSD        float64 `json:"penalty_usd"`
	TotalUSD          float64 `json:"total_usd"`
}

// EstimateNodePayout previews a node's payout: base pay proportional to the
// usage it served, scaled by a score-derived quality multiplier, minus a
// per-failed-proof penalty. The result is never negative.
func EstimateNodePayout(n *reliability.Node, served UsageRecord, proofFailures int64) Payout {
	storageTBMonth := served.StorageGBHours / (hoursPerMonth * gbPerTB)
	egressTB := served.EgressGB / gbPerTB
	base := storageTBMonth*payoutStorageUSDPerTBMonth + egressTB*payoutEgressUSDPerTB

	multiplier := n.Score / payoutScoreThreshold
	if multiplier < payoutMultiplierFloor {
		multiplier = payoutMultiplierFloor
	}
	if multiplier > payoutMultiplierCeiling {
		multiplier = payoutMultiplierCeiling
	}

	penalty := float64(proofFailures) * proofFailurePenaltyUSD

	total := base*multiplier - penalty
	if total < 0 {
		total = 0
	}

	return Payout{
		NodeID:            n.ID,
		Wallet:            n.Wallet,
		BaseUSD:           roundCents(base),
		QualityMultiplier: multiplier,
		PenaltyUSD:        roundCents(penalty),
		TotalUSD:          roundCents(total),
	}
}
