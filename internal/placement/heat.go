package placement

// Heat classifies how intensively data is being accessed; hotter data gets
// more redundancy.
type Heat string

const (
	HeatCold    Heat = "cold"
	HeatWarm    Heat = "warm"
	HeatHot     Heat = "hot"
	HeatBlazing Heat = "blazing"
)

// Traffic is recent access intensity for a project or object class.
type Traffic struct {
	StorageGBHours float64 `json:"storage_gb_hours"`
	EgressGB       float64 `json:"egress_gb"`
	APIOps         float64 `json:"api_ops"`
}

// Heat blend weights and saturation reference points: the reference is the
// volume at which a component contributes half its weight.
const (
	heatWeightStorage = 0.30
	heatWeightEgress  = 0.40
	heatWeightOps     = 0.30

	heatRefStorageGBHours = 10_000.0
	heatRefEgressGB       = 500.0
	heatRefAPIOps         = 1_000_000.0
)

// HeatScore maps traffic onto [0, 1). Each component saturates smoothly, so
// the score is strictly monotone in every input.
func HeatScore(tr Traffic) float64 {
	return heatWeightStorage*saturate(tr.StorageGBHours, heatRefStorageGBHours) +
		heatWeightEgress*saturate(tr.EgressGB, heatRefEgressGB) +
		heatWeightOps*saturate(tr.APIOps, heatRefAPIOps)
}

// ClassifyHeat buckets a heat score.
func ClassifyHeat(score float64) Heat {
	switch {
	case score < 0.25:
		return HeatCold
	case score < 0.5:
		return HeatWarm
	case score < 0.75:
		return HeatHot
	default:
		return HeatBlazing
	}
}

func saturate(x, ref float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (x + ref)
}

func heatLevel(h Heat) int {
	switch h {
	case HeatWarm:
		return 1
	case HeatHot:
		return 2
	case HeatBlazing:
		return 3
	}
	return 0
}

// ReplicaPolicy is the recommended redundancy for a traffic class.
type ReplicaPolicy struct {
	ReplicaCount   int    `json:"replica_count"`
	ErasureProfile string `json:"erasure_profile"`
}

// PolicyInput feeds a replica-policy recommendation.
type PolicyInput struct {
	Tier         string    `json:"tier"`
	Objective    Objective `json:"objective"`
	Heat         Heat      `json:"heat"`
	NodeRiskP90  float64   `json:"node_risk_p90"`
	ObjectSizeMB float64   `json:"object_size_mb"`
}

const (
	minReplicas = 2
	maxReplicas = 8
	// erasureSizeCutoffMB: objects below this replicate whole; above it they
	// are striped with Reed-Solomon.
	erasureSizeCutoffMB = 64.0
)

// RecommendReplicaPolicy turns heat, fleet risk, and the objective into a
// redundancy recommendation. The replica count rises monotonically with heat
// and with p90 node risk, and a latency objective recommends more copies than
// a cost objective for the same traffic.
func RecommendReplicaPolicy(in PolicyInput) ReplicaPolicy {
	count := minReplicas + heatLevel(in.Heat)

	switch {
	case in.NodeRiskP90 >= 70:
		count += 2
	case in.NodeRiskP90 >= 40:
		count++
	}

	switch in.Objective {
	case ObjectiveLatency, ObjectiveDurability:
		count++
	case ObjectiveCost:
		count--
	}

	if count < minReplicas {
		count = minReplicas
	}
	if count > maxReplicas {
		count = maxReplicas
	}

	profile := "replicate"
	if in.ObjectSizeMB >= erasureSizeCutoffMB {
		switch {
		case count <= 3:
			profile = "rs-4-6"
		case count <= 5:
			profile = "rs-6-10"
		default:
			profile = "rs-8-14"
		}
	}

	return ReplicaPolicy{ReplicaCount: count, ErasureProfile: profile}
}
