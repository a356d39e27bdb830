package reliability

import (
	"slices"
	"testing"
	"time"
)

func TestAssessRisk_HealthyBelowDegraded(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p := DefaultRiskPolicy()

	healthy := &Node{
		ID:              "node-healthy",
		CapacityGB:      1000,
		AvailableGB:     700,
		LastHeartbeatAt: now.Add(-30 * time.Second),
		Status:          StatusActive,
		AI:              Snapshot{ReliabilityScore: 97, AnomalyScore: 0.05},
	}
	degraded := &Node{
		ID:              "node-degraded",
		CapacityGB:      1000,
		AvailableGB:     20,
		LastHeartbeatAt: now.Add(-25 * time.Minute),
		Status:          StatusActive,
		AI:              Snapshot{ReliabilityScore: 40, AnomalyScore: 0.85},
	}

	h := AssessRisk(healthy, now, p)
	d := AssessRisk(degraded, now, p)

	if h.RiskScore >= d.RiskScore {
		t.Errorf("healthy risk %.2f not below degraded risk %.2f", h.RiskScore, d.RiskScore)
	}
	if len(h.Reasons) != 0 {
		t.Errorf("healthy node should carry no reasons, got %v", h.Reasons)
	}

	for _, want := range []string{ReasonLowReliability, ReasonStaleHeartbeat, ReasonCapacityPressure, ReasonAnomalousBehavior} {
		if !slices.Contains(d.Reasons, want) {
			t.Errorf("degraded node missing reason %q, got %v", want, d.Reasons)
		}
	}
}

func TestAssessRisk_Bounds(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p := DefaultRiskPolicy()

	nodes := []*Node{
		{ID: "best", CapacityGB: 1000, AvailableGB: 1000, LastHeartbeatAt: now, AI: Snapshot{ReliabilityScore: 100}},
		{ID: "worst", CapacityGB: 1000, AvailableGB: 0, LastHeartbeatAt: now.Add(-24 * time.Hour), AI: Snapshot{ReliabilityScore: 0, AnomalyScore: 1}},
	}
	for _, n := range nodes {
		a := AssessRisk(n, now, p)
		if a.RiskScore < 0 || a.RiskScore > 100 {
			t.Errorf("%s: risk %.2f out of [0, 100]", n.ID, a.RiskScore)
		}
	}
}

func TestAssessRisk_StalenessRampAndCliff(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p := DefaultRiskPolicy()

	base := Node{ID: "n", CapacityGB: 1000, AvailableGB: 1000, AI: Snapshot{ReliabilityScore: 100}}

	ages := []time.Duration{0, time.Minute, 4 * time.Minute, 6 * time.Minute, 20 * time.Minute}
	var prev float64 = -1
	for _, age := range ages {
		n := base
		n.LastHeartbeatAt = now.Add(-age)
		a := AssessRisk(&n, now, p)
		if a.RiskScore < prev {
			t.Errorf("risk decreased at age %v: %.2f < %.2f", age, a.RiskScore, prev)
		}
		prev = a.RiskScore
	}

	fresh := base
	fresh.LastHeartbeatAt = now.Add(-time.Minute)
	stale := base
	stale.LastHeartbeatAt = now.Add(-10 * time.Minute)

	if slices.Contains(AssessRisk(&fresh, now, p).Reasons, ReasonStaleHeartbeat) {
		t.Error("fresh node flagged stale")
	}
	if !slices.Contains(AssessRisk(&stale, now, p).Reasons, ReasonStaleHeartbeat) {
		t.Error("stale node not flagged stale")
	}
}

func TestAssessRisk_OfflineReason(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	n := &Node{
		ID:              "n",
		CapacityGB:      1000,
		AvailableGB:     500,
		LastHeartbeatAt: now.Add(-2 * time.Hour),
		Status:          StatusOffline,
		AI:              Snapshot{ReliabilityScore: 80},
	}
	a := AssessRisk(n, now, DefaultRiskPolicy())
	if !slices.Contains(a.Reasons, ReasonOffline) {
		t.Errorf("offline node missing offline reason, got %v", a.Reasons)
	}
}
