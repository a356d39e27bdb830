package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/shardgate/controlplane/internal/reliability"
)

// TestEstimateProjectBill_ArchiveExample: 2 TB stored for a full month plus
// 1 TB egress plus 2.5M API ops on the archive tier comes to exactly $23.
func TestEstimateProjectBill_ArchiveExample(t *testing.T) {
	t.Parallel()
	usage := UsageRecord{
		StorageGBHours: 720 * 1024 * 2,
		EgressGB:       1024,
		APIOps:         2_500_000,
	}

	b, err := EstimateProjectBill(usage, TierArchive)
	if err != nil {
		t.Fatalf("EstimateProjectBill failed: %v", err)
	}

	if b.StorageTBMonth != 2 {
		t.Errorf("storage_tb_month = %v, want 2", b.StorageTBMonth)
	}
	if b.EgressTB != 1 {
		t.Errorf("egress_tb = %v, want 1", b.EgressTB)
	}
	if b.StorageUSD != 14 {
		t.Errorf("storage_usd = %v, want 14", b.StorageUSD)
	}
	if b.EgressUSD != 8 {
		t.Errorf("egress_usd = %v, want 8", b.EgressUSD)
	}
	if b.APIUSD != 1 {
		t.Errorf("api_usd = %v, want 1", b.APIUSD)
	}
	if b.TotalUSD != 23 {
		t.Errorf("total_usd = %v, want 23", b.TotalUSD)
	}
}

func TestEstimateProjectBill_FreeTierIsZero(t *testing.T) {
	t.Parallel()
	b, err := EstimateProjectBill(UsageRecord{StorageGBHours: 720 * 1024, EgressGB: 512, APIOps: 1e6}, TierFree)
	if err != nil {
		t.Fatalf("EstimateProjectBill failed: %v", err)
	}
	if b.TotalUSD != 0 {
		t.Errorf("free tier total = %v, want 0", b.TotalUSD)
	}
}

func TestEstimateProjectBill_UnknownTier(t *testing.T) {
	t.Parallel()
	if _, err := EstimateProjectBill(UsageRecord{}, Tier("platinum")); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("expected ErrUnknownTier, got %v", err)
	}
}

func TestParseTier(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"free", "pro", "enterprise", "archive", "active"} {
		got, err := ParseTier(s)
		if err != nil || got != Tier(s) {
			t.Errorf("ParseTier(%q) = %q, %v", s, got, err)
		}
	}
	if got, err := ParseTier(""); err != nil || got != TierFree {
		t.Errorf("ParseTier(\"\") = %q, %v, want free", got, err)
	}
	if _, err := ParseTier("platinum"); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("expected ErrUnknownTier, got %v", err)
	}
}

func TestAccumulate(t *testing.T) {
	t.Parallel()
	rec := UsageRecord{}
	rec = Accumulate(rec, UsageRecord{StorageGBHours: 100, EgressGB: 10, APIOps: 1000}, "2026-08")
	rec = Accumulate(rec, UsageRecord{StorageGBHours: 50, EgressGB: 5, APIOps: 500}, "2026-08")

	if rec.StorageGBHours != 150 || rec.EgressGB != 15 || rec.APIOps != 1500 {
		t.Errorf("accumulation wrong: %+v", rec)
	}
	if rec.Period != "2026-08" {
		t.Errorf("period = %q, want 2026-08", rec.Period)
	}

	// Rollover starts fresh rather than carrying counters over.
	rec = Accumulate(rec, UsageRecord{EgressGB: 1}, "2026-09")
	if rec.Period != "2026-09" || rec.EgressGB != 1 || rec.StorageGBHours != 0 {
		t.Errorf("rollover wrong: %+v", rec)
	}
}

func TestPeriodOf(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	if got := PeriodOf(at); got != "2026-08" {
		t.Errorf("PeriodOf = %q, want 2026-08", got)
	}
}

func TestEstimateNodePayout_QualityMultiplier(t *testing.T) {
	t.Parallel()
	served := UsageRecord{StorageGBHours: 720 * 1024 * 4, EgressGB: 2048}

	strong := &reliability.Node{ID: "strong", Wallet: "0xaa", Score: 96}
	weak := &reliability.Node{ID: "weak", Wallet: "0xbb", Score: 40}

	ps := EstimateNodePayout(strong, served, 0)
	pw := EstimateNodePayout(weak, served, 0)

	if ps.QualityMultiplier <= 1 {
		t.Errorf("score above threshold should earn multiplier > 1, got %v", ps.QualityMultiplier)
	}
	if pw.QualityMultiplier >= 1 {
		t.Errorf("score below threshold should earn multiplier < 1, got %v", pw.QualityMultiplier)
	}
	if ps.TotalUSD <= pw.TotalUSD {
		t.Errorf("stronger node paid %.2f, weaker paid %.2f", ps.TotalUSD, pw.TotalUSD)
	}
}

func TestEstimateNodePayout_MultiplierClamps(t *testing.T) {
	t.Parallel()
	served := UsageRecord{EgressGB: 1024}

	perfect := EstimateNodePayout(&reliability.Node{ID: "p", Score: 100000}, served, 0)
	if perfect.QualityMultiplier != 1.25 {
		t.Errorf("multiplier ceiling = %v, want 1.25", perfect.QualityMultiplier)
	}
	dead := EstimateNodePayout(&reliability.Node{ID: "d", Score: 0}, served, 0)
	if dead.QualityMultiplier != 0.25 {
		t.Errorf("multiplier floor = %v, want 0.25", dead.QualityMultiplier)
	}
}

func TestEstimateNodePayout_NeverNegative(t *testing.T) {
	t.Parallel()
	n := &reliability.Node{ID: "n", Score: 80}
	p := EstimateNodePayout(n, UsageRecord{EgressGB: 1}, 10_000)
	if p.TotalUSD != 0 {
		t.Errorf("payout went negative: %v", p.TotalUSD)
	}
	if p.PenaltyUSD != 500 {
		t.Errorf("penalty = %v, want 500", p.PenaltyUSD)
	}
}

func TestRatesFor_AllTiersPresent(t *testing.T) {
	t.Parallel()
	for _, tier := range []Tier{TierFree, TierPro, TierEnterprise, TierArchive, TierActive} {
		if _, err := RatesFor(tier); err != nil {
			t.Errorf("RatesFor(%q) failed: %v", tier, err)
		}
	}
}
