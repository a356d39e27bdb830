// Package billing turns accumulated usage into monthly bill estimates and
// per-node payout previews. Everything here is pure arithmetic over a fixed
// rate table; no hidden state, no I/O.
package billing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Tier is a project pricing tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
	TierArchive    Tier = "archive"
	TierActive     Tier = "active"
)

// ErrUnknownTier is returned for tier strings outside the known set.
var ErrUnknownTier = errors.New("billing: unknown tier")

// ParseTier maps a request string to a Tier. Empty means free.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPro, TierEnterprise, TierArchive, TierActive:
		return Tier(s), nil
	case "":
		return TierFree, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Rates is the per-tier price card.
type Rates struct {
	StorageUSDPerTBMonth float64 `json:"storage_usd_per_tb_month"`
	EgressUSDPerTB       float64 `json:"egress_usd_per_tb"`
	APIUSDPerMillionOps  float64 `json:"api_usd_per_million_ops"`
}

var tierRates = map[Tier]Rates{
	TierFree:       {StorageUSDPerTBMonth: 0, EgressUSDPerTB: 0, APIUSDPerMillionOps: 0},
	TierPro:        {StorageUSDPerTBMonth: 10, EgressUSDPerTB: 10, APIUSDPerMillionOps: 0.50},
	TierEnterprise: {StorageUSDPerTBMonth: 8, EgressUSDPerTB: 7, APIUSDPerMillionOps: 0.35},
	TierArchive:    {StorageUSDPerTBMonth: 7, EgressUSDPerTB: 8, APIUSDPerMillionOps: 0.40},
	TierActive:     {StorageUSDPerTBMonth: 12, EgressUSDPerTB: 12, APIUSDPerMillionOps: 0.60},
}

// AllTiers lists the known tiers in a stable order.
func AllTiers() []Tier {
	return []Tier{TierFree, TierPro, TierEnterprise, TierArchive, TierActive}
}

// RatesFor returns the price card for a tier.
func RatesFor(tier Tier) (Rates, error) {
	r, ok := tierRates[tier]
	if !ok {
		return Rates{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return r, nil
}

const (
	hoursPerMonth = 720.0
	gbPerTB       = 1024.0
)

// UsageRecord is a project's accumulated usage within one billing period.
// Counters only grow within a period; a new period starts a fresh record.
type UsageRecord struct {
	Period         string  `json:"period"`
	StorageGBHours float64 `json:"storage_gb_hours"`
	EgressGB       float64 `json:"egress_gb"`
	APIOps         float64 `json:"api_ops"`
}

// PeriodOf formats the billing period key for a point in time.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Accumulate folds a usage delta into a record. A period change starts a new
// record rather than carrying counters across the rollover.
func Accumulate(rec UsageRecord, delta UsageRecord, period string) UsageRecord {
	if rec.Period != period {
		rec = UsageRecord{Period: period}
	}
	rec.StorageGBHours += delta.StorageGBHours
	rec.EgressGB += delta.EgressGB
	rec.APIOps += delta.APIOps
	return rec
}

// Bill is a monthly billing estimate.
type Bill struct {
	Tier           Tier    `json:"tier"`
	StorageTBMonth float64 `json:"storage_tb_month"`
	EgressTB       float64 `json:"egress_tb"`
	APIOps         float64 `json:"api_ops"`
	StorageUSD     float64 `json:"storage_usd"`
	EgressUSD      float64 `json:"egress_usd"`
	APIUSD         float64 `json:"api_usd"`
	TotalUSD       float64 `json:"total_usd"`
}

// EstimateProjectBill converts accumulated usage into a monthly estimate:
// GB-hours to TB-months, egress GB to TB, ops to per-million charges, priced
// against the tier's rate card. Line items and the total are rounded to cents.
func EstimateProjectBill(usage UsageRecord, tier Tier) (Bill, error) {
	rates, err := RatesFor(tier)
	if err != nil {
		return Bill{}, err
	}

	storageTBMonth := usage.StorageGBHours / (hoursPerMonth * gbPerTB)
	egressTB := usage.EgressGB / gbPerTB

	b := Bill{
		Tier:           tier,
		StorageTBMonth: storageTBMonth,
		EgressTB:       egressTB,
		APIOps:         usage.APIOps,
		StorageUSD:     roundCents(storageTBMonth * rates.StorageUSDPerTBMonth),
		EgressUSD:      roundCents(egressTB * rates.EgressUSDPerTB),
		APIUSD:         roundCents(usage.APIOps / 1e6 * rates.APIUSDPerMillionOps),
	}
	b.TotalUSD = roundCents(b.StorageUSD + b.EgressUSD + b.APIUSD)
	return b, nil
}

func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
