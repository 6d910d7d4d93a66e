package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/smallbiznis/metering/internal/rateplan/domain"
)

var today = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func ptr[T any](v T) *T { return &v }

func TestFlatFeeWithOverage(t *testing.T) {
	plan := &domain.RatePlan{
		BillingFrequency: "MONTHLY",
		FlatFee: &domain.FlatFee{
			Amount:        dec("100"),
			IncludedUnits: 1000,
			OverageRate:   dec("0.10"),
		},
	}

	result := Price(plan, 1250, today)
	assert.Equal(t, "125", result.Total.String())
	assert.Equal(t, int64(1250), result.EventCount)
	assert.Equal(t, "MONTHLY", result.ModelType)
	assert.Len(t, result.Breakdown, 2)
	assert.Equal(t, "Flat Fee", result.Breakdown[0].Label)
	assert.Equal(t, "Overage Charges", result.Breakdown[1].Label)
	assert.Equal(t, "250 * 0.1", result.Breakdown[1].Calculation)
	assert.Equal(t, "25", result.Breakdown[1].Amount.String())
}

func TestTieredWithOverage(t *testing.T) {
	plan := &domain.RatePlan{
		TieredPricings: []domain.TieredPricing{{
			Tiers: []domain.Tier{
				{MinUnits: 1, MaxUnits: ptr(int64(100)), PricePerUnit: dec("1.00")},
				{MinUnits: 101, MaxUnits: ptr(int64(500)), PricePerUnit: dec("0.50")},
			},
			OverageUnitRate: dec("0.25"),
		}},
	}

	result := Price(plan, 600, today)
	assert.Equal(t, "325", result.Total.String())
	assert.Len(t, result.Breakdown, 3)
	assert.Equal(t, "Tier 1-100", result.Breakdown[0].Label)
	assert.Equal(t, "100", result.Breakdown[0].Amount.String())
	assert.Equal(t, "Tier 101-500", result.Breakdown[1].Label)
	assert.Equal(t, "200", result.Breakdown[1].Amount.String())
	assert.Equal(t, "Overage Units (501-600)", result.Breakdown[2].Label)
	assert.Equal(t, "25", result.Breakdown[2].Amount.String())
}

func TestTieredWithoutOverageRateBillsAtLastTier(t *testing.T) {
	plan := &domain.RatePlan{
		TieredPricings: []domain.TieredPricing{{
			Tiers: []domain.Tier{
				{MinUnits: 1, MaxUnits: ptr(int64(100)), PricePerUnit: dec("1.00")},
				{MinUnits: 101, MaxUnits: ptr(int64(200)), PricePerUnit: dec("0.50")},
			},
		}},
	}

	result := Price(plan, 250, today)
	// 100*1.00 + 100*0.50 + 50*0.50
	assert.Equal(t, "175", result.Total.String())
	assert.Equal(t, "Overage Units (201-250)", result.Breakdown[2].Label)
}

func TestVolumeAllOrNothing(t *testing.T) {
	plan := &domain.RatePlan{
		VolumePricings: []domain.VolumePricing{{
			Tiers: []domain.Tier{
				{MinUnits: 1, MaxUnits: ptr(int64(100)), PricePerUnit: dec("1.00")},
				{MinUnits: 101, MaxUnits: ptr(int64(1000)), PricePerUnit: dec("0.50")},
			},
		}},
	}

	result := Price(plan, 250, today)
	assert.Equal(t, "125", result.Total.String())
	assert.Len(t, result.Breakdown, 1)
	assert.Equal(t, "Volume Charge (Tier 101-1000)", result.Breakdown[0].Label)
}

func TestVolumeBelowFirstTierChargesNothing(t *testing.T) {
	plan := &domain.RatePlan{
		VolumePricings: []domain.VolumePricing{{
			Tiers: []domain.Tier{
				{MinUnits: 10, MaxUnits: ptr(int64(100)), PricePerUnit: dec("1.00")},
			},
		}},
	}

	result := Price(plan, 5, today)
	assert.True(t, result.Total.IsZero())
	assert.Empty(t, result.Breakdown)
}

func TestVolumeOverageRate(t *testing.T) {
	plan := &domain.RatePlan{
		VolumePricings: []domain.VolumePricing{{
			Tiers: []domain.Tier{
				{MinUnits: 1, MaxUnits: ptr(int64(100)), PricePerUnit: dec("1.00")},
			},
			OverageUnitRate: dec("0.20"),
		}},
	}

	result := Price(plan, 150, today)
	assert.Equal(t, "30", result.Total.String())
	assert.Equal(t, "Volume Overage Charge", result.Breakdown[0].Label)
}

func TestStairStepSelectsContainingStep(t *testing.T) {
	plan := &domain.RatePlan{
		StairStepPricings: []domain.StairStepPricing{{
			Steps: []domain.Step{
				{ThresholdStart: 0, ThresholdEnd: ptr(int64(100)), FlatCharge: dec("50")},
				{ThresholdStart: 101, ThresholdEnd: ptr(int64(500)), FlatCharge: dec("120")},
			},
		}},
	}

	result := Price(plan, 250, today)
	assert.Equal(t, "120", result.Total.String())
	assert.Equal(t, "Stair Step Charge (Step 101-500)", result.Breakdown[0].Label)
}

func TestStairStepAboveLastWithoutOverageUsesLastCharge(t *testing.T) {
	plan := &domain.RatePlan{
		StairStepPricings: []domain.StairStepPricing{{
			Steps: []domain.Step{
				{ThresholdStart: 0, ThresholdEnd: ptr(int64(100)), FlatCharge: dec("50")},
			},
		}},
	}

	result := Price(plan, 900, today)
	assert.Equal(t, "50", result.Total.String())
}

func TestFreemiumThenMinimumUsageThenUsageBased(t *testing.T) {
	plan := &domain.RatePlan{
		Freemiums:          []domain.Freemium{{FreeUnits: 50}},
		MinimumCommitments: []domain.MinimumCommitment{{MinimumUsage: 200}},
		UsageBasedPricing:  []domain.UsageBasedEntry{{PricePerUnit: dec("2.00")}},
	}

	result := Price(plan, 120, today)
	assert.Equal(t, "400", result.Total.String())

	labels := make([]string, 0, len(result.Breakdown))
	for _, line := range result.Breakdown {
		labels = append(labels, line.Label)
	}
	assert.Contains(t, labels, "Freemium Credit")
	assert.Contains(t, labels, "Minimum Usage Commitment")
	for _, line := range result.Breakdown {
		if line.Label == "Freemium Credit" || line.Label == "Minimum Usage Commitment" {
			assert.True(t, line.Amount.IsZero())
		}
	}
}

func TestPercentageDiscountThenMinimumChargeFloor(t *testing.T) {
	plan := &domain.RatePlan{
		FlatFee: &domain.FlatFee{Amount: dec("100")},
		Discounts: []domain.Discount{{
			DiscountType: domain.DiscountTypePercentage,
			Percentage:   dec("50"),
		}},
		MinimumCommitments: []domain.MinimumCommitment{{MinimumAmount: dec("80")}},
	}

	result := Price(plan, 0, today)
	assert.Equal(t, "80", result.Total.String())

	last := result.Breakdown[len(result.Breakdown)-1]
	assert.Equal(t, "Minimum Charge Commitment", last.Label)
	assert.Equal(t, "30", last.Amount.String())

	discount := result.Breakdown[1]
	assert.Equal(t, "Discount (50%)", discount.Label)
	assert.Equal(t, "-50", discount.Amount.String())
}

func TestDiscountWindowGatesApplication(t *testing.T) {
	plan := &domain.RatePlan{
		FlatFee: &domain.FlatFee{Amount: dec("100")},
		Discounts: []domain.Discount{{
			DiscountType: domain.DiscountTypeFlat,
			FlatAmount:   dec("10"),
			StartDate:    ptr("2025-04-01"),
		}},
	}

	result := Price(plan, 0, today)
	assert.Equal(t, "100", result.Total.String())

	result = Price(plan, 0, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "90", result.Total.String())
}

func TestDiscountsNeverDriveTotalNegative(t *testing.T) {
	plan := &domain.RatePlan{
		FlatFee: &domain.FlatFee{Amount: dec("100")},
		Discounts: []domain.Discount{
			{DiscountType: domain.DiscountTypePercentage, Percentage: dec("100")},
			{DiscountType: domain.DiscountTypeFlat, FlatAmount: dec("40")},
		},
	}

	result := Price(plan, 0, today)
	assert.True(t, result.Total.IsZero())
	for _, line := range result.Breakdown {
		if line.Amount.IsNegative() {
			assert.True(t, line.Amount.Abs().LessThanOrEqual(dec("100")))
		}
	}
}

func TestDiscountUnknownKindPrefersFlat(t *testing.T) {
	plan := &domain.RatePlan{
		FlatFee: &domain.FlatFee{Amount: dec("100")},
		Discounts: []domain.Discount{{
			DiscountType: "PROMO",
			Percentage:   dec("10"),
			FlatAmount:   dec("25"),
		}},
	}

	result := Price(plan, 0, today)
	assert.Equal(t, "75", result.Total.String())
	assert.Equal(t, "Flat Discount", result.Breakdown[1].Label)
}

func TestFreemiumAppliesBeforeOverage(t *testing.T) {
	plan := &domain.RatePlan{
		FlatFee: &domain.FlatFee{
			Amount:        dec("0"),
			IncludedUnits: 100,
			OverageRate:   dec("1.00"),
		},
		Freemiums: []domain.Freemium{{FreeUnits: 50}},
	}

	// Overage starts at includedUnits + freeUnits = 150.
	result := Price(plan, 150, today)
	assert.True(t, result.Total.IsZero())

	result = Price(plan, 151, today)
	assert.Equal(t, "1", result.Total.String())
}

func TestTierBoundaryIsClosed(t *testing.T) {
	plan := &domain.RatePlan{
		VolumePricings: []domain.VolumePricing{{
			Tiers: []domain.Tier{
				{MinUnits: 1, MaxUnits: ptr(int64(100)), PricePerUnit: dec("1.00")},
				{MinUnits: 100, MaxUnits: ptr(int64(200)), PricePerUnit: dec("0.50")},
			},
		}},
	}

	// Usage at the shared boundary belongs to the earlier tier.
	result := Price(plan, 100, today)
	assert.Equal(t, "Volume Charge (Tier 1-100)", result.Breakdown[0].Label)
	assert.Equal(t, "100", result.Total.String())
}

func TestEmptyPlan(t *testing.T) {
	result := Price(&domain.RatePlan{}, 500, today)
	assert.True(t, result.Total.IsZero())
	assert.Empty(t, result.Breakdown)
	assert.Equal(t, int64(500), result.EventCount)
}

func TestNilPlan(t *testing.T) {
	result := Price(nil, 500, today)
	assert.True(t, result.Total.IsZero())
	assert.Equal(t, int64(500), result.EventCount)
}

func TestZeroUsageKeepsFixedComponents(t *testing.T) {
	plan := &domain.RatePlan{
		FlatFee:   &domain.FlatFee{Amount: dec("30")},
		SetupFees: []domain.SetupFee{{Amount: dec("15")}},
	}

	result := Price(plan, 0, today)
	assert.Equal(t, "45", result.Total.String())
}

func TestDeterminism(t *testing.T) {
	plan := &domain.RatePlan{
		BillingFrequency: "WEEKLY",
		FlatFee:          &domain.FlatFee{Amount: dec("10"), IncludedUnits: 5, OverageRate: dec("0.33")},
		Freemiums:        []domain.Freemium{{FreeUnits: 2}},
		SetupFees:        []domain.SetupFee{{Amount: dec("3.75")}},
	}

	first := Price(plan, 17, today)
	second := Price(plan, 17, today)
	assert.Equal(t, first.Total.String(), second.Total.String())
	assert.Equal(t, len(first.Breakdown), len(second.Breakdown))
	for i := range first.Breakdown {
		assert.Equal(t, first.Breakdown[i], second.Breakdown[i])
	}
}
