// Package pricing evaluates a composite rate plan against a usage count.
// The engine is pure: same plan, usage and day in always produce the same
// breakdown, and it never returns an error. Malformed sub-structures are
// treated as zero and skipped.
package pricing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smallbiznis/metering/internal/rateplan/domain"
)

// Line is one entry of a priced breakdown. Amount is signed: negative
// entries are credits or discounts. Zero-amount entries are kept for
// operator transparency.
type Line struct {
	Label       string          `json:"label"`
	Calculation string          `json:"calculation"`
	Amount      decimal.Decimal `json:"amount"`
}

// Result is the priced outcome for one rate plan and usage count.
// EventCount always carries the actual event count, never the billed usage.
type Result struct {
	ModelType  string          `json:"modelType"`
	EventCount int64           `json:"eventCount"`
	Breakdown  []Line          `json:"breakdown"`
	Total      decimal.Decimal `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// Price evaluates the plan. The pipeline order is normative: freemium and
// minimum-usage adjust the billed usage before any pricing model runs,
// discounts apply to the running total, and the minimum-charge floor is the
// last adjustment before rounding. today gates discount validity windows.
func Price(plan *domain.RatePlan, actualUsage int64, today time.Time) Result {
	result := Result{
		EventCount: actualUsage,
		Breakdown:  []Line{},
		Total:      decimal.Zero,
	}
	if plan == nil {
		return result
	}
	result.ModelType = plan.BillingFrequency

	billedUsage := actualUsage
	var freeUnitsApplied int64

	// Freemium reduces billed usage before pricing.
	var freeUnits int64
	for _, f := range plan.Freemiums {
		if f.FreeUnits > 0 {
			freeUnits += f.FreeUnits
		}
	}
	if freeUnits > 0 {
		freeUnitsApplied = min64(freeUnits, actualUsage)
		billedUsage = actualUsage - freeUnitsApplied
	}

	// Minimum usage raises billed usage to the committed floor.
	var minimumUsage int64
	for _, c := range plan.MinimumCommitments {
		if c.MinimumUsage > minimumUsage {
			minimumUsage = c.MinimumUsage
		}
	}
	if minimumUsage > 0 && billedUsage < minimumUsage {
		billedUsage = minimumUsage
	}

	usage := billedUsage
	total := decimal.Zero
	lines := []Line{}

	if plan.FlatFee != nil {
		base := plan.FlatFee.Amount
		lines = append(lines, Line{Label: "Flat Fee", Calculation: "Base", Amount: base})
		total = total.Add(base)

		overUnits := usage - plan.FlatFee.IncludedUnits
		if overUnits > 0 && plan.FlatFee.OverageRate.IsPositive() {
			amount := plan.FlatFee.OverageRate.Mul(decimal.NewFromInt(overUnits))
			lines = append(lines, Line{
				Label:       "Overage Charges",
				Calculation: fmt.Sprintf("%d * %s", overUnits, plan.FlatFee.OverageRate),
				Amount:      amount,
			})
			total = total.Add(amount)
		}
	}

	for _, entry := range plan.UsageBasedPricing {
		amount := entry.PricePerUnit.Mul(decimal.NewFromInt(usage))
		lines = append(lines, Line{
			Label:       "Usage Charges",
			Calculation: fmt.Sprintf("%s * %d", entry.PricePerUnit, usage),
			Amount:      amount,
		})
		total = total.Add(amount)
	}

	for _, tiered := range plan.TieredPricings {
		tierLines, tierTotal := priceTiered(tiered, usage)
		lines = append(lines, tierLines...)
		total = total.Add(tierTotal)
	}

	for _, volume := range plan.VolumePricings {
		volumeLines, volumeTotal := priceVolume(volume, usage)
		lines = append(lines, volumeLines...)
		total = total.Add(volumeTotal)
	}

	for _, stair := range plan.StairStepPricings {
		stairLines, stairTotal := priceStairStep(stair, usage)
		lines = append(lines, stairLines...)
		total = total.Add(stairTotal)
	}

	setupSum := decimal.Zero
	for _, fee := range plan.SetupFees {
		setupSum = setupSum.Add(fee.Amount)
	}
	if setupSum.IsPositive() {
		lines = append(lines, Line{Label: "Setup Fee", Calculation: "Fixed", Amount: setupSum})
		total = total.Add(setupSum)
	}

	if freeUnitsApplied > 0 {
		lines = append(lines, Line{
			Label: "Freemium Credit",
			Calculation: fmt.Sprintf("%d free units applied (actual usage: %d, billed: %d)",
				freeUnitsApplied, actualUsage, billedUsage),
			Amount: decimal.Zero,
		})
	}

	if minimumUsage > 0 && billedUsage >= minimumUsage && actualUsage < minimumUsage {
		lines = append(lines, Line{
			Label: "Minimum Usage Commitment",
			Calculation: fmt.Sprintf("Billed for minimum %d units (actual: %d, added: %d)",
				minimumUsage, actualUsage, minimumUsage-actualUsage),
			Amount: decimal.Zero,
		})
	}

	for _, discount := range plan.Discounts {
		if !discountActive(discount, today) {
			continue
		}
		amount, label := discountAmount(discount, total)
		if !amount.IsPositive() {
			continue
		}
		if amount.GreaterThan(total) {
			amount = total
		}
		lines = append(lines, Line{Label: label, Calculation: label, Amount: amount.Neg()})
		total = total.Sub(amount)
	}

	var minimumCharge decimal.Decimal
	for _, c := range plan.MinimumCommitments {
		if c.MinimumAmount.GreaterThan(minimumCharge) {
			minimumCharge = c.MinimumAmount
		}
	}
	if minimumCharge.IsPositive() && total.IsPositive() && total.LessThan(minimumCharge) {
		uplift := minimumCharge.Sub(total)
		lines = append(lines, Line{
			Label: "Minimum Charge Commitment",
			Calculation: fmt.Sprintf("Final floor adjusted to minimum charge of %s (after discounts)",
				minimumCharge),
			Amount: uplift,
		})
		total = minimumCharge
	}

	result.Breakdown = lines
	result.Total = total.Round(2)
	return result
}

func priceTiered(tiered domain.TieredPricing, usage int64) ([]Line, decimal.Decimal) {
	lines := []Line{}
	total := decimal.Zero
	if len(tiered.Tiers) == 0 {
		return lines, total
	}

	tiers := make([]domain.Tier, len(tiered.Tiers))
	copy(tiers, tiered.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinUnits < tiers[j].MinUnits })

	remaining := usage
	for _, tier := range tiers {
		if remaining <= 0 {
			break
		}
		if usage < tier.MinUnits {
			continue
		}
		units := remaining
		if tier.MaxUnits != nil {
			units = min64(remaining, *tier.MaxUnits-tier.MinUnits+1)
		}
		amount := tier.PricePerUnit.Mul(decimal.NewFromInt(units))
		lines = append(lines, Line{
			Label:       fmt.Sprintf("Tier %d-%s", tier.MinUnits, boundLabel(tier.MaxUnits)),
			Calculation: fmt.Sprintf("%d * %s", units, tier.PricePerUnit),
			Amount:      amount,
		})
		total = total.Add(amount)
		remaining -= units
	}

	if remaining > 0 {
		last := tiers[len(tiers)-1]
		rate := tiered.OverageUnitRate
		if !rate.IsPositive() {
			// No overage rate configured: bill the excess at the last
			// tier's rate rather than dropping it.
			rate = last.PricePerUnit
		}
		if rate.IsPositive() {
			var lastMax int64
			if last.MaxUnits != nil {
				lastMax = *last.MaxUnits
			}
			amount := rate.Mul(decimal.NewFromInt(remaining))
			lines = append(lines, Line{
				Label:       fmt.Sprintf("Overage Units (%d-%d)", lastMax+1, lastMax+remaining),
				Calculation: fmt.Sprintf("%d * %s", remaining, rate),
				Amount:      amount,
			})
			total = total.Add(amount)
		}
	}

	return lines, total
}

func priceVolume(volume domain.VolumePricing, usage int64) ([]Line, decimal.Decimal) {
	lines := []Line{}
	total := decimal.Zero
	if len(volume.Tiers) == 0 {
		return lines, total
	}

	tiers := make([]domain.Tier, len(volume.Tiers))
	copy(tiers, volume.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinUnits < tiers[j].MinUnits })

	var chosen *domain.Tier
	for i := range tiers {
		if usage >= tiers[i].MinUnits && (tiers[i].MaxUnits == nil || usage <= *tiers[i].MaxUnits) {
			chosen = &tiers[i]
			break
		}
	}

	if chosen == nil {
		first := tiers[0]
		last := tiers[len(tiers)-1]
		switch {
		case usage < first.MinUnits:
			// Below the first tier nothing is charged.
			return lines, total
		case last.MaxUnits != nil && usage > *last.MaxUnits && volume.OverageUnitRate.IsPositive():
			total = volume.OverageUnitRate.Mul(decimal.NewFromInt(usage))
			lines = append(lines, Line{
				Label:       "Volume Overage Charge",
				Calculation: fmt.Sprintf("%d * %s", usage, volume.OverageUnitRate),
				Amount:      total,
			})
			return lines, total
		default:
			chosen = &last
		}
	}

	total = chosen.PricePerUnit.Mul(decimal.NewFromInt(usage))
	lines = append(lines, Line{
		Label:       fmt.Sprintf("Volume Charge (Tier %d-%s)", chosen.MinUnits, boundLabel(chosen.MaxUnits)),
		Calculation: fmt.Sprintf("%d * %s", usage, chosen.PricePerUnit),
		Amount:      total,
	})
	return lines, total
}

func priceStairStep(stair domain.StairStepPricing, usage int64) ([]Line, decimal.Decimal) {
	lines := []Line{}
	total := decimal.Zero
	if len(stair.Steps) == 0 {
		return lines, total
	}

	steps := make([]domain.Step, len(stair.Steps))
	copy(steps, stair.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].ThresholdStart < steps[j].ThresholdStart })

	var chosen *domain.Step
	for i := range steps {
		if usage >= steps[i].ThresholdStart && (steps[i].ThresholdEnd == nil || usage <= *steps[i].ThresholdEnd) {
			chosen = &steps[i]
			break
		}
	}

	if chosen == nil {
		first := steps[0]
		last := steps[len(steps)-1]
		switch {
		case usage < first.ThresholdStart:
			return lines, total
		case last.ThresholdEnd != nil && usage > *last.ThresholdEnd && stair.OverageUnitRate.IsPositive():
			total = stair.OverageUnitRate.Mul(decimal.NewFromInt(usage))
			lines = append(lines, Line{
				Label:       "Stair Step Overage Charge",
				Calculation: fmt.Sprintf("%d * %s", usage, stair.OverageUnitRate),
				Amount:      total,
			})
			return lines, total
		default:
			chosen = &last
		}
	}

	total = chosen.FlatCharge
	lines = append(lines, Line{
		Label:       fmt.Sprintf("Stair Step Charge (Step %d-%s)", chosen.ThresholdStart, boundLabel(chosen.ThresholdEnd)),
		Calculation: "Flat fee",
		Amount:      total,
	})
	return lines, total
}

func discountActive(d domain.Discount, today time.Time) bool {
	day := today.UTC().Format("2006-01-02")
	if d.StartDate != nil && day < *d.StartDate {
		return false
	}
	if d.EndDate != nil && day > *d.EndDate {
		return false
	}
	return true
}

func discountAmount(d domain.Discount, total decimal.Decimal) (decimal.Decimal, string) {
	percentage := func() (decimal.Decimal, string) {
		amount := total.Mul(d.Percentage).Div(hundred).Round(2)
		return amount, fmt.Sprintf("Discount (%s%%)", d.Percentage)
	}
	flat := func() (decimal.Decimal, string) {
		return d.FlatAmount, "Flat Discount"
	}

	switch strings.ToUpper(d.DiscountType) {
	case domain.DiscountTypePercentage:
		if d.Percentage.IsPositive() {
			return percentage()
		}
	case domain.DiscountTypeFlat:
		if d.FlatAmount.IsPositive() {
			return flat()
		}
	default:
		// Unknown kind: infer from whichever field is populated, flat
		// winning when both are.
		if d.FlatAmount.IsPositive() {
			return flat()
		}
		if d.Percentage.IsPositive() {
			return percentage()
		}
	}
	return decimal.Zero, "Discount"
}

func boundLabel(bound *int64) string {
	if bound == nil {
		return "∞"
	}
	return fmt.Sprintf("%d", *bound)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
