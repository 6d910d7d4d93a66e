// Package domain holds the rate-plan read model served by the pricing
// catalog. Plans are read-only here; the catalog owns their lifecycle.
package domain

import (
	"github.com/shopspring/decimal"
)

// RatePlan is a composite pricing configuration. Any combination of the
// pricing models may coexist on one plan.
type RatePlan struct {
	RatePlanID       int64  `json:"ratePlanId"`
	RatePlanName     string `json:"ratePlanName"`
	Description      string `json:"description"`
	BillingFrequency string `json:"billingFrequency"`
	PaymentType      string `json:"paymentType"`
	BillableMetricID *int64 `json:"billableMetricId"`
	Status           string `json:"status"`

	FlatFee           *FlatFee           `json:"flatFee"`
	TieredPricings    []TieredPricing    `json:"tieredPricings"`
	VolumePricings    []VolumePricing    `json:"volumePricings"`
	UsageBasedPricing []UsageBasedEntry  `json:"usageBasedPricings"`
	StairStepPricings []StairStepPricing `json:"stairStepPricings"`

	SetupFees          []SetupFee          `json:"setupFees"`
	Discounts          []Discount          `json:"discounts"`
	Freemiums          []Freemium          `json:"freemiums"`
	MinimumCommitments []MinimumCommitment `json:"minimumCommitments"`
}

type FlatFee struct {
	Amount        decimal.Decimal `json:"flatFeeAmount"`
	IncludedUnits int64           `json:"numberOfApiCalls"`
	OverageRate   decimal.Decimal `json:"overageUnitRate"`
}

type TieredPricing struct {
	Tiers           []Tier          `json:"tiers"`
	OverageUnitRate decimal.Decimal `json:"overageUnitRate"`
}

// Tier is a closed interval [MinUnits, MaxUnits]. A nil MaxUnits means the
// tier is unbounded above.
type Tier struct {
	MinUnits     int64           `json:"startRange"`
	MaxUnits     *int64          `json:"endRange"`
	PricePerUnit decimal.Decimal `json:"unitPrice"`
}

type VolumePricing struct {
	Tiers           []Tier          `json:"tiers"`
	OverageUnitRate decimal.Decimal `json:"overageUnitRate"`
}

type UsageBasedEntry struct {
	PricePerUnit decimal.Decimal `json:"perUnitAmount"`
}

type StairStepPricing struct {
	Steps           []Step          `json:"tiers"`
	OverageUnitRate decimal.Decimal `json:"overageUnitRate"`
}

// Step is a closed usage bucket carrying one flat charge. A nil ThresholdEnd
// means the step is unbounded above.
type Step struct {
	ThresholdStart int64           `json:"usageStart"`
	ThresholdEnd   *int64          `json:"usageEnd"`
	FlatCharge     decimal.Decimal `json:"flatCost"`
}

type SetupFee struct {
	Amount             decimal.Decimal `json:"setupFee"`
	InvoiceDescription string          `json:"invoiceDescription"`
}

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFlat       = "FLAT"
)

// Discount applies within [StartDate, EndDate]; nil dates are open-ended.
// Dates use the catalog's YYYY-MM-DD format.
type Discount struct {
	DiscountType string          `json:"discountType"`
	Percentage   decimal.Decimal `json:"percentageDiscount"`
	FlatAmount   decimal.Decimal `json:"flatDiscountAmount"`
	StartDate    *string         `json:"startDate"`
	EndDate      *string         `json:"endDate"`
}

type Freemium struct {
	FreeUnits int64 `json:"freeUnits"`
}

type MinimumCommitment struct {
	MinimumAmount decimal.Decimal `json:"minimumCharge"`
	MinimumUsage  int64           `json:"minimumUsage"`
}
