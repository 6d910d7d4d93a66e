// Package domain defines the metering estimate contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/metering/internal/pricing"
)

var (
	ErrMissingRatePlan      = errors.New("invalid_argument: subscriptionId or ratePlanId is required")
	ErrSubscriptionNoPlan   = errors.New("invalid_state: subscription has no rate plan")
	ErrSubscriptionMissing  = errors.New("invalid_state: subscription not found")
	ErrRatePlanMissing      = errors.New("invalid_state: rate plan not found")
	ErrRatePlanUnavailable  = errors.New("upstream_unavailable: rate plan service")
	ErrUsageStoreUnreadable = errors.New("storage_error: event store query failed")
)

// Request scopes a usage estimate. All fields are optional; a nil From/To
// pair adopts the subscription's current billing period when a subscription
// is supplied.
type Request struct {
	From             *time.Time `json:"from"`
	To               *time.Time `json:"to"`
	SubscriptionID   *int64     `json:"subscriptionId"`
	ProductID        *int64     `json:"productId"`
	RatePlanID       *int64     `json:"ratePlanId"`
	BillableMetricID *int64     `json:"billableMetricId"`
}

// Response is the priced estimate plus the window it covered.
type Response struct {
	pricing.Result

	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Service interface {
	Estimate(ctx context.Context, req Request) (*Response, error)
}
