// Package domain holds the subscription read model served by the
// subscription service.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("subscription_not_found")
	ErrUnavailable = errors.New("subscription_unavailable")
)

const StatusActive = "ACTIVE"

// Subscription links a customer to a product and rate plan. Billing period
// timestamps are RFC 3339; nil means the period has not been anchored yet.
type Subscription struct {
	SubscriptionID   int64  `json:"subscriptionId"`
	OrganizationID   int64  `json:"organizationId"`
	CustomerID       int64  `json:"customerId"`
	ProductID        int64  `json:"productId"`
	RatePlanID       *int64 `json:"ratePlanId"`
	Status           string `json:"status"`
	BillingFrequency string `json:"billingFrequency"`

	CurrentBillingPeriodStart *time.Time `json:"currentBillingPeriodStart"`
	CurrentBillingPeriodEnd   *time.Time `json:"currentBillingPeriodEnd"`
	NextBillingTimestamp      *time.Time `json:"nextBillingTimestamp"`
	AutoRenew                 bool       `json:"autoRenew"`
}

// Fetcher retrieves subscriptions from the subscription service.
type Fetcher interface {
	Get(ctx context.Context, subscriptionID int64) (*Subscription, error)

	// ListActive returns every ACTIVE subscription for the tenant bound
	// to ctx. Upstream failure yields an empty slice so a periodic caller
	// can treat it as nothing to do rather than abort.
	ListActive(ctx context.Context) ([]Subscription, error)
}
