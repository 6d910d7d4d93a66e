package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("rate_plan_not_found")
	ErrUnavailable = errors.New("rate_plan_unavailable")
)

// Fetcher retrieves rate plans from the pricing catalog. Calls are scoped
// by the tenant bound to ctx.
type Fetcher interface {
	Fetch(ctx context.Context, ratePlanID int64) (*RatePlan, error)
}
