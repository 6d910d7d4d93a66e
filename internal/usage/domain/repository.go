package domain

import (
	"context"
	"time"
)

// Filters narrows an event count. A nil field means the dimension is not
// filtered.
type Filters struct {
	SubscriptionID   *int64
	ProductID        *int64
	RatePlanID       *int64
	BillableMetricID *int64
}

// Repository reads usage from the ingestion event store. Only successfully
// ingested events count toward billing.
type Repository interface {
	// CountEvents counts SUCCESS events for the organization in the
	// half-open window [from, to).
	CountEvents(ctx context.Context, orgID int64, from, to time.Time, filters Filters) (int64, error)

	// LastEventAt returns the timestamp of the organization's most recent
	// SUCCESS event, or nil when none has been ingested.
	LastEventAt(ctx context.Context, orgID int64) (*time.Time, error)

	// ListOrganizationIDs returns every organization that has ever
	// ingested an event.
	ListOrganizationIDs(ctx context.Context) ([]int64, error)
}
