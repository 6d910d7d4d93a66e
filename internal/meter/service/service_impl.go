package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/metering/internal/clock"
	meterdomain "github.com/smallbiznis/metering/internal/meter/domain"
	"github.com/smallbiznis/metering/internal/orgcontext"
	"github.com/smallbiznis/metering/internal/pricing"
	rateplandomain "github.com/smallbiznis/metering/internal/rateplan/domain"
	subscriptiondomain "github.com/smallbiznis/metering/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/metering/internal/usage/domain"
)

type Param struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Usage         usagedomain.Repository
	RatePlans     rateplandomain.Fetcher
	Subscriptions subscriptiondomain.Fetcher
}

type service struct {
	log           *zap.Logger
	clock         clock.Clock
	usage         usagedomain.Repository
	ratePlans     rateplandomain.Fetcher
	subscriptions subscriptiondomain.Fetcher
}

func New(p Param) meterdomain.Service {
	return &service{
		log:           p.Log.Named("meter.service"),
		clock:         p.Clock,
		usage:         p.Usage,
		ratePlans:     p.RatePlans,
		subscriptions: p.Subscriptions,
	}
}

// Estimate resolves the billing scope, counts billable events in the
// half-open window [from, to) and prices them against the rate plan.
func (s *service) Estimate(ctx context.Context, req meterdomain.Request) (*meterdomain.Response, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}

	ratePlanID := req.RatePlanID
	productID := req.ProductID
	metricID := req.BillableMetricID
	from := req.From
	to := req.To

	if req.SubscriptionID != nil {
		sub, err := s.subscriptions.Get(ctx, *req.SubscriptionID)
		if err != nil {
			if errors.Is(err, subscriptiondomain.ErrNotFound) {
				return nil, meterdomain.ErrSubscriptionMissing
			}
			return nil, err
		}
		if sub.RatePlanID == nil {
			return nil, meterdomain.ErrSubscriptionNoPlan
		}
		ratePlanID = sub.RatePlanID
		productID = &sub.ProductID

		if from == nil && to == nil {
			from, to = s.adoptBillingPeriod(sub)
			s.log.Info("adopted subscription billing period",
				zap.Int64("subscription_id", sub.SubscriptionID),
				zap.Time("from", *from),
				zap.Time("to", *to),
			)
		}
	}

	if ratePlanID == nil {
		return nil, meterdomain.ErrMissingRatePlan
	}

	// A partially specified window falls back to a one hour slice ending
	// now.
	if to == nil {
		now := s.clock.Now()
		to = &now
	}
	if from == nil {
		start := to.Add(-time.Hour)
		from = &start
	}

	plan, err := s.ratePlans.Fetch(ctx, *ratePlanID)
	if err != nil {
		if errors.Is(err, rateplandomain.ErrNotFound) {
			return nil, meterdomain.ErrRatePlanMissing
		}
		return nil, meterdomain.ErrRatePlanUnavailable
	}

	if metricID == nil {
		metricID = plan.BillableMetricID
	}

	count, err := s.usage.CountEvents(ctx, orgID, *from, *to, usagedomain.Filters{
		SubscriptionID:   req.SubscriptionID,
		ProductID:        productID,
		RatePlanID:       ratePlanID,
		BillableMetricID: metricID,
	})
	if err != nil {
		s.log.Error("event count failed", zap.Int64("org_id", orgID), zap.Error(err))
		return nil, meterdomain.ErrUsageStoreUnreadable
	}

	result := pricing.Price(plan, count, s.clock.Now())
	return &meterdomain.Response{
		Result: result,
		From:   *from,
		To:     *to,
	}, nil
}

// adoptBillingPeriod derives the estimate window from the subscription's
// current billing period, falling back to the trailing hour for any half
// that is not anchored.
func (s *service) adoptBillingPeriod(sub *subscriptiondomain.Subscription) (*time.Time, *time.Time) {
	now := s.clock.Now()

	to := now
	if sub.CurrentBillingPeriodEnd != nil {
		to = *sub.CurrentBillingPeriodEnd
	}
	from := now.Add(-time.Hour)
	if sub.CurrentBillingPeriodStart != nil {
		from = *sub.CurrentBillingPeriodStart
	}
	return &from, &to
}
