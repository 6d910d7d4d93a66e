package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/smallbiznis/metering/internal/clock"
	meterdomain "github.com/smallbiznis/metering/internal/meter/domain"
	"github.com/smallbiznis/metering/internal/orgcontext"
	rateplandomain "github.com/smallbiznis/metering/internal/rateplan/domain"
	subscriptiondomain "github.com/smallbiznis/metering/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/metering/internal/usage/domain"
)

type stubUsage struct {
	count   int64
	err     error
	lastGot struct {
		orgID    int64
		from, to time.Time
		filters  usagedomain.Filters
	}
}

func (s *stubUsage) CountEvents(_ context.Context, orgID int64, from, to time.Time, filters usagedomain.Filters) (int64, error) {
	s.lastGot.orgID = orgID
	s.lastGot.from = from
	s.lastGot.to = to
	s.lastGot.filters = filters
	return s.count, s.err
}

func (s *stubUsage) LastEventAt(context.Context, int64) (*time.Time, error) {
	return nil, nil
}

func (s *stubUsage) ListOrganizationIDs(context.Context) ([]int64, error) {
	return nil, nil
}

type stubRatePlans struct {
	plan *rateplandomain.RatePlan
	err  error
}

func (s *stubRatePlans) Fetch(context.Context, int64) (*rateplandomain.RatePlan, error) {
	return s.plan, s.err
}

type stubSubscriptions struct {
	sub *subscriptiondomain.Subscription
	err error
}

func (s *stubSubscriptions) Get(context.Context, int64) (*subscriptiondomain.Subscription, error) {
	return s.sub, s.err
}

func (s *stubSubscriptions) ListActive(context.Context) ([]subscriptiondomain.Subscription, error) {
	return nil, nil
}

func ptr[T any](v T) *T { return &v }

func monthlyPlan() *rateplandomain.RatePlan {
	return &rateplandomain.RatePlan{
		RatePlanID:       7,
		BillingFrequency: "MONTHLY",
		BillableMetricID: ptr(int64(5)),
		UsageBasedPricing: []rateplandomain.UsageBasedEntry{
			{PricePerUnit: decimal.RequireFromString("2.00")},
		},
	}
}

func newService(usage *stubUsage, plans *stubRatePlans, subs *stubSubscriptions, clk clock.Clock) meterdomain.Service {
	return New(Param{
		Log:           zap.NewNop(),
		Clock:         clk,
		Usage:         usage,
		RatePlans:     plans,
		Subscriptions: subs,
	})
}

func TestEstimateRequiresTenant(t *testing.T) {
	svc := newService(&stubUsage{}, &stubRatePlans{}, &stubSubscriptions{}, clock.SystemClock{})
	_, err := svc.Estimate(context.Background(), meterdomain.Request{RatePlanID: ptr(int64(7))})
	assert.ErrorIs(t, err, orgcontext.ErrMissingOrganization)
}

func TestEstimateRequiresPlanOrSubscription(t *testing.T) {
	svc := newService(&stubUsage{}, &stubRatePlans{}, &stubSubscriptions{}, clock.SystemClock{})
	ctx := orgcontext.WithOrgID(context.Background(), 42)
	_, err := svc.Estimate(ctx, meterdomain.Request{})
	assert.ErrorIs(t, err, meterdomain.ErrMissingRatePlan)
}

func TestEstimateExplicitWindow(t *testing.T) {
	usage := &stubUsage{count: 120}
	svc := newService(usage, &stubRatePlans{plan: monthlyPlan()}, &stubSubscriptions{}, clock.SystemClock{})
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	resp, err := svc.Estimate(ctx, meterdomain.Request{
		From:       &from,
		To:         &to,
		RatePlanID: ptr(int64(7)),
	})
	assert.NoError(t, err)
	assert.Equal(t, "240", resp.Total.String())
	assert.Equal(t, int64(120), resp.EventCount)
	assert.Equal(t, "MONTHLY", resp.ModelType)
	assert.Equal(t, int64(42), usage.lastGot.orgID)
	assert.Equal(t, from, usage.lastGot.from)
	assert.Equal(t, to, usage.lastGot.to)
	// Metric defaults from the plan when the request omits it.
	assert.Equal(t, int64(5), *usage.lastGot.filters.BillableMetricID)
}

func TestEstimateAdoptsSubscriptionPeriod(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	subs := &stubSubscriptions{sub: &subscriptiondomain.Subscription{
		SubscriptionID:            100,
		ProductID:                 3,
		RatePlanID:                ptr(int64(7)),
		CurrentBillingPeriodStart: &start,
		CurrentBillingPeriodEnd:   &end,
	}}
	usage := &stubUsage{count: 10}
	svc := newService(usage, &stubRatePlans{plan: monthlyPlan()}, subs, clock.SystemClock{})
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	resp, err := svc.Estimate(ctx, meterdomain.Request{SubscriptionID: ptr(int64(100))})
	assert.NoError(t, err)
	assert.Equal(t, start, resp.From)
	assert.Equal(t, end, resp.To)
	assert.Equal(t, int64(3), *usage.lastGot.filters.ProductID)
	assert.Equal(t, int64(100), *usage.lastGot.filters.SubscriptionID)
}

func TestEstimatePartialWindowFallsBackToTrailingHour(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	usage := &stubUsage{count: 1}
	svc := newService(usage, &stubRatePlans{plan: monthlyPlan()}, &stubSubscriptions{}, clk)
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	resp, err := svc.Estimate(ctx, meterdomain.Request{RatePlanID: ptr(int64(7))})
	assert.NoError(t, err)
	assert.Equal(t, clk.Now(), resp.To)
	assert.Equal(t, clk.Now().Add(-time.Hour), resp.From)
}

func TestEstimateSubscriptionWithoutPlan(t *testing.T) {
	subs := &stubSubscriptions{sub: &subscriptiondomain.Subscription{SubscriptionID: 100}}
	svc := newService(&stubUsage{}, &stubRatePlans{}, subs, clock.SystemClock{})
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	_, err := svc.Estimate(ctx, meterdomain.Request{SubscriptionID: ptr(int64(100))})
	assert.ErrorIs(t, err, meterdomain.ErrSubscriptionNoPlan)
}

func TestEstimateSubscriptionMissing(t *testing.T) {
	subs := &stubSubscriptions{err: subscriptiondomain.ErrNotFound}
	svc := newService(&stubUsage{}, &stubRatePlans{}, subs, clock.SystemClock{})
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	_, err := svc.Estimate(ctx, meterdomain.Request{SubscriptionID: ptr(int64(100))})
	assert.ErrorIs(t, err, meterdomain.ErrSubscriptionMissing)
}

func TestEstimateRatePlanMissing(t *testing.T) {
	svc := newService(&stubUsage{}, &stubRatePlans{err: rateplandomain.ErrNotFound}, &stubSubscriptions{}, clock.SystemClock{})
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	_, err := svc.Estimate(ctx, meterdomain.Request{RatePlanID: ptr(int64(7))})
	assert.ErrorIs(t, err, meterdomain.ErrRatePlanMissing)
}

func TestEstimateRatePlanUpstreamDown(t *testing.T) {
	svc := newService(&stubUsage{}, &stubRatePlans{err: rateplandomain.ErrUnavailable}, &stubSubscriptions{}, clock.SystemClock{})
	ctx := orgcontext.WithOrgID(context.Background(), 42)

	_, err := svc.Estimate(ctx, meterdomain.Request{RatePlanID: ptr(int64(7))})
	assert.ErrorIs(t, err, meterdomain.ErrRatePlanUnavailable)
}
