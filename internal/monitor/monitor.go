// Package monitor closes billing periods. Every tick it scans all tenants
// for active subscriptions whose current period has ended and generates the
// missing invoice. The next tick is the retry mechanism; nothing inside a
// tick retries.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/metering/internal/clock"
	invoicedomain "github.com/smallbiznis/metering/internal/invoice/domain"
	meterdomain "github.com/smallbiznis/metering/internal/meter/domain"
	"github.com/smallbiznis/metering/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/metering/internal/observability/metrics"
	"github.com/smallbiznis/metering/internal/orgcontext"
	subscriptiondomain "github.com/smallbiznis/metering/internal/subscription/domain"
	"github.com/smallbiznis/metering/internal/token"
	usagedomain "github.com/smallbiznis/metering/internal/usage/domain"
)

var ErrInvalidConfig = errors.New("monitor: missing dependency")

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Usage         usagedomain.Repository
	Subscriptions subscriptiondomain.Fetcher
	Meter         meterdomain.Service
	Invoices      invoicedomain.Service
	Issuer        *token.Issuer
	Config        Config `optional:"true"`
}

type Monitor struct {
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	usage         usagedomain.Repository
	subscriptions subscriptiondomain.Fetcher
	meter         meterdomain.Service
	invoices      invoicedomain.Service
	issuer        *token.Issuer
}

func New(p Params) (*Monitor, error) {
	if p.Log == nil || p.Clock == nil || p.Usage == nil || p.Subscriptions == nil || p.Meter == nil || p.Invoices == nil || p.Issuer == nil {
		return nil, ErrInvalidConfig
	}
	return &Monitor{
		log:           p.Log.Named("monitor").With(zap.String("component", "billing_period_monitor")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		usage:         p.Usage,
		subscriptions: p.Subscriptions,
		meter:         p.Meter,
		invoices:      p.Invoices,
		issuer:        p.Issuer,
	}, nil
}

// RunOnce executes a single monitor tick. Failures are isolated at the
// tenant and subscription boundaries and joined into the returned error so
// one bad tenant never blocks the rest of the scan.
func (m *Monitor) RunOnce(ctx context.Context) error {
	metrics := obsmetrics.Monitor()
	metrics.IncTickRun()
	start := m.clock.Now()

	orgIDs, err := m.usage.ListOrganizationIDs(ctx)
	if err != nil {
		metrics.IncStageError(obsmetrics.MonitorStageListTenants, err)
		m.log.Error("tenant scan failed", zap.Error(err))
		return err
	}
	metrics.AddTenantsScanned(len(orgIDs))

	var (
		errs            []error
		checked         int
		invoicesCreated int
	)
	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		created, scanned, err := m.runTenant(ctx, orgID)
		checked += scanned
		invoicesCreated += created
		if err != nil {
			errs = append(errs, fmt.Errorf("org %d: %w", orgID, err))
		}
	}

	metrics.ObserveTickDuration(m.clock.Now().Sub(start))
	m.log.Info("monitor tick finished",
		zap.Int("tenants", len(orgIDs)),
		zap.Int("subscriptions_checked", checked),
		zap.Int("invoices_created", invoicesCreated),
		zap.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

func (m *Monitor) runTenant(ctx context.Context, orgID int64) (created, scanned int, err error) {
	metrics := obsmetrics.Monitor()

	credential, err := m.issuer.ServiceToken(orgID)
	if err != nil {
		metrics.IncStageError(obsmetrics.MonitorStageCredential, err)
		return 0, 0, fmt.Errorf("mint service credential: %w", err)
	}

	tctx := orgcontext.WithOrgID(ctx, orgID)
	tctx = orgcontext.WithCredential(tctx, credential)

	subs, err := m.subscriptions.ListActive(tctx)
	if err != nil {
		metrics.IncStageError(obsmetrics.MonitorStageSubscriptions, err)
		return 0, 0, err
	}

	log := logger.WithOrg(m.log, orgID)
	var errs []error
	for i := range subs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		scanned++
		ok, err := m.closePeriod(tctx, log, &subs[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %d: %w", subs[i].SubscriptionID, err))
			continue
		}
		if ok {
			created++
		}
	}
	return created, scanned, errors.Join(errs...)
}

// closePeriod generates the invoice for one subscription if its current
// billing period has ended and no invoice covers it yet.
func (m *Monitor) closePeriod(ctx context.Context, log *zap.Logger, sub *subscriptiondomain.Subscription) (bool, error) {
	metrics := obsmetrics.Monitor()

	if sub.CurrentBillingPeriodStart == nil || sub.CurrentBillingPeriodEnd == nil {
		log.Debug("subscription has no anchored billing period",
			zap.Int64("subscription_id", sub.SubscriptionID),
		)
		return false, nil
	}
	if m.clock.Now().Before(*sub.CurrentBillingPeriodEnd) {
		return false, nil
	}

	exists, err := m.invoices.ExistsForPeriod(ctx, sub.SubscriptionID, *sub.CurrentBillingPeriodStart, *sub.CurrentBillingPeriodEnd)
	if err != nil {
		metrics.IncStageError(obsmetrics.MonitorStageInvoice, err)
		return false, err
	}
	if exists {
		metrics.IncInvoiceSkipped("already_exists")
		return false, nil
	}

	estimate, err := m.meter.Estimate(ctx, meterdomain.Request{
		SubscriptionID: &sub.SubscriptionID,
		From:           sub.CurrentBillingPeriodStart,
		To:             sub.CurrentBillingPeriodEnd,
	})
	if err != nil {
		metrics.IncStageError(obsmetrics.MonitorStageEstimate, err)
		return false, err
	}

	invoice, err := m.invoices.Create(ctx, invoicedomain.CreateRequest{
		CustomerID:     sub.CustomerID,
		SubscriptionID: &sub.SubscriptionID,
		RatePlanID:     sub.RatePlanID,
		PeriodStart:    *sub.CurrentBillingPeriodStart,
		PeriodEnd:      *sub.CurrentBillingPeriodEnd,
		Priced:         estimate.Result,
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrAlreadyExists) {
			// Lost the race against a concurrent tick; the period is
			// covered either way.
			log.Debug("invoice already exists for period",
				zap.Int64("subscription_id", sub.SubscriptionID),
			)
			metrics.IncInvoiceSkipped("already_exists")
			return false, nil
		}
		metrics.IncStageError(obsmetrics.MonitorStageInvoice, err)
		return false, err
	}

	metrics.IncInvoiceGenerated()
	log.Info("billing period closed",
		zap.Int64("subscription_id", sub.SubscriptionID),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total", invoice.TotalAmount.String()),
		zap.Time("period_start", *sub.CurrentBillingPeriodStart),
		zap.Time("period_end", *sub.CurrentBillingPeriodEnd),
	)
	return true, nil
}

// RunForever ticks until ctx is cancelled.
func (m *Monitor) RunForever(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := m.RunOnce(ctx); err != nil {
			m.log.Warn("monitor tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
