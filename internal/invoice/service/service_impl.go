package service

import (
	"context"
	"math/big"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/metering/internal/clock"
	"github.com/smallbiznis/metering/internal/invoice/domain"
	"github.com/smallbiznis/metering/internal/orgcontext"
)

type Param struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Node     *snowflake.Node
	Repo     domain.Repository
	Handlers []domain.CreatedHandler `group:"invoice.created"`
}

type service struct {
	log      *zap.Logger
	clock    clock.Clock
	node     *snowflake.Node
	repo     domain.Repository
	handlers []domain.CreatedHandler
}

func New(p Param) domain.Service {
	return &service{
		log:      p.Log.Named("invoice.service"),
		clock:    p.Clock,
		node:     p.Node,
		repo:     p.Repo,
		handlers: p.Handlers,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}
	if req.CustomerID == 0 {
		return nil, domain.ErrMissingCustomer
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		return nil, domain.ErrMissingPeriod
	}

	// Cheap pre-check; the unique index is the real guard under
	// concurrency.
	if req.SubscriptionID != nil {
		exists, err := s.repo.ExistsForPeriod(ctx, orgID, *req.SubscriptionID, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrAlreadyExists
		}
	}

	now := s.clock.Now()
	invoice := &domain.Invoice{
		ID:                 s.node.Generate(),
		OrganizationID:     orgID,
		CustomerID:         req.CustomerID,
		SubscriptionID:     req.SubscriptionID,
		RatePlanID:         req.RatePlanID,
		InvoiceNumber:      InvoiceNumber(orgID, req.CustomerID, now),
		ModelType:          req.Priced.ModelType,
		TotalAmount:        req.Priced.Total,
		BillingPeriodStart: &req.PeriodStart,
		BillingPeriodEnd:   &req.PeriodEnd,
		Status:             domain.InvoiceStatusDraft,
		Notes:              req.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	for i, line := range req.Priced.Breakdown {
		amount := line.Amount
		invoice.LineItems = append(invoice.LineItems, domain.InvoiceLineItem{
			ID:          s.node.Generate(),
			LineNumber:  i + 1,
			Description: line.Label,
			Calculation: line.Calculation,
			Amount:      amount,
			CreatedAt:   now,
		})
	}

	if err := s.repo.Save(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.Int64("org_id", orgID),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total", invoice.TotalAmount.String()),
	)

	for _, handler := range s.handlers {
		handler.InvoiceCreated(ctx, invoice)
	}
	return invoice, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, orgID, id)
}

func (s *service) GetByNumber(ctx context.Context, invoiceNumber string) (*domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByNumber(ctx, orgID, invoiceNumber)
}

func (s *service) List(ctx context.Context, query domain.ListQuery) ([]domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, orgID, query)
}

func (s *service) UpdateStatus(ctx context.Context, id snowflake.ID, next domain.InvoiceStatus) (*domain.Invoice, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, invoice, next); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *service) ExistsForPeriod(ctx context.Context, subscriptionID int64, periodStart, periodEnd time.Time) (bool, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return false, err
	}
	return s.repo.ExistsForPeriod(ctx, orgID, subscriptionID, periodStart, periodEnd)
}

// numberSpace bounds the base36 payload to 17 characters so the full
// number never exceeds 21 characters.
var numberSpace = new(big.Int).Exp(big.NewInt(36), big.NewInt(17), nil)

// InvoiceNumber derives a deterministic business key from the tenant,
// customer and creation instant.
func InvoiceNumber(orgID, customerID int64, createdAt time.Time) string {
	value := big.NewInt(createdAt.UnixMilli())
	value.Add(value, new(big.Int).Mul(big.NewInt(orgID), big.NewInt(1_000_000_000_000)))
	value.Add(value, new(big.Int).Mul(big.NewInt(customerID), big.NewInt(1_000_000)))
	value.Mod(value, numberSpace)
	return "INV-" + value.Text(36)
}
