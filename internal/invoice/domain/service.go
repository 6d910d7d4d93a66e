package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/metering/internal/pricing"
)

var (
	ErrAlreadyExists     = errors.New("invoice_already_exists")
	ErrNotFound          = errors.New("invoice_not_found")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrMissingPeriod     = errors.New("invalid_argument: billing period is required")
	ErrMissingCustomer   = errors.New("invalid_argument: customer is required")
)

// CreateRequest carries everything needed to materialize an invoice from a
// priced result.
type CreateRequest struct {
	CustomerID     int64
	SubscriptionID *int64
	RatePlanID     *int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Notes          string
	Priced         pricing.Result
}

// ListQuery filters invoice listings. Zero values mean the dimension is not
// filtered. Results are ordered newest first.
type ListQuery struct {
	CustomerID     *int64
	SubscriptionID *int64
	Status         *InvoiceStatus
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// Service creates and manages invoices for the tenant bound to ctx.
type Service interface {
	// Create persists a DRAFT invoice with its line items. A second create
	// for the same (org, subscription, period) returns ErrAlreadyExists.
	Create(ctx context.Context, req CreateRequest) (*Invoice, error)

	GetByID(ctx context.Context, id snowflake.ID) (*Invoice, error)
	GetByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)
	List(ctx context.Context, query ListQuery) ([]Invoice, error)

	// UpdateStatus applies a lifecycle transition, rejecting moves the
	// lifecycle does not allow.
	UpdateStatus(ctx context.Context, id snowflake.ID, next InvoiceStatus) (*Invoice, error)

	ExistsForPeriod(ctx context.Context, subscriptionID int64, periodStart, periodEnd time.Time) (bool, error)
}

// Repository persists invoices. Save writes the header and all line items
// in one transaction.
type Repository interface {
	Save(ctx context.Context, invoice *Invoice) error
	FindByID(ctx context.Context, orgID int64, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, orgID int64, invoiceNumber string) (*Invoice, error)
	List(ctx context.Context, orgID int64, query ListQuery) ([]Invoice, error)
	ExistsForPeriod(ctx context.Context, orgID, subscriptionID int64, periodStart, periodEnd time.Time) (bool, error)
	UpdateStatus(ctx context.Context, invoice *Invoice, next InvoiceStatus) error
}

// CreatedHandler observes successfully created invoices. Handlers run
// after the transaction commits; their failures never roll the invoice
// back.
type CreatedHandler interface {
	InvoiceCreated(ctx context.Context, invoice *Invoice)
}
