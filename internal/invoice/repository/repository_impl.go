package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/metering/internal/invoice/domain"
	"github.com/smallbiznis/metering/pkg/db"
)

type repository struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(conn *gorm.DB, log *zap.Logger) domain.Repository {
	return &repository{
		db:  conn,
		log: log.Named("invoice.repository"),
	}
}

// Save writes the invoice header and every line item in one transaction.
// A unique violation on the period index or the invoice number surfaces as
// ErrAlreadyExists.
func (r *repository) Save(ctx context.Context, invoice *domain.Invoice) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("LineItems").Create(invoice).Error; err != nil {
			return err
		}
		if len(invoice.LineItems) == 0 {
			return nil
		}
		for i := range invoice.LineItems {
			invoice.LineItems[i].InvoiceID = invoice.ID
		}
		return tx.Create(&invoice.LineItems).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrAlreadyExists
		}
		r.log.Error("save invoice failed",
			zap.Int64("org_id", invoice.OrganizationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, orgID int64, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(tx *gorm.DB) *gorm.DB { return tx.Order("line_number ASC") }).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByNumber(ctx context.Context, orgID int64, invoiceNumber string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(tx *gorm.DB) *gorm.DB { return tx.Order("line_number ASC") }).
		Where("organization_id = ? AND invoice_number = ?", orgID, invoiceNumber).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) List(ctx context.Context, orgID int64, query domain.ListQuery) ([]domain.Invoice, error) {
	tx := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC")

	if query.CustomerID != nil {
		tx = tx.Where("customer_id = ?", *query.CustomerID)
	}
	if query.SubscriptionID != nil {
		tx = tx.Where("subscription_id = ?", *query.SubscriptionID)
	}
	if query.Status != nil {
		tx = tx.Where("status = ?", *query.Status)
	}
	if query.PeriodStart != nil {
		tx = tx.Where("billing_period_start = ?", *query.PeriodStart)
	}
	if query.PeriodEnd != nil {
		tx = tx.Where("billing_period_end = ?", *query.PeriodEnd)
	}

	var invoices []domain.Invoice
	if err := tx.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) ExistsForPeriod(ctx context.Context, orgID, subscriptionID int64, periodStart, periodEnd time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("organization_id = ? AND subscription_id = ?", orgID, subscriptionID).
		Where("billing_period_start = ? AND billing_period_end = ?", periodStart, periodEnd).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) UpdateStatus(ctx context.Context, invoice *domain.Invoice, next domain.InvoiceStatus) error {
	if !invoice.Status.CanTransitionTo(next) {
		return domain.ErrInvalidTransition
	}

	// Guard the transition in SQL so concurrent updates cannot skip a
	// state.
	result := r.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, invoice.Status).
		Update("status", next)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidTransition
	}
	invoice.Status = next
	return nil
}
