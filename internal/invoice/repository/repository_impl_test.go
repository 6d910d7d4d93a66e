package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/metering/internal/invoice/domain"
)

func ptr[T any](v T) *T { return &v }

func newTestRepo(t *testing.T) (domain.Repository, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, conn.AutoMigrate(&domain.Invoice{}, &domain.InvoiceLineItem{}))
	return New(conn, zap.NewNop()), conn
}

func marchInvoice(node *snowflake.Node, number string) *domain.Invoice {
	now := time.Date(2025, 4, 1, 0, 5, 0, 0, time.UTC)
	return &domain.Invoice{
		ID:                 node.Generate(),
		OrganizationID:     42,
		CustomerID:         9,
		SubscriptionID:     ptr(int64(100)),
		InvoiceNumber:      number,
		TotalAmount:        decimal.RequireFromString("240.00"),
		BillingPeriodStart: ptr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		BillingPeriodEnd:   ptr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		Status:             domain.InvoiceStatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
		LineItems: []domain.InvoiceLineItem{
			{
				ID:          node.Generate(),
				LineNumber:  1,
				Description: "Usage Charges",
				Calculation: "120 * 2",
				Amount:      decimal.RequireFromString("240.00"),
				CreatedAt:   now,
			},
		},
	}
}

func TestSaveRejectsSecondInvoiceForPeriod(t *testing.T) {
	repo, conn := newTestRepo(t)
	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	assert.NoError(t, repo.Save(context.Background(), marchInvoice(node, "INV-FIRST")))

	// Fresh IDs and a fresh invoice number, same organization,
	// subscription and period. The unique index alone must reject it.
	err = repo.Save(context.Background(), marchInvoice(node, "INV-SECOND"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	var invoices int64
	assert.NoError(t, conn.Model(&domain.Invoice{}).Count(&invoices).Error)
	assert.Equal(t, int64(1), invoices)

	var lines int64
	assert.NoError(t, conn.Model(&domain.InvoiceLineItem{}).Count(&lines).Error)
	assert.Equal(t, int64(1), lines)
}

func TestSaveAllowsNextPeriod(t *testing.T) {
	repo, conn := newTestRepo(t)
	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	assert.NoError(t, repo.Save(context.Background(), marchInvoice(node, "INV-MARCH")))

	april := marchInvoice(node, "INV-APRIL")
	april.ID = node.Generate()
	april.LineItems[0].ID = node.Generate()
	april.BillingPeriodStart = ptr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	april.BillingPeriodEnd = ptr(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, repo.Save(context.Background(), april))

	var invoices int64
	assert.NoError(t, conn.Model(&domain.Invoice{}).Count(&invoices).Error)
	assert.Equal(t, int64(2), invoices)
}
