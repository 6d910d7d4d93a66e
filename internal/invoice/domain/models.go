// Package domain contains persistence models and contracts for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "DRAFT"
	InvoiceStatusIssued  InvoiceStatus = "ISSUED"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// CanTransitionTo reports whether the lifecycle allows moving to next.
// VOID is terminal.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return next == InvoiceStatusIssued
	case InvoiceStatusIssued:
		return next == InvoiceStatusPaid || next == InvoiceStatusVoid || next == InvoiceStatusOverdue
	case InvoiceStatusOverdue:
		return next == InvoiceStatusPaid || next == InvoiceStatusVoid
	default:
		return false
	}
}

// Invoice is a generated invoice. At most one invoice exists per
// (organization, subscription, billing period) triple; the unique index is
// the backstop for concurrent generation.
type Invoice struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	OrganizationID int64           `gorm:"not null;index;uniqueIndex:ux_invoice_period"`
	CustomerID     int64           `gorm:"not null;index"`
	SubscriptionID *int64          `gorm:"index;uniqueIndex:ux_invoice_period"`
	RatePlanID     *int64          `gorm:"index"`
	InvoiceNumber  string          `gorm:"type:varchar(21);not null;uniqueIndex"`
	ModelType      string          `gorm:"type:text"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(19,2);not null"`

	BillingPeriodStart *time.Time `gorm:"uniqueIndex:ux_invoice_period"`
	BillingPeriodEnd   *time.Time `gorm:"uniqueIndex:ux_invoice_period"`

	Status    InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'"`
	Notes     string        `gorm:"type:text"`
	CreatedAt time.Time     `gorm:"not null"`
	UpdatedAt time.Time     `gorm:"not null"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem is one breakdown line, exclusively owned by its invoice.
// Amount is signed: negative lines are credits or discounts.
type InvoiceLineItem struct {
	ID          snowflake.ID     `gorm:"primaryKey"`
	InvoiceID   snowflake.ID     `gorm:"not null;index"`
	LineNumber  int              `gorm:"not null"`
	Description string           `gorm:"type:text;not null"`
	Calculation string           `gorm:"type:text"`
	Amount      decimal.Decimal  `gorm:"type:decimal(19,2);not null"`
	Quantity    *int64           `gorm:""`
	UnitPrice   *decimal.Decimal `gorm:"type:decimal(19,6)"`
	CreatedAt   time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }
