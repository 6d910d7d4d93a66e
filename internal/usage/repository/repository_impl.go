package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/metering/internal/usage/domain"
	"github.com/smallbiznis/metering/pkg/db"
)

type repository struct {
	db  db.EventDB
	log *zap.Logger
}

func New(eventDB db.EventDB, log *zap.Logger) domain.Repository {
	return &repository{
		db:  eventDB,
		log: log.Named("usage.repository"),
	}
}

func (r *repository) CountEvents(ctx context.Context, orgID int64, from, to time.Time, filters domain.Filters) (int64, error) {
	query := r.db.WithContext(ctx).
		Table("ingestion_event").
		Where("status = ?", "SUCCESS").
		Where("organization_id = ?", orgID).
		Where("timestamp >= ? AND timestamp < ?", from, to)

	if filters.SubscriptionID != nil {
		query = query.Where("subscription_id = ?", *filters.SubscriptionID)
	}
	if filters.ProductID != nil {
		query = query.Where("product_id = ?", *filters.ProductID)
	}
	if filters.RatePlanID != nil {
		query = query.Where("rate_plan_id = ?", *filters.RatePlanID)
	}
	if filters.BillableMetricID != nil {
		query = query.Where("billable_metric_id = ?", *filters.BillableMetricID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		r.log.Error("count events failed", zap.Int64("org_id", orgID), zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *repository) LastEventAt(ctx context.Context, orgID int64) (*time.Time, error) {
	// Select the column instead of MAX() so the driver keeps the
	// timestamp type across dialects.
	var timestamps []time.Time
	err := r.db.WithContext(ctx).
		Table("ingestion_event").
		Where("status = ?", "SUCCESS").
		Where("organization_id = ?", orgID).
		Order("timestamp DESC").
		Limit(1).
		Pluck("timestamp", &timestamps).Error
	if err != nil {
		r.log.Error("last event lookup failed", zap.Int64("org_id", orgID), zap.Error(err))
		return nil, err
	}
	if len(timestamps) == 0 {
		return nil, nil
	}
	return &timestamps[0], nil
}

func (r *repository) ListOrganizationIDs(ctx context.Context) ([]int64, error) {
	var orgIDs []int64
	err := r.db.WithContext(ctx).
		Raw("SELECT DISTINCT organization_id FROM ingestion_event ORDER BY organization_id").
		Scan(&orgIDs).Error
	if err != nil {
		return nil, err
	}
	return orgIDs, nil
}
