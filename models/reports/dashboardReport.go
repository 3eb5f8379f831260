package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/utils"
)

// EventDashboard is the per-event rollup the dashboard screen renders.
type EventDashboard struct {
	EventId            int             `json:"event_id"`
	EventName          string          `json:"event_name"`
	EventDate          time.Time       `json:"event_date"`
	TotalBudget        decimal.Decimal `json:"total_budget"`
	TotalPledged       decimal.Decimal `json:"total_pledged"`
	TotalReceived      decimal.Decimal `json:"total_received"`
	PercentageCovered  decimal.Decimal `json:"percentage_covered"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	OverpaidAmount     decimal.Decimal `json:"overpaid_amount"`
	IsFunded           bool            `json:"is_funded"`
	PledgeCount        int             `json:"pledge_count"`
	FulfilledPledges   int             `json:"fulfilled_pledges"`
	BudgetItemCount    int             `json:"budget_item_count"`
	TotalEstimated     decimal.Decimal `json:"total_estimated"`
	TotalVendorPaid    decimal.Decimal `json:"total_vendor_paid"`
}

// GeneralSummary aggregates across all of an organizer's events.
type GeneralSummary struct {
	EventCount       int               `json:"event_count"`
	FundedEvents     int               `json:"funded_events"`
	TotalBudget      decimal.Decimal   `json:"total_budget"`
	TotalPledged     decimal.Decimal   `json:"total_pledged"`
	TotalReceived    decimal.Decimal   `json:"total_received"`
	TotalOutstanding decimal.Decimal   `json:"total_outstanding"`
	Events           []*EventDashboard `json:"events"`
}

// GetEventDashboard computes the rollup for one event. Derived numbers come
// from the streams on every call; the dashboard tolerates the slight
// staleness of reading outside the write transaction.
func GetEventDashboard(ctx context.Context, eventId int) (*EventDashboard, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	event, err := models.GetEvent(ctx, eventId)
	if err != nil {
		return nil, err
	}
	return buildEventDashboard(ctx, event)
}

// GetGeneralSummary is the landing-page report, cached briefly in redis
// because it touches every stream the organizer has.
func GetGeneralSummary(ctx context.Context) (*GeneralSummary, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	cacheKey := fmt.Sprintf("report:general-summary:%d", ownerId)
	if reportCacheEnabled() {
		var cached GeneralSummary
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	var summary GeneralSummary
	err := withRebuildLock(ctx, cacheKey, func() error {
		// Another instance may have rebuilt while we waited for the lock.
		if reportCacheEnabled() {
			var cached GeneralSummary
			if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
				summary = cached
				return nil
			}
		}

		started := time.Now()

		events, err := models.GetEvents(ctx)
		if err != nil {
			return err
		}

		summary = GeneralSummary{
			TotalBudget:      decimal.Zero,
			TotalPledged:     decimal.Zero,
			TotalReceived:    decimal.Zero,
			TotalOutstanding: decimal.Zero,
			Events:           make([]*EventDashboard, 0, len(events)),
		}
		for _, event := range events {
			dashboard, err := buildEventDashboard(ctx, event)
			if err != nil {
				return err
			}
			summary.EventCount++
			if dashboard.IsFunded {
				summary.FundedEvents++
			}
			summary.TotalBudget = summary.TotalBudget.Add(dashboard.TotalBudget)
			summary.TotalPledged = summary.TotalPledged.Add(dashboard.TotalPledged)
			summary.TotalReceived = summary.TotalReceived.Add(dashboard.TotalReceived)
			summary.TotalOutstanding = summary.TotalOutstanding.Add(dashboard.OutstandingBalance)
			summary.Events = append(summary.Events, dashboard)
		}

		logSlowReport(ctx, "general_summary", started, map[string]any{"events": summary.EventCount})

		if reportCacheEnabled() {
			_ = cacheSet(cacheKey, &summary, reportCacheTTL())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func buildEventDashboard(ctx context.Context, event *models.Event) (*EventDashboard, error) {

	metrics, err := event.Metrics(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	var pledges []models.Pledge
	if err := db.WithContext(ctx).Where("event_id = ?", event.ID).Find(&pledges).Error; err != nil {
		return nil, err
	}
	fulfilled := 0
	for _, p := range pledges {
		if p.IsFulfilled {
			fulfilled++
		}
	}

	var items []models.BudgetItem
	if err := db.WithContext(ctx).Where("event_id = ?", event.ID).Find(&items).Error; err != nil {
		return nil, err
	}
	totalVendorPaid := decimal.Zero
	for _, item := range items {
		paid, err := models.BudgetItemTotalVendorPayments(ctx, db, item.ID)
		if err != nil {
			return nil, err
		}
		totalVendorPaid = totalVendorPaid.Add(paid)
	}

	return &EventDashboard{
		EventId:            event.ID,
		EventName:          event.Name,
		EventDate:          event.EventDate,
		TotalBudget:        event.TotalBudget,
		TotalPledged:       metrics.TotalPledged,
		TotalReceived:      metrics.TotalReceived,
		PercentageCovered:  metrics.PercentageCovered,
		OutstandingBalance: metrics.OutstandingBalance,
		OverpaidAmount:     metrics.OverpaidAmount,
		IsFunded:           metrics.IsFunded,
		PledgeCount:        len(pledges),
		FulfilledPledges:   fulfilled,
		BudgetItemCount:    len(items),
		TotalEstimated:     models.SumEstimated(items),
		TotalVendorPaid:    totalVendorPaid,
	}, nil
}
