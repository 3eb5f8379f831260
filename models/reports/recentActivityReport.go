package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/utils"
)

type ActivityEntry struct {
	Kind        string          `json:"kind"` // pledge | mobile_money | manual | vendor_payment
	ReferenceId int             `json:"reference_id"`
	EventId     int             `json:"event_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

const recentActivityLimit = 20

func budgetItemEventIds(ctx context.Context, payments []models.VendorPayment) (map[int]int, error) {
	if len(payments) == 0 {
		return map[int]int{}, nil
	}
	itemIds := make([]int, 0, len(payments))
	seen := make(map[int]bool, len(payments))
	for _, p := range payments {
		if !seen[p.BudgetItemId] {
			seen[p.BudgetItemId] = true
			itemIds = append(itemIds, p.BudgetItemId)
		}
	}
	var items []models.BudgetItem
	if err := config.GetDB().WithContext(ctx).
		Select("id", "event_id").Where("id IN ?", itemIds).
		Find(&items).Error; err != nil {
		return nil, err
	}
	out := make(map[int]int, len(items))
	for _, it := range items {
		out[it.ID] = it.EventId
	}
	return out, nil
}

// GetRecentActivity interleaves the latest pledges and payments across all of
// the organizer's events, newest first.
func GetRecentActivity(ctx context.Context) ([]ActivityEntry, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	cacheKey := fmt.Sprintf("report:recent-activity:%d", ownerId)
	if reportCacheEnabled() {
		var cached []ActivityEntry
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	db := config.GetDB()
	entries := make([]ActivityEntry, 0, recentActivityLimit*4)

	var pledges []models.Pledge
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).
		Order("id DESC").Limit(recentActivityLimit).Find(&pledges).Error; err != nil {
		return nil, err
	}
	for _, p := range pledges {
		entries = append(entries, ActivityEntry{
			Kind:        "pledge",
			ReferenceId: p.ID,
			EventId:     p.EventId,
			Description: fmt.Sprintf("%s pledged", p.Name),
			Amount:      p.AmountPledged,
			OccurredAt:  p.CreatedAt,
		})
	}

	var mobile []models.MobileMoneyPayment
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).
		Order("id DESC").Limit(recentActivityLimit).Find(&mobile).Error; err != nil {
		return nil, err
	}
	for _, p := range mobile {
		entries = append(entries, ActivityEntry{
			Kind:        "mobile_money",
			ReferenceId: p.ID,
			EventId:     p.EventId,
			Description: fmt.Sprintf("Mobile money payment %s", p.TransactionId),
			Amount:      p.Amount,
			OccurredAt:  p.CreatedAt,
		})
	}

	var manual []models.ManualPayment
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).
		Order("id DESC").Limit(recentActivityLimit).Find(&manual).Error; err != nil {
		return nil, err
	}
	for _, p := range manual {
		entries = append(entries, ActivityEntry{
			Kind:        "manual",
			ReferenceId: p.ID,
			EventId:     p.EventId,
			Description: "Manual payment recorded",
			Amount:      p.Amount,
			OccurredAt:  p.CreatedAt,
		})
	}

	var vendor []models.VendorPayment
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).
		Order("id DESC").Limit(recentActivityLimit).Find(&vendor).Error; err != nil {
		return nil, err
	}
	// Vendor payments hang off budget items, not events; resolve the event
	// through the item so the entry links like the other kinds.
	itemEvents, err := budgetItemEventIds(ctx, vendor)
	if err != nil {
		return nil, err
	}
	for _, p := range vendor {
		entries = append(entries, ActivityEntry{
			Kind:        "vendor_payment",
			ReferenceId: p.ID,
			EventId:     itemEvents[p.BudgetItemId],
			Description: fmt.Sprintf("Vendor paid via %s", p.PaymentMethod),
			Amount:      p.Amount,
			OccurredAt:  p.CreatedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
	if len(entries) > recentActivityLimit {
		entries = entries[:recentActivityLimit]
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, entries, reportCacheTTL())
	}
	return entries, nil
}
