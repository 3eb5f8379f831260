package models

import (
	"context"

	"github.com/zawadi/eventfund_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Funding flags are never incremented in place. Every recompute below
// re-derives the flag from the full transaction stream inside the caller's
// transaction, so a decrease (a deleted payment, a raised ceiling) flips the
// flag back down just as reliably as an increase flips it up.
//
// Each recompute locks its parent row (FOR UPDATE) before reading the
// stream. Under READ COMMITTED two transactions inserting payments against
// the same parent would otherwise each sum the stream without the other's
// uncommitted row and both write a stale total; the row lock serializes
// them, so the second recompute reads the first's committed rows.

// RecomputeEventFunding re-derives Event.IsFunded from the event's payment
// streams against its current total budget.
func RecomputeEventFunding(ctx context.Context, tx *gorm.DB, eventId int) error {
	var event Event
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&event, eventId).Error; err != nil {
		return err
	}

	var mobile []MobileMoneyPayment
	if err := tx.WithContext(ctx).Where("event_id = ?", eventId).Find(&mobile).Error; err != nil {
		return err
	}
	var manual []ManualPayment
	if err := tx.WithContext(ctx).Where("event_id = ?", eventId).Find(&manual).Error; err != nil {
		return err
	}

	received := SumReceived(mobile, manual)
	isFunded := FundingReached(received, event.TotalBudget)
	if isFunded == event.IsFunded {
		return nil
	}
	return tx.WithContext(ctx).Model(&Event{}).Where("id = ?", eventId).
		Update("is_funded", isFunded).Error
}

// RecomputeBudgetItemFunding re-derives BudgetItem.IsFunded from the item's
// vendor payments against its estimated budget.
func RecomputeBudgetItemFunding(ctx context.Context, tx *gorm.DB, itemId int) error {
	var item BudgetItem
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, itemId).Error; err != nil {
		return err
	}

	paid, err := BudgetItemTotalVendorPayments(ctx, tx, itemId)
	if err != nil {
		return err
	}
	isFunded := FundingReached(paid, item.EstimatedBudget)
	if isFunded == item.IsFunded {
		return nil
	}
	return tx.WithContext(ctx).Model(&BudgetItem{}).Where("id = ?", itemId).
		Update("is_funded", isFunded).Error
}

// RecomputeVendorConfirmations re-derives the confirmed flag on every
// payment of a provider: all flip true the moment cumulative payments reach
// the amount charged, and back to false if the total later drops below it.
func RecomputeVendorConfirmations(ctx context.Context, tx *gorm.DB, providerId int) error {
	var provider ServiceProvider
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&provider, providerId).Error; err != nil {
		return err
	}

	var payments []VendorPayment
	if err := tx.WithContext(ctx).Where("service_provider_id = ?", providerId).Find(&payments).Error; err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}

	fullyPaid := FundingReached(SumVendorPayments(payments, true), provider.AmountCharged)
	return tx.WithContext(ctx).Model(&VendorPayment{}).
		Where("service_provider_id = ?", providerId).
		Update("confirmed", fullyPaid).Error
}

// RecomputePledgeStatus re-derives Pledge.TotalPaid and Pledge.IsFulfilled
// from both payment streams. TotalPaid is always rewritten so the stored
// value can never drift from the streams, even when the flag is unchanged.
func RecomputePledgeStatus(ctx context.Context, tx *gorm.DB, pledgeId int) error {
	var pledge Pledge
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&pledge, pledgeId).Error; err != nil {
		return err
	}

	var mobile []MobileMoneyPayment
	if err := tx.WithContext(ctx).Where("pledge_id = ?", pledgeId).Find(&mobile).Error; err != nil {
		return err
	}
	var manual []ManualPayment
	if err := tx.WithContext(ctx).Where("pledge_id = ?", pledgeId).Find(&manual).Error; err != nil {
		return err
	}

	total := SumReceived(mobile, manual)
	return tx.WithContext(ctx).Model(&Pledge{}).Where("id = ?", pledgeId).
		Updates(map[string]interface{}{
			"total_paid":   total,
			"is_fulfilled": FundingReached(total, pledge.AmountPledged),
		}).Error
}

// RebuildOwnerFundingStatus recomputes every denormalized flag the owner has:
// all pledges, all budget items, all events. Used by the offline rebuild tool
// after manual data surgery; normal write paths never need it.
func RebuildOwnerFundingStatus(ctx context.Context, ownerId int) error {
	db := config.GetDB()
	tx := db.Begin()

	var pledges []Pledge
	if err := tx.WithContext(ctx).Where("owner_id = ?", ownerId).Find(&pledges).Error; err != nil {
		tx.Rollback()
		return err
	}
	for i := range pledges {
		if err := RecomputePledgeStatus(ctx, tx, pledges[i].ID); err != nil {
			tx.Rollback()
			return err
		}
	}

	var providers []ServiceProvider
	if err := tx.WithContext(ctx).Where("owner_id = ?", ownerId).Find(&providers).Error; err != nil {
		tx.Rollback()
		return err
	}
	for i := range providers {
		if err := RecomputeVendorConfirmations(ctx, tx, providers[i].ID); err != nil {
			tx.Rollback()
			return err
		}
	}

	var items []BudgetItem
	if err := tx.WithContext(ctx).Where("owner_id = ?", ownerId).Find(&items).Error; err != nil {
		tx.Rollback()
		return err
	}
	for i := range items {
		if err := RecomputeBudgetItemFunding(ctx, tx, items[i].ID); err != nil {
			tx.Rollback()
			return err
		}
	}

	var events []Event
	if err := tx.WithContext(ctx).Where("owner_id = ?", ownerId).Find(&events).Error; err != nil {
		tx.Rollback()
		return err
	}
	for i := range events {
		if err := RecomputeEventFunding(ctx, tx, events[i].ID); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}
