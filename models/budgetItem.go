package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BudgetItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OwnerId         int             `gorm:"index;not null" json:"owner_id"`
	EventId         int             `gorm:"index;not null" json:"event_id" binding:"required"`
	Category        string          `gorm:"size:255;not null;index" json:"category" binding:"required"`
	EstimatedBudget decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"estimated_budget"`
	IsFunded        bool            `gorm:"not null;default:false" json:"is_funded"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBudgetItem struct {
	EventId         int             `json:"event_id" binding:"required"`
	Category        string          `json:"category" binding:"required"`
	EstimatedBudget decimal.Decimal `json:"estimated_budget"`
}

// BudgetItemView adds the derived ledger fields to a budget item.
type BudgetItemView struct {
	BudgetItem
	TotalVendorPayments decimal.Decimal `json:"total_vendor_payments"`
	RemainingBudget     decimal.Decimal `json:"remaining_budget"`
	IsFullyPaid         bool            `json:"is_fully_paid"`
}

func (input *NewBudgetItem) validate() error {
	if input.Category == "" {
		return utils.NewValidationError("category", "Category cannot be empty.")
	}
	if input.EstimatedBudget.IsNegative() {
		return utils.NewValidationError("estimated_budget", "Estimated budget cannot be negative.")
	}
	return nil
}

// checkEventCeiling recomputes the sibling sum excluding exceptId, adds the
// candidate amount, and fails when the combined total exceeds the event's
// total budget. The event row must already be locked by the caller's tx so
// two concurrent writes cannot both pass on a stale sum.
func checkEventCeiling(ctx context.Context, tx *gorm.DB, event *Event, candidate decimal.Decimal, exceptId int) error {
	var siblings []BudgetItem
	dbCtx := tx.WithContext(ctx).Where("event_id = ?", event.ID)
	if exceptId > 0 {
		dbCtx = dbCtx.Where("id <> ?", exceptId)
	}
	if err := dbCtx.Find(&siblings).Error; err != nil {
		return err
	}
	combined := SumEstimated(siblings).Add(candidate)
	if combined.GreaterThan(event.TotalBudget) {
		return utils.NewBudgetExceededError(
			"Total estimated budget for all items exceeds event's total budget.",
			combined, event.TotalBudget)
	}
	return nil
}

func lockEvent(ctx context.Context, tx *gorm.DB, ownerId int, eventId int) (*Event, error) {
	var event Event
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).
		First(&event, eventId).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &event, nil
}

func CreateBudgetItem(ctx context.Context, input *NewBudgetItem) (*BudgetItem, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	event, err := lockEvent(ctx, tx, ownerId, input.EventId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkEventCeiling(ctx, tx, event, input.EstimatedBudget, 0); err != nil {
		tx.Rollback()
		return nil, err
	}

	item := BudgetItem{
		OwnerId:         ownerId,
		EventId:         input.EventId,
		Category:        input.Category,
		EstimatedBudget: input.EstimatedBudget,
	}
	if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &item, nil
}

func UpdateBudgetItem(ctx context.Context, id int, input *NewBudgetItem) (*BudgetItem, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[BudgetItem](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	event, err := lockEvent(ctx, tx, ownerId, existing.EventId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	// exclude the record being updated so in-place edits don't self-collide
	if err := checkEventCeiling(ctx, tx, event, input.EstimatedBudget, existing.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	existing.Category = input.Category
	existing.EstimatedBudget = input.EstimatedBudget

	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// estimated budget is this item's funding ceiling
	if err := RecomputeBudgetItemFunding(ctx, tx, existing.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[BudgetItem](ctx, ownerId, id)
}

func DeleteBudgetItem(ctx context.Context, id int) (*BudgetItem, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[BudgetItem](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("budget_item_id = ?", id).Delete(&Task{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("budget_item_id = ?", id).Delete(&VendorPayment{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("budget_item_id = ?", id).Delete(&ServiceProvider{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&BudgetItem{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return result, nil
}

func GetBudgetItem(ctx context.Context, id int) (*BudgetItem, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[BudgetItem](ctx, ownerId, id)
}

func GetBudgetItems(ctx context.Context, eventId *int) ([]*BudgetItem, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
	if eventId != nil && *eventId > 0 {
		dbCtx = dbCtx.Where("event_id = ?", *eventId)
	}
	var results []*BudgetItem
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func loadItemVendorPayments(ctx context.Context, tx *gorm.DB, itemId int) ([]VendorPayment, error) {
	var payments []VendorPayment
	err := tx.WithContext(ctx).Where("budget_item_id = ?", itemId).Find(&payments).Error
	return payments, err
}

// BudgetItemTotalVendorPayments re-reads the vendor payment stream inside the
// caller's tx, honoring the count-unconfirmed configuration.
func BudgetItemTotalVendorPayments(ctx context.Context, tx *gorm.DB, itemId int) (decimal.Decimal, error) {
	payments, err := loadItemVendorPayments(ctx, tx, itemId)
	if err != nil {
		return decimal.Zero, err
	}
	return SumVendorPayments(payments, config.CountUnconfirmedVendorPayments()), nil
}

// View computes the derived ledger fields for one budget item.
func (item *BudgetItem) View(ctx context.Context) (*BudgetItemView, error) {
	db := config.GetDB()
	total, err := BudgetItemTotalVendorPayments(ctx, db, item.ID)
	if err != nil {
		return nil, err
	}
	return &BudgetItemView{
		BudgetItem:          *item,
		TotalVendorPayments: total,
		RemainingBudget:     ClampZero(item.EstimatedBudget.Sub(total)),
		IsFullyPaid:         FundingReached(total, item.EstimatedBudget),
	}, nil
}
