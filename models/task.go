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

// Task is a sub-allocation within a budget item (e.g. "deposit for venue").
type Task struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OwnerId         int             `gorm:"index;not null" json:"owner_id"`
	BudgetItemId    int             `gorm:"index;not null" json:"budget_item_id" binding:"required"`
	Title           string          `gorm:"size:255;not null;index" json:"title" binding:"required"`
	Description     string          `gorm:"type:text" json:"description"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"allocated_amount"`
	AmountPaid      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_paid"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTask struct {
	BudgetItemId    int             `json:"budget_item_id" binding:"required"`
	Title           string          `json:"title" binding:"required"`
	Description     string          `json:"description"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
}

// Balance is the unpaid part of the allocation, clamped to zero.
func (t *Task) Balance() decimal.Decimal {
	return ClampZero(t.AllocatedAmount.Sub(t.AmountPaid))
}

func (input *NewTask) validate() error {
	if input.Title == "" {
		return utils.NewValidationError("title", "Title cannot be empty.")
	}
	if input.AllocatedAmount.IsNegative() {
		return utils.NewValidationError("allocated_amount", "Allocated amount cannot be negative.")
	}
	if input.AmountPaid.IsNegative() {
		return utils.NewValidationError("amount_paid", "Amount paid cannot be negative.")
	}
	if input.AmountPaid.GreaterThan(input.AllocatedAmount) {
		return utils.NewValidationError("amount_paid", "Amount paid cannot exceed allocated amount.")
	}
	return nil
}

func lockBudgetItem(ctx context.Context, tx *gorm.DB, ownerId int, itemId int) (*BudgetItem, error) {
	var item BudgetItem
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).
		First(&item, itemId).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &item, nil
}

// checkAllocationCeiling validates the sibling-task allocation sum, excluding
// exceptId, against the budget item's estimated budget.
func checkAllocationCeiling(ctx context.Context, tx *gorm.DB, item *BudgetItem, candidate decimal.Decimal, exceptId int) error {
	var siblings []Task
	dbCtx := tx.WithContext(ctx).Where("budget_item_id = ?", item.ID)
	if exceptId > 0 {
		dbCtx = dbCtx.Where("id <> ?", exceptId)
	}
	if err := dbCtx.Find(&siblings).Error; err != nil {
		return err
	}
	combined := SumAllocated(siblings).Add(candidate)
	if combined.GreaterThan(item.EstimatedBudget) {
		return utils.NewBudgetExceededError(
			"Total allocated amount for tasks exceeds budget item estimated budget.",
			combined, item.EstimatedBudget)
	}
	return nil
}

func CreateTask(ctx context.Context, input *NewTask) (*Task, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	item, err := lockBudgetItem(ctx, tx, ownerId, input.BudgetItemId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkAllocationCeiling(ctx, tx, item, input.AllocatedAmount, 0); err != nil {
		tx.Rollback()
		return nil, err
	}

	task := Task{
		OwnerId:         ownerId,
		BudgetItemId:    input.BudgetItemId,
		Title:           input.Title,
		Description:     input.Description,
		AllocatedAmount: input.AllocatedAmount,
		AmountPaid:      input.AmountPaid,
	}
	if err := tx.WithContext(ctx).Create(&task).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &task, nil
}

func UpdateTask(ctx context.Context, id int, input *NewTask) (*Task, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[Task](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	item, err := lockBudgetItem(ctx, tx, ownerId, existing.BudgetItemId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkAllocationCeiling(ctx, tx, item, input.AllocatedAmount, existing.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	existing.Title = input.Title
	existing.Description = input.Description
	existing.AllocatedAmount = input.AllocatedAmount
	existing.AmountPaid = input.AmountPaid

	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return existing, nil
}

func DeleteTask(ctx context.Context, id int) (*Task, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[Task](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&Task{}, id).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetTask(ctx context.Context, id int) (*Task, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[Task](ctx, ownerId, id)
}

func GetTasks(ctx context.Context, budgetItemId *int) ([]*Task, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
	if budgetItemId != nil && *budgetItemId > 0 {
		dbCtx = dbCtx.Where("budget_item_id = ?", *budgetItemId)
	}
	var results []*Task
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
