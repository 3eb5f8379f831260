package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/utils"
	"gorm.io/gorm"
)

// ServiceProvider is a vendor engaged against a budget item. The amount
// charged may not exceed the item's estimated budget.
type ServiceProvider struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OwnerId        int             `gorm:"index;not null" json:"owner_id"`
	BudgetItemId   int             `gorm:"index;not null" json:"budget_item_id" binding:"required"`
	Name           string          `gorm:"size:255;not null;index" json:"name" binding:"required"`
	PhoneNumber    string          `gorm:"size:20" json:"phone_number"`
	Email          string          `gorm:"size:255" json:"email"`
	ServiceOffered string          `gorm:"size:255" json:"service_offered"`
	AmountCharged  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_charged"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewServiceProvider struct {
	BudgetItemId   int             `json:"budget_item_id" binding:"required"`
	Name           string          `json:"name" binding:"required"`
	PhoneNumber    string          `json:"phone_number"`
	Email          string          `json:"email"`
	ServiceOffered string          `json:"service_offered"`
	AmountCharged  decimal.Decimal `json:"amount_charged"`
	Notes          string          `json:"notes"`
}

// ServiceProviderView augments the row with payment-derived totals.
type ServiceProviderView struct {
	ServiceProvider
	TotalReceived decimal.Decimal `json:"total_received"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
}

func (input *NewServiceProvider) validate() error {
	if input.Name == "" {
		return utils.NewValidationError("name", "Provider name cannot be empty.")
	}
	if input.AmountCharged.IsNegative() {
		return utils.NewValidationError("amount_charged", "Amount charged cannot be negative.")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "Email address is not valid.")
	}
	return nil
}

func CreateServiceProvider(ctx context.Context, input *NewServiceProvider) (*ServiceProvider, error) {

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
	if input.AmountCharged.GreaterThan(item.EstimatedBudget) {
		tx.Rollback()
		return nil, utils.NewBudgetExceededError(
			"Amount charged cannot exceed the budget item's estimated budget.",
			input.AmountCharged, item.EstimatedBudget)
	}

	phone := input.PhoneNumber
	if phone != "" {
		phone = utils.NormalizePhoneNumber(phone)
	}

	provider := ServiceProvider{
		OwnerId:        ownerId,
		BudgetItemId:   input.BudgetItemId,
		Name:           input.Name,
		PhoneNumber:    phone,
		Email:          input.Email,
		ServiceOffered: input.ServiceOffered,
		AmountCharged:  input.AmountCharged,
		Notes:          input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&provider).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &provider, nil
}

func UpdateServiceProvider(ctx context.Context, id int, input *NewServiceProvider) (*ServiceProvider, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[ServiceProvider](ctx, ownerId, id)
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
	if input.AmountCharged.GreaterThan(item.EstimatedBudget) {
		tx.Rollback()
		return nil, utils.NewBudgetExceededError(
			"Amount charged cannot exceed the budget item's estimated budget.",
			input.AmountCharged, item.EstimatedBudget)
	}

	// lowering the charge below what has already been paid out would leave
	// the payment stream inconsistent
	paid, err := serviceProviderTotalReceived(ctx, tx, existing.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if input.AmountCharged.LessThan(paid) {
		tx.Rollback()
		return nil, utils.NewValidationError("amount_charged",
			"Amount charged cannot be below payments already made to this provider.")
	}

	phone := input.PhoneNumber
	if phone != "" {
		phone = utils.NormalizePhoneNumber(phone)
	}

	existing.Name = input.Name
	existing.PhoneNumber = phone
	existing.Email = input.Email
	existing.ServiceOffered = input.ServiceOffered
	existing.AmountCharged = input.AmountCharged
	existing.Notes = input.Notes

	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return existing, nil
}

func DeleteServiceProvider(ctx context.Context, id int) (*ServiceProvider, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[ServiceProvider](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Where("service_provider_id = ?", id).Delete(&VendorPayment{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&ServiceProvider{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecomputeBudgetItemFunding(ctx, tx, result.BudgetItemId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetServiceProvider(ctx context.Context, id int) (*ServiceProviderView, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	provider, err := utils.FetchModel[ServiceProvider](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}
	return provider.View(ctx)
}

func GetServiceProviders(ctx context.Context, budgetItemId *int) ([]*ServiceProviderView, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
	if budgetItemId != nil && *budgetItemId > 0 {
		dbCtx = dbCtx.Where("budget_item_id = ?", *budgetItemId)
	}
	var providers []ServiceProvider
	if err := dbCtx.Find(&providers).Error; err != nil {
		return nil, err
	}

	views := make([]*ServiceProviderView, 0, len(providers))
	for i := range providers {
		view, err := providers[i].View(ctx)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func serviceProviderTotalReceived(ctx context.Context, tx *gorm.DB, providerId int) (decimal.Decimal, error) {
	var payments []VendorPayment
	err := tx.WithContext(ctx).Where("service_provider_id = ?", providerId).Find(&payments).Error
	if err != nil {
		return decimal.Zero, err
	}
	return SumVendorPayments(payments, config.CountUnconfirmedVendorPayments()), nil
}

// View computes payment-derived totals for the provider.
func (p *ServiceProvider) View(ctx context.Context) (*ServiceProviderView, error) {
	db := config.GetDB()
	received, err := serviceProviderTotalReceived(ctx, db, p.ID)
	if err != nil {
		return nil, err
	}
	return &ServiceProviderView{
		ServiceProvider: *p,
		TotalReceived:   received,
		BalanceDue:      ClampZero(p.AmountCharged.Sub(received)),
	}, nil
}
