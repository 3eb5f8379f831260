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

// VendorPayment is a disbursement to a service provider. Cumulative payments
// to a provider may not exceed the provider's amount charged. Confirmed is
// derived: it flips true on every payment of a provider once the provider is
// fully paid, and flips back if the total later drops. Clients cannot set it.
type VendorPayment struct {
	ID                int             `gorm:"primary_key" json:"id"`
	OwnerId           int             `gorm:"index;not null" json:"owner_id"`
	ServiceProviderId int             `gorm:"index;not null" json:"service_provider_id" binding:"required"`
	BudgetItemId      int             `gorm:"index;not null" json:"budget_item_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount" binding:"required"`
	PaymentMethod     PaymentMethod   `gorm:"size:20;not null" json:"payment_method" binding:"required"`
	TransactionCode   *string         `gorm:"size:100;uniqueIndex" json:"transaction_code"`
	PaymentDate       time.Time       `json:"payment_date"`
	Confirmed         bool            `gorm:"not null;default:false" json:"confirmed"`
	Notes             string          `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVendorPayment struct {
	ServiceProviderId int             `json:"service_provider_id" binding:"required"`
	Amount            decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod     PaymentMethod   `json:"payment_method" binding:"required"`
	TransactionCode   *string         `json:"transaction_code"`
	PaymentDate       *time.Time      `json:"payment_date"`
	Notes             string          `json:"notes"`
}

func (input *NewVendorPayment) validate() error {
	if !input.Amount.IsPositive() {
		return utils.NewValidationError("amount", "Payment amount must be greater than zero.")
	}
	if !input.PaymentMethod.IsValid() {
		return utils.NewValidationError("payment_method", "Payment method must be MobileMoney, Bank or Cash.")
	}
	if input.TransactionCode != nil && *input.TransactionCode == "" {
		return utils.NewValidationError("transaction_code", "Transaction code cannot be blank; omit it instead.")
	}
	return nil
}

// checkProviderCeiling validates cumulative payments, excluding exceptId,
// against the provider's amount charged.
func checkProviderCeiling(ctx context.Context, tx *gorm.DB, provider *ServiceProvider, candidate decimal.Decimal, exceptId int) error {
	var siblings []VendorPayment
	dbCtx := tx.WithContext(ctx).Where("service_provider_id = ?", provider.ID)
	if exceptId > 0 {
		dbCtx = dbCtx.Where("id <> ?", exceptId)
	}
	if err := dbCtx.Find(&siblings).Error; err != nil {
		return err
	}
	combined := SumVendorPayments(siblings, true).Add(candidate)
	if combined.GreaterThan(provider.AmountCharged) {
		return utils.NewBudgetExceededError(
			"Total payments to this provider exceed the amount charged.",
			combined, provider.AmountCharged)
	}
	return nil
}

func lockServiceProvider(ctx context.Context, tx *gorm.DB, ownerId int, providerId int) (*ServiceProvider, error) {
	var provider ServiceProvider
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerId).
		First(&provider, providerId).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &provider, nil
}

func CreateVendorPayment(ctx context.Context, input *NewVendorPayment) (*VendorPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	if input.TransactionCode != nil {
		if err := utils.ValidateUnique[VendorPayment](ctx, ownerId, "transaction_code", *input.TransactionCode, 0); err != nil {
			return nil, utils.NewValidationError("transaction_code", "Transaction code has already been used.")
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	provider, err := lockServiceProvider(ctx, tx, ownerId, input.ServiceProviderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkProviderCeiling(ctx, tx, provider, input.Amount, 0); err != nil {
		tx.Rollback()
		return nil, err
	}

	paymentDate := time.Now()
	if input.PaymentDate != nil {
		paymentDate = *input.PaymentDate
	}

	payment := VendorPayment{
		OwnerId:           ownerId,
		ServiceProviderId: input.ServiceProviderId,
		BudgetItemId:      provider.BudgetItemId,
		Amount:            input.Amount,
		PaymentMethod:     input.PaymentMethod,
		TransactionCode:   input.TransactionCode,
		PaymentDate:       paymentDate,
		Notes:             input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecomputeVendorConfirmations(ctx, tx, provider.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecomputeBudgetItemFunding(ctx, tx, provider.BudgetItemId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &payment, nil
}

func UpdateVendorPayment(ctx context.Context, id int, input *NewVendorPayment) (*VendorPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if config.StrictPaymentImmutability() {
		return nil, utils.NewNonFieldError("Payments are immutable; enter an offsetting record instead.")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[VendorPayment](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	if input.TransactionCode != nil {
		if err := utils.ValidateUnique[VendorPayment](ctx, ownerId, "transaction_code", *input.TransactionCode, id); err != nil {
			return nil, utils.NewValidationError("transaction_code", "Transaction code has already been used.")
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	provider, err := lockServiceProvider(ctx, tx, ownerId, existing.ServiceProviderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkProviderCeiling(ctx, tx, provider, input.Amount, existing.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	existing.Amount = input.Amount
	existing.PaymentMethod = input.PaymentMethod
	existing.TransactionCode = input.TransactionCode
	existing.Notes = input.Notes
	if input.PaymentDate != nil {
		existing.PaymentDate = *input.PaymentDate
	}

	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecomputeVendorConfirmations(ctx, tx, existing.ServiceProviderId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecomputeBudgetItemFunding(ctx, tx, existing.BudgetItemId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return existing, nil
}

func DeleteVendorPayment(ctx context.Context, id int) (*VendorPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[VendorPayment](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Delete(&VendorPayment{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecomputeVendorConfirmations(ctx, tx, result.ServiceProviderId); err != nil {
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

func GetVendorPayment(ctx context.Context, id int) (*VendorPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[VendorPayment](ctx, ownerId, id)
}

func GetVendorPayments(ctx context.Context, serviceProviderId *int, budgetItemId *int) ([]*VendorPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
	if serviceProviderId != nil && *serviceProviderId > 0 {
		dbCtx = dbCtx.Where("service_provider_id = ?", *serviceProviderId)
	}
	if budgetItemId != nil && *budgetItemId > 0 {
		dbCtx = dbCtx.Where("budget_item_id = ?", *budgetItemId)
	}
	var results []*VendorPayment
	if err := dbCtx.Order("payment_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
