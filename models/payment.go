package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/utils"
)

// MobileMoneyPayment is an incoming mobile-money transaction. Rows usually
// arrive through the webhook reconciliation pipeline; TransactionId is the
// provider's receipt number and is globally unique, which is what makes
// webhook retries idempotent at the storage layer.
type MobileMoneyPayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OwnerId       int             `gorm:"index;not null" json:"owner_id"`
	EventId       int             `gorm:"index;not null" json:"event_id" binding:"required"`
	PledgeId      *int            `gorm:"index" json:"pledge_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount" binding:"required"`
	TransactionId string          `gorm:"size:100;not null;uniqueIndex" json:"transaction_id" binding:"required"`
	PhoneNumber   string          `gorm:"size:20;index" json:"phone_number"`
	State         PaymentState    `gorm:"size:20;not null;default:'RECEIVED'" json:"state"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

type NewMobileMoneyPayment struct {
	EventId       int             `json:"event_id" binding:"required"`
	PledgeId      *int            `json:"pledge_id"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	TransactionId string          `json:"transaction_id" binding:"required"`
	PhoneNumber   string          `json:"phone_number"`
}

// ManualPayment is money recorded by the organizer outside the mobile-money
// rails (cash handed over, a bank deposit slip).
type ManualPayment struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OwnerId   int             `gorm:"index;not null" json:"owner_id"`
	EventId   int             `gorm:"index;not null" json:"event_id" binding:"required"`
	PledgeId  *int            `gorm:"index" json:"pledge_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount" binding:"required"`
	Date      time.Time       `gorm:"index" json:"date"`
	Notes     string          `gorm:"type:text" json:"notes"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewManualPayment struct {
	EventId  int             `json:"event_id" binding:"required"`
	PledgeId *int            `json:"pledge_id"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
	Date     *time.Time      `json:"date"`
	Notes    string          `json:"notes"`
}

func validatePaymentAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return utils.NewNonFieldError("Payment amount must be positive.")
	}
	return nil
}

func CreateMobileMoneyPayment(ctx context.Context, input *NewMobileMoneyPayment) (*MobileMoneyPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := validatePaymentAmount(input.Amount); err != nil {
		return nil, err
	}
	if input.TransactionId == "" {
		return nil, utils.NewValidationError("transaction_id", "Transaction id cannot be empty.")
	}
	if err := utils.ValidateResourceId[Event](ctx, ownerId, input.EventId); err != nil {
		return nil, utils.NewValidationError("event_id", "Event does not exist.")
	}
	if input.PledgeId != nil {
		if err := utils.ValidateResourceId[Pledge](ctx, ownerId, *input.PledgeId); err != nil {
			return nil, utils.NewValidationError("pledge_id", "Pledge does not exist.")
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	state := PaymentStateReceived
	if input.PledgeId != nil {
		state = PaymentStateMatched
	}
	payment := MobileMoneyPayment{
		OwnerId:       ownerId,
		EventId:       input.EventId,
		PledgeId:      input.PledgeId,
		Amount:        input.Amount,
		TransactionId: input.TransactionId,
		PhoneNumber:   utils.NormalizePhoneNumber(input.PhoneNumber),
		State:         state,
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		if utils.IsDuplicateEntry(err) {
			return nil, utils.NewValidationError("transaction_id", "Transaction id has already been recorded.")
		}
		return nil, err
	}
	if input.PledgeId != nil {
		if err := RecomputePledgeStatus(ctx, tx, *input.PledgeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := RecomputeEventFunding(ctx, tx, input.EventId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &payment, nil
}

func DeleteMobileMoneyPayment(ctx context.Context, id int) (*MobileMoneyPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[MobileMoneyPayment](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Delete(&MobileMoneyPayment{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// the removed money may drop the pledge or event back below its ceiling
	if result.PledgeId != nil {
		if err := RecomputePledgeStatus(ctx, tx, *result.PledgeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := RecomputeEventFunding(ctx, tx, result.EventId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetMobileMoneyPayment(ctx context.Context, id int) (*MobileMoneyPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[MobileMoneyPayment](ctx, ownerId, id)
}

func GetMobileMoneyPayments(ctx context.Context, eventId *int, pledgeId *int) ([]*MobileMoneyPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
	if eventId != nil && *eventId > 0 {
		dbCtx = dbCtx.Where("event_id = ?", *eventId)
	}
	if pledgeId != nil && *pledgeId > 0 {
		dbCtx = dbCtx.Where("pledge_id = ?", *pledgeId)
	}
	var results []*MobileMoneyPayment
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// AttachMobileMoneyPayment manually reconciles an unmatched payment to a
// pledge. This is the only mutation a mobile-money payment supports after
// creation; amounts never change.
func AttachMobileMoneyPayment(ctx context.Context, id int, pledgeId int) (*MobileMoneyPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	payment, err := utils.FetchModel[MobileMoneyPayment](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}
	pledge, err := utils.FetchModel[Pledge](ctx, ownerId, pledgeId)
	if err != nil {
		return nil, err
	}
	if pledge.EventId != payment.EventId {
		return nil, utils.NewValidationError("pledge_id", "Pledge belongs to a different event.")
	}

	db := config.GetDB()
	tx := db.Begin()

	previousPledgeId := payment.PledgeId
	payment.PledgeId = &pledge.ID
	payment.State = PaymentStateMatched
	if err := tx.WithContext(ctx).Model(&MobileMoneyPayment{}).Where("id = ?", id).
		Updates(map[string]interface{}{"pledge_id": pledge.ID, "state": PaymentStateMatched}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if previousPledgeId != nil && *previousPledgeId != pledge.ID {
		if err := RecomputePledgeStatus(ctx, tx, *previousPledgeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := RecomputePledgeStatus(ctx, tx, pledge.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func CreateManualPayment(ctx context.Context, input *NewManualPayment) (*ManualPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := validatePaymentAmount(input.Amount); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Event](ctx, ownerId, input.EventId); err != nil {
		return nil, utils.NewValidationError("event_id", "Event does not exist.")
	}
	if input.PledgeId != nil {
		if err := utils.ValidateResourceId[Pledge](ctx, ownerId, *input.PledgeId); err != nil {
			return nil, utils.NewValidationError("pledge_id", "Pledge does not exist.")
		}
	}

	date := time.Now()
	if input.Date != nil {
		date = *input.Date
	}

	db := config.GetDB()
	tx := db.Begin()

	payment := ManualPayment{
		OwnerId:  ownerId,
		EventId:  input.EventId,
		PledgeId: input.PledgeId,
		Amount:   input.Amount,
		Date:     date,
		Notes:    input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if input.PledgeId != nil {
		if err := RecomputePledgeStatus(ctx, tx, *input.PledgeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := RecomputeEventFunding(ctx, tx, input.EventId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &payment, nil
}

func UpdateManualPayment(ctx context.Context, id int, input *NewManualPayment) (*ManualPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if config.StrictPaymentImmutability() {
		return nil, utils.NewNonFieldError("Payments are immutable; enter an offsetting record instead.")
	}

	if err := validatePaymentAmount(input.Amount); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[ManualPayment](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}
	if input.PledgeId != nil {
		if err := utils.ValidateResourceId[Pledge](ctx, ownerId, *input.PledgeId); err != nil {
			return nil, utils.NewValidationError("pledge_id", "Pledge does not exist.")
		}
	}

	previousPledgeId := existing.PledgeId
	existing.PledgeId = input.PledgeId
	existing.Amount = input.Amount
	existing.Notes = input.Notes
	if input.Date != nil {
		existing.Date = *input.Date
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if previousPledgeId != nil {
		if err := RecomputePledgeStatus(ctx, tx, *previousPledgeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if input.PledgeId != nil && (previousPledgeId == nil || *previousPledgeId != *input.PledgeId) {
		if err := RecomputePledgeStatus(ctx, tx, *input.PledgeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := RecomputeEventFunding(ctx, tx, existing.EventId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return existing, nil
}

func DeleteManualPayment(ctx context.Context, id int) (*ManualPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[ManualPayment](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Delete(&ManualPayment{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if result.PledgeId != nil {
		if err := RecomputePledgeStatus(ctx, tx, *result.PledgeId); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := RecomputeEventFunding(ctx, tx, result.EventId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

func GetManualPayment(ctx context.Context, id int) (*ManualPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[ManualPayment](ctx, ownerId, id)
}

func GetManualPayments(ctx context.Context, eventId *int, pledgeId *int) ([]*ManualPayment, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
	if eventId != nil && *eventId > 0 {
		dbCtx = dbCtx.Where("event_id = ?", *eventId)
	}
	if pledgeId != nil && *pledgeId > 0 {
		dbCtx = dbCtx.Where("pledge_id = ?", *pledgeId)
	}
	var results []*ManualPayment
	if err := dbCtx.Order("date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
