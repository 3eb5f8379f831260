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

type Event struct {
	ID          int             `gorm:"primary_key" json:"id"`
	OwnerId     int             `gorm:"index;not null" json:"owner_id"`
	Name        string          `gorm:"size:255;not null;index" json:"name" binding:"required"`
	Venue       string          `gorm:"size:55;index" json:"venue"`
	Description string          `gorm:"type:text" json:"description"`
	TotalBudget decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_budget"`
	EventDate   time.Time       `gorm:"index;not null" json:"event_date" binding:"required"`
	IsFunded    bool            `gorm:"not null;default:false" json:"is_funded"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEvent struct {
	Name        string          `json:"name" binding:"required"`
	Venue       string          `json:"venue"`
	Description string          `json:"description"`
	TotalBudget decimal.Decimal `json:"total_budget"`
	EventDate   time.Time       `json:"event_date" binding:"required"`
}

// EventMetrics is the derived view of an event's ledger. All fields are
// computed from the payment/pledge streams, never read back from the client.
type EventMetrics struct {
	TotalPledged       decimal.Decimal `json:"total_pledged"`
	TotalReceived      decimal.Decimal `json:"total_received"`
	PercentageCovered  decimal.Decimal `json:"percentage_covered"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	OverpaidAmount     decimal.Decimal `json:"overpaid_amount"`
	IsFunded           bool            `json:"is_funded"`
}

func (input *NewEvent) validate() error {
	if input.Name == "" {
		return utils.NewValidationError("name", "Event name cannot be empty.")
	}
	if input.TotalBudget.IsNegative() {
		return utils.NewValidationError("total_budget", "Total budget cannot be negative.")
	}
	return nil
}

func CreateEvent(ctx context.Context, input *NewEvent) (*Event, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	event := Event{
		OwnerId:     ownerId,
		Name:        input.Name,
		Venue:       input.Venue,
		Description: input.Description,
		TotalBudget: input.TotalBudget,
		EventDate:   input.EventDate,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func UpdateEvent(ctx context.Context, id int, input *NewEvent) (*Event, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[Event](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	existing.Name = input.Name
	existing.Venue = input.Venue
	existing.Description = input.Description
	existing.TotalBudget = input.TotalBudget
	existing.EventDate = input.EventDate

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// the ceiling may have moved; the funded flag is derived, never trusted
	if err := RecomputeEventFunding(ctx, tx, existing.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Event](ctx, ownerId, id)
}

// DeleteEvent removes the event and everything under it: budget items, their
// tasks, providers and vendor payments, pledges, and both payment streams.
func DeleteEvent(ctx context.Context, id int) (*Event, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[Event](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	var itemIds []int
	if err := tx.WithContext(ctx).Model(&BudgetItem{}).Where("event_id = ?", id).Pluck("id", &itemIds).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(itemIds) > 0 {
		if err := tx.WithContext(ctx).Where("budget_item_id IN ?", itemIds).Delete(&Task{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.WithContext(ctx).Where("budget_item_id IN ?", itemIds).Delete(&VendorPayment{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.WithContext(ctx).Where("budget_item_id IN ?", itemIds).Delete(&ServiceProvider{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.WithContext(ctx).Where("id IN ?", itemIds).Delete(&BudgetItem{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.WithContext(ctx).Where("event_id = ?", id).Delete(&MobileMoneyPayment{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("event_id = ?", id).Delete(&ManualPayment{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("event_id = ?", id).Delete(&Pledge{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Event{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return result, nil
}

func GetEvent(ctx context.Context, id int) (*Event, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[Event](ctx, ownerId, id)
}

func GetEvents(ctx context.Context) ([]*Event, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	var results []*Event
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerId).
		Order("event_date DESC, name ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

/* ledger reads */

func loadEventPledges(ctx context.Context, tx *gorm.DB, eventId int) ([]Pledge, error) {
	var pledges []Pledge
	err := tx.WithContext(ctx).Where("event_id = ?", eventId).Find(&pledges).Error
	return pledges, err
}

func loadEventPayments(ctx context.Context, tx *gorm.DB, eventId int) ([]MobileMoneyPayment, []ManualPayment, error) {
	var mobile []MobileMoneyPayment
	if err := tx.WithContext(ctx).Where("event_id = ?", eventId).Find(&mobile).Error; err != nil {
		return nil, nil, err
	}
	var manual []ManualPayment
	if err := tx.WithContext(ctx).Where("event_id = ?", eventId).Find(&manual).Error; err != nil {
		return nil, nil, err
	}
	return mobile, manual, nil
}

// EventTotalPledged re-reads the pledge stream inside the caller's tx.
func EventTotalPledged(ctx context.Context, tx *gorm.DB, eventId int) (decimal.Decimal, error) {
	pledges, err := loadEventPledges(ctx, tx, eventId)
	if err != nil {
		return decimal.Zero, err
	}
	return SumPledged(pledges), nil
}

// EventTotalReceived re-reads both payment streams inside the caller's tx.
func EventTotalReceived(ctx context.Context, tx *gorm.DB, eventId int) (decimal.Decimal, error) {
	mobile, manual, err := loadEventPayments(ctx, tx, eventId)
	if err != nil {
		return decimal.Zero, err
	}
	return SumReceived(mobile, manual), nil
}

// Metrics computes the derived ledger view for one event.
func (e *Event) Metrics(ctx context.Context) (*EventMetrics, error) {
	db := config.GetDB()

	pledged, err := EventTotalPledged(ctx, db, e.ID)
	if err != nil {
		return nil, err
	}
	received, err := EventTotalReceived(ctx, db, e.ID)
	if err != nil {
		return nil, err
	}

	return &EventMetrics{
		TotalPledged:       pledged,
		TotalReceived:      received,
		PercentageCovered:  Percentage(received, pledged),
		OutstandingBalance: ClampZero(pledged.Sub(received)),
		OverpaidAmount:     ClampZero(received.Sub(e.TotalBudget)),
		IsFunded:           FundingReached(received, e.TotalBudget),
	}, nil
}
