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

// Pledge is a donor's promise toward an event. TotalPaid and IsFulfilled are
// denormalized from the payment streams and recomputed from scratch whenever
// a payment touching this pledge changes.
type Pledge struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OwnerId       int             `gorm:"index;not null" json:"owner_id"`
	EventId       int             `gorm:"index;not null" json:"event_id" binding:"required"`
	DonorId       *int            `gorm:"index" json:"donor_id"`
	Name          string          `gorm:"size:255;not null;index" json:"name" binding:"required"`
	PhoneNumber   string          `gorm:"size:20;index" json:"phone_number"`
	AmountPledged decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_pledged" binding:"required"`
	TotalPaid     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_paid"`
	IsFulfilled   bool            `gorm:"not null;default:false" json:"is_fulfilled"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPledge struct {
	EventId       int             `json:"event_id" binding:"required"`
	DonorId       *int            `json:"donor_id"`
	Name          string          `json:"name" binding:"required"`
	PhoneNumber   string          `json:"phone_number"`
	AmountPledged decimal.Decimal `json:"amount_pledged" binding:"required"`
}

// Balance is the unpaid part of the pledge, clamped to zero.
func (p *Pledge) Balance() decimal.Decimal {
	return ClampZero(p.AmountPledged.Sub(p.TotalPaid))
}

func (input *NewPledge) validate() error {
	if input.Name == "" {
		return utils.NewValidationError("name", "Pledge name cannot be empty.")
	}
	if !input.AmountPledged.IsPositive() {
		return utils.NewNonFieldError("Amount pledged must be greater than zero.")
	}
	return nil
}

// checkPledgeCeiling validates the sibling-pledge sum, excluding exceptId,
// against the event's total budget.
func checkPledgeCeiling(ctx context.Context, tx *gorm.DB, event *Event, candidate decimal.Decimal, exceptId int) error {
	var siblings []Pledge
	dbCtx := tx.WithContext(ctx).Where("event_id = ?", event.ID)
	if exceptId > 0 {
		dbCtx = dbCtx.Where("id <> ?", exceptId)
	}
	if err := dbCtx.Find(&siblings).Error; err != nil {
		return err
	}
	combined := SumPledged(siblings).Add(candidate)
	if combined.GreaterThan(event.TotalBudget) {
		return utils.NewBudgetExceededError(
			"Total pledged amount exceeds the event's total budget.",
			combined, event.TotalBudget)
	}
	return nil
}

func CreatePledge(ctx context.Context, input *NewPledge) (*Pledge, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	if input.DonorId != nil {
		if err := utils.ValidateResourceId[Donor](ctx, ownerId, *input.DonorId); err != nil {
			return nil, utils.NewValidationError("donor_id", "Donor does not exist.")
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	event, err := lockEvent(ctx, tx, ownerId, input.EventId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := checkPledgeCeiling(ctx, tx, event, input.AmountPledged, 0); err != nil {
		tx.Rollback()
		return nil, err
	}

	phone := input.PhoneNumber
	if phone != "" {
		phone = utils.NormalizePhoneNumber(phone)
	}

	// No explicit donor: link the registered donor for this phone number,
	// if there is one, instead of growing a parallel flat-field identity.
	donorId := input.DonorId
	if donorId == nil && phone != "" {
		donor, err := FindDonorByPhone(ctx, ownerId, phone)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if donor != nil {
			donorId = &donor.ID
		}
	}

	pledge := Pledge{
		OwnerId:       ownerId,
		EventId:       input.EventId,
		DonorId:       donorId,
		Name:          input.Name,
		PhoneNumber:   phone,
		AmountPledged: input.AmountPledged,
		TotalPaid:     decimal.Zero,
		IsFulfilled:   false,
	}
	if err := tx.WithContext(ctx).Create(&pledge).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &pledge, nil
}

func UpdatePledge(ctx context.Context, id int, input *NewPledge) (*Pledge, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := utils.FetchModel[Pledge](ctx, ownerId, id)
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
	if err := checkPledgeCeiling(ctx, tx, event, input.AmountPledged, existing.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	phone := input.PhoneNumber
	if phone != "" {
		phone = utils.NormalizePhoneNumber(phone)
	}

	existing.DonorId = input.DonorId
	existing.Name = input.Name
	existing.PhoneNumber = phone
	existing.AmountPledged = input.AmountPledged

	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// the fulfillment threshold moved with the pledged amount
	if err := RecomputePledgeStatus(ctx, tx, existing.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[Pledge](ctx, ownerId, id)
}

// DeletePledge removes the pledge but keeps its payments: they revert to the
// unmatched pool with the pledge link cleared, so received money never
// disappears from the event's ledger.
func DeletePledge(ctx context.Context, id int) (*Pledge, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	result, err := utils.FetchModel[Pledge](ctx, ownerId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Model(&MobileMoneyPayment{}).
		Where("pledge_id = ?", id).
		Updates(map[string]interface{}{"pledge_id": nil, "state": PaymentStateReceived}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(&ManualPayment{}).
		Where("pledge_id = ?", id).
		Update("pledge_id", nil).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Pledge{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
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

func GetPledge(ctx context.Context, id int) (*Pledge, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	return utils.FetchModel[Pledge](ctx, ownerId, id)
}

func GetPledges(ctx context.Context, eventId *int) ([]*Pledge, error) {

	ownerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || ownerId <= 0 {
		return nil, errors.New("user id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("owner_id = ?", ownerId)
	if eventId != nil && *eventId > 0 {
		dbCtx = dbCtx.Where("event_id = ?", *eventId)
	}
	var results []*Pledge
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FindLatestPledgeByPhone returns the owner's most recent pledge for the
// given phone number, or nil when nothing matches. Matching is by normalized
// number; the newest pledge wins when a donor has several.
func FindLatestPledgeByPhone(ctx context.Context, tx *gorm.DB, ownerId int, phone string) (*Pledge, error) {
	normalized := utils.NormalizePhoneNumber(phone)
	if normalized == "" {
		return nil, nil
	}
	var pledge Pledge
	err := tx.WithContext(ctx).
		Where("owner_id = ? AND phone_number = ?", ownerId, normalized).
		Order("id DESC").
		First(&pledge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pledge, nil
}

// PaymentBreakdown splits the pledge's paid total by stream.
func (p *Pledge) PaymentBreakdown(ctx context.Context) (map[string]decimal.Decimal, error) {
	db := config.GetDB()
	var mobile []MobileMoneyPayment
	if err := db.WithContext(ctx).Where("pledge_id = ?", p.ID).Find(&mobile).Error; err != nil {
		return nil, err
	}
	var manual []ManualPayment
	if err := db.WithContext(ctx).Where("pledge_id = ?", p.ID).Find(&manual).Error; err != nil {
		return nil, err
	}
	return map[string]decimal.Decimal{
		"mobile_money": SumReceived(mobile, nil),
		"manual":       SumReceived(nil, manual),
	}, nil
}
