package workflow

import (
	"context"
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/zawadi/eventfund_backend/config"
	"github.com/zawadi/eventfund_backend/models"
	"github.com/zawadi/eventfund_backend/utils"
	"gorm.io/gorm"
)

const paymentHandlerName = "MobileMoneyPayment"

// MobileMoneyNotification is the inbound webhook payload. Amount arrives in
// whatever shape the gateway sends (number, or a formatted string like
// "KES 20,000"), so it is parsed rather than bound.
type MobileMoneyNotification struct {
	TransactionId    string      `json:"transaction_id"`
	PhoneNumber      string      `json:"msisdn"`
	Amount           interface{} `json:"amount"`
	ShortCode        string      `json:"short_code"`
	AccountReference string      `json:"account_reference"`
	PayerName        string      `json:"payer_name"`
}

// ReconciliationResult reports what happened to one notification.
type ReconciliationResult struct {
	PaymentId        int    `json:"payment_id"`
	TransactionId    string `json:"transaction_id"`
	EventId          int    `json:"event_id"`
	PledgeId         *int   `json:"pledge_id"`
	Matched          bool   `json:"matched"`
	AlreadyProcessed bool   `json:"already_processed"`
}

// ProcessMobileMoneyNotification applies one webhook notification:
// validate, resolve the owner and event, dedupe on transaction id, match the
// most recent pledge for the payer's phone number, and apply the payment
// atomically with the pledge and event status recomputation. An unmatched
// payment is a valid terminal state, never an error. A duplicate transaction
// id is an idempotent success.
func ProcessMobileMoneyNotification(ctx context.Context, logger *logrus.Logger, payload *MobileMoneyNotification) (*ReconciliationResult, error) {

	amount, err := validateNotification(payload)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	ownerId, err := models.FindOwnerByPaybill(ctx, payload.ShortCode)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessMobileMoneyNotification", "Resolving owner", payload, err)
		return nil, utils.NewNonFieldError("No account is registered for this paybill.")
	}

	// The handlers below run owner-scoped queries on behalf of the webhook,
	// which carries no user session.
	ctx = utils.SetUserIdInContext(ctx, ownerId)

	eventId, err := resolveTargetEvent(ctx, db, ownerId, payload.AccountReference)
	if err != nil {
		return nil, err
	}

	// Serialize the whole apply step per owner. GET_LOCK is connection
	// scoped, so the lock is taken and released on the tx itself: a plain
	// session does not pin a pooled connection.
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	if err := AcquireOwnerPostingLock(tx, ownerId); err != nil {
		_ = tx.Rollback().Error
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessMobileMoneyNotification", "Acquiring posting lock", payload, err)
		return nil, err
	}
	defer ReleaseOwnerPostingLock(tx, ownerId)

	skip, err := BeginIdempotency(tx, ownerId, paymentHandlerName, payload.TransactionId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if skip {
		tx.Rollback()
		return alreadyProcessedResult(ctx, db, ownerId, payload.TransactionId)
	}

	result, err := applyPayment(ctx, tx, ownerId, eventId, payload, amount)
	if err != nil {
		if markErr := MarkIdempotencyFailed(tx, ownerId, paymentHandlerName, payload.TransactionId, err); markErr != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "ProcessMobileMoneyNotification", "Marking idempotency failed", payload, markErr)
		}
		tx.Rollback()
		return nil, err
	}
	if err := MarkIdempotencySucceeded(tx, ownerId, paymentHandlerName, payload.TransactionId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return result, nil
}

func validateNotification(payload *MobileMoneyNotification) (decimal.Decimal, error) {
	if payload.TransactionId == "" {
		return decimal.Zero, utils.NewValidationError("transaction_id", "Transaction id is required.")
	}
	if payload.PhoneNumber == "" {
		return decimal.Zero, utils.NewValidationError("msisdn", "Payer phone number is required.")
	}
	if payload.ShortCode == "" {
		return decimal.Zero, utils.NewValidationError("short_code", "Business short code is required.")
	}
	amount, err := models.ParseAmount(payload.Amount)
	if err != nil {
		return decimal.Zero, utils.NewValidationError("amount", "Amount is missing or malformed.")
	}
	if !amount.IsPositive() {
		return decimal.Zero, utils.NewNonFieldError("Payment amount must be positive.")
	}
	return amount, nil
}

// resolveTargetEvent picks the event a notification belongs to: an explicit
// account reference ("EVT-42" or a plain id) wins, otherwise the owner's most
// recently created event takes the money.
func resolveTargetEvent(ctx context.Context, db *gorm.DB, ownerId int, accountReference string) (int, error) {
	if accountReference != "" {
		ref := accountReference
		if len(ref) > 4 && (ref[:4] == "EVT-" || ref[:4] == "evt-") {
			ref = ref[4:]
		}
		if id, err := strconv.Atoi(ref); err == nil && id > 0 {
			var event models.Event
			if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).First(&event, id).Error; err == nil {
				return event.ID, nil
			}
		}
	}

	var event models.Event
	err := db.WithContext(ctx).Where("owner_id = ?", ownerId).Order("id DESC").First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, utils.NewNonFieldError("No event found to receive this payment.")
		}
		return 0, err
	}
	return event.ID, nil
}

func applyPayment(ctx context.Context, tx *gorm.DB, ownerId int, eventId int, payload *MobileMoneyNotification, amount decimal.Decimal) (*ReconciliationResult, error) {

	pledge, err := models.FindLatestPledgeByPhone(ctx, tx, ownerId, payload.PhoneNumber)
	if err != nil {
		return nil, err
	}

	payment := models.MobileMoneyPayment{
		OwnerId:       ownerId,
		EventId:       eventId,
		Amount:        amount,
		TransactionId: payload.TransactionId,
		PhoneNumber:   utils.NormalizePhoneNumber(payload.PhoneNumber),
		State:         models.PaymentStateReceived,
	}
	if pledge != nil {
		payment.PledgeId = &pledge.ID
		payment.EventId = pledge.EventId
		payment.State = models.PaymentStateMatched
	}

	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		// the unique transaction_id index is the last line of defense when
		// the idempotency key row was lost
		if utils.IsDuplicateEntry(err) {
			return &ReconciliationResult{
				TransactionId:    payload.TransactionId,
				AlreadyProcessed: true,
			}, nil
		}
		return nil, err
	}

	if pledge != nil {
		if err := models.RecomputePledgeStatus(ctx, tx, pledge.ID); err != nil {
			return nil, err
		}
	}
	if err := models.RecomputeEventFunding(ctx, tx, payment.EventId); err != nil {
		return nil, err
	}

	return &ReconciliationResult{
		PaymentId:     payment.ID,
		TransactionId: payment.TransactionId,
		EventId:       payment.EventId,
		PledgeId:      payment.PledgeId,
		Matched:       pledge != nil,
	}, nil
}

func alreadyProcessedResult(ctx context.Context, db *gorm.DB, ownerId int, transactionId string) (*ReconciliationResult, error) {
	var payment models.MobileMoneyPayment
	err := db.WithContext(ctx).
		Where("owner_id = ? AND transaction_id = ?", ownerId, transactionId).
		First(&payment).Error
	if err != nil {
		return &ReconciliationResult{TransactionId: transactionId, AlreadyProcessed: true}, nil
	}
	return &ReconciliationResult{
		PaymentId:        payment.ID,
		TransactionId:    payment.TransactionId,
		EventId:          payment.EventId,
		PledgeId:         payment.PledgeId,
		Matched:          payment.PledgeId != nil,
		AlreadyProcessed: true,
	}, nil
}
