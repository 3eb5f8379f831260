package models

// PaymentMethod is how a vendor was paid.
type PaymentMethod string

const (
	PaymentMethodMobileMoney PaymentMethod = "MobileMoney"
	PaymentMethodBank        PaymentMethod = "Bank"
	PaymentMethodCash        PaymentMethod = "Cash"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodMobileMoney, PaymentMethodBank, PaymentMethodCash:
		return true
	}
	return false
}

// PaymentState tracks whether an incoming payment has been attached to a
// pledge. Received payments with no matching pledge stay RECEIVED until
// manually reconciled; there are no other transitions.
type PaymentState string

const (
	PaymentStateReceived PaymentState = "RECEIVED"
	PaymentStateMatched  PaymentState = "MATCHED"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
