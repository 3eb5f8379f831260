package utils

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// IsDuplicateEntry reports a MySQL unique-constraint violation (error 1062).
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BudgetExceededError is returned by ceiling validators. Combined is the
// sibling sum plus the candidate amount; Ceiling is the parent's limit.
type BudgetExceededError struct {
	Combined decimal.Decimal
	Ceiling  decimal.Decimal
	Message  string
}

func (e *BudgetExceededError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%s exceeds %s)", e.Message, e.Combined.StringFixed(2), e.Ceiling.StringFixed(2))
	}
	return fmt.Sprintf("budget exceeded (%s exceeds %s)", e.Combined.StringFixed(2), e.Ceiling.StringFixed(2))
}

func NewBudgetExceededError(message string, combined, ceiling decimal.Decimal) error {
	return &BudgetExceededError{Combined: combined, Ceiling: ceiling, Message: message}
}

func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// ValidationError carries field-keyed human-readable messages. Field-level
// problems key by field name; cross-field problems go under "non_field_errors".
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	for _, msgs := range e.Fields {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return "validation failed"
}

func NewValidationError(field string, message string) error {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

func NewNonFieldError(message string) error {
	return NewValidationError("non_field_errors", message)
}

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}
