package config

import (
	"os"
	"strings"
)

// CountUnconfirmedVendorPayments controls whether unconfirmed vendor payments
// count toward a budget item's total_vendor_payments and its ceiling checks.
//
// Default is true: every recorded payment reduces the remaining budget,
// confirmed or not. Set COUNT_CONFIRMED_VENDOR_PAYMENTS_ONLY=true to count
// confirmed payments only.
func CountUnconfirmedVendorPayments() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("COUNT_CONFIRMED_VENDOR_PAYMENTS_ONLY")))
	return !(v == "1" || v == "true" || v == "yes" || v == "y")
}

// StrictPaymentImmutability enables fintech-grade guardrails:
// payments cannot be edited after creation; corrections must be entered as
// offsetting records.
//
// Set via env:
// - STRICT_PAYMENT_IMMUTABLE=false to relax (not recommended)
func StrictPaymentImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_PAYMENT_IMMUTABLE")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
