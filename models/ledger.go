package models

import (
	"github.com/shopspring/decimal"
)

// Pure ledger aggregates. Every write path re-derives denormalized flags from
// these instead of incrementing counters, so a partial update can never leave
// a stale total behind. All sums return zero for an empty collection; callers
// never branch on "missing" vs "zero".

func SumPledged(pledges []Pledge) decimal.Decimal {
	total := decimal.Zero
	for _, p := range pledges {
		total = total.Add(p.AmountPledged)
	}
	return total
}

// SumReceived adds the mobile-money and manual streams; the two are
// independent ledgers that only meet here.
func SumReceived(mobile []MobileMoneyPayment, manual []ManualPayment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range mobile {
		total = total.Add(p.Amount)
	}
	for _, p := range manual {
		total = total.Add(p.Amount)
	}
	return total
}

// SumVendorPayments totals vendor payments for a budget item or provider.
// countUnconfirmed selects between the two historical accounting rules
// (config.CountUnconfirmedVendorPayments).
func SumVendorPayments(payments []VendorPayment, countUnconfirmed bool) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if !countUnconfirmed && !p.Confirmed {
			continue
		}
		total = total.Add(p.Amount)
	}
	return total
}

func SumAllocated(tasks []Task) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tasks {
		total = total.Add(t.AllocatedAmount)
	}
	return total
}

func SumEstimated(items []BudgetItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.EstimatedBudget)
	}
	return total
}

// FundingReached is the single funded/fulfilled/confirmed rule:
// received >= ceiling.
func FundingReached(received, ceiling decimal.Decimal) bool {
	return received.GreaterThanOrEqual(ceiling)
}
