package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSumPledged_EmptyIsZero(t *testing.T) {
	if got := SumPledged(nil); !got.IsZero() {
		t.Fatalf("SumPledged(nil) expected 0, got %s", got.String())
	}
}

func TestSumReceived_AddsBothStreams(t *testing.T) {
	mobile := []MobileMoneyPayment{{Amount: amt("3000")}, {Amount: amt("1500.50")}}
	manual := []ManualPayment{{Amount: amt("499.50")}}
	got := SumReceived(mobile, manual)
	if got.String() != "5000" {
		t.Fatalf("SumReceived expected 5000, got %s", got.String())
	}
}

func TestSumVendorPayments_ConfirmedOnlyRule(t *testing.T) {
	payments := []VendorPayment{
		{Amount: amt("1000"), Confirmed: true},
		{Amount: amt("400"), Confirmed: false},
	}
	if got := SumVendorPayments(payments, true); got.String() != "1400" {
		t.Fatalf("counting unconfirmed expected 1400, got %s", got.String())
	}
	if got := SumVendorPayments(payments, false); got.String() != "1000" {
		t.Fatalf("confirmed-only expected 1000, got %s", got.String())
	}
}

func TestFundingReached(t *testing.T) {
	cases := []struct {
		received string
		ceiling  string
		expected bool
	}{
		{"9999.99", "10000", false},
		{"10000", "10000", true},
		{"10000.01", "10000", true},
		{"0", "0", true},
	}
	for _, tc := range cases {
		if got := FundingReached(amt(tc.received), amt(tc.ceiling)); got != tc.expected {
			t.Fatalf("FundingReached(%s, %s) expected %v, got %v", tc.received, tc.ceiling, tc.expected, got)
		}
	}
}

// A single pledge of 5000 with one 3000 mobile-money payment against a 10000
// budget: the canonical partial-funding shape.
func TestEventLedger_PartialFundingScenario(t *testing.T) {
	budget := amt("10000")
	pledges := []Pledge{{AmountPledged: amt("5000")}}
	mobile := []MobileMoneyPayment{{Amount: amt("3000")}}

	pledged := SumPledged(pledges)
	received := SumReceived(mobile, nil)

	if pledged.StringFixed(2) != "5000.00" {
		t.Fatalf("total pledged expected 5000.00, got %s", pledged.StringFixed(2))
	}
	if received.StringFixed(2) != "3000.00" {
		t.Fatalf("total received expected 3000.00, got %s", received.StringFixed(2))
	}
	if pct := Percentage(received, pledged); pct.String() != "60" {
		t.Fatalf("percentage covered expected 60, got %s", pct.String())
	}
	if outstanding := ClampZero(pledged.Sub(received)); outstanding.StringFixed(2) != "2000.00" {
		t.Fatalf("outstanding balance expected 2000.00, got %s", outstanding.StringFixed(2))
	}
	if overpaid := ClampZero(received.Sub(budget)); !overpaid.IsZero() {
		t.Fatalf("overpaid expected 0, got %s", overpaid.String())
	}
	if FundingReached(received, budget) {
		t.Fatal("event must not be funded at 3000 of 10000")
	}
}

// Sibling items totalling 8000 under a 10000 budget leave room for 2000;
// a 3000 candidate must trip the ceiling.
func TestBudgetItemCeiling_SiblingSumArithmetic(t *testing.T) {
	budget := amt("10000")
	siblings := []BudgetItem{{EstimatedBudget: amt("5000")}, {EstimatedBudget: amt("3000")}}

	combined := SumEstimated(siblings).Add(amt("3000"))
	if combined.String() != "11000" {
		t.Fatalf("combined expected 11000, got %s", combined.String())
	}
	if !combined.GreaterThan(budget) {
		t.Fatal("11000 against a 10000 budget must exceed the ceiling")
	}

	combined = SumEstimated(siblings).Add(amt("2000"))
	if combined.GreaterThan(budget) {
		t.Fatal("exactly-at-budget must be allowed")
	}
}

func TestPledgeBalance_ClampsOverpayment(t *testing.T) {
	pledge := Pledge{AmountPledged: amt("5000"), TotalPaid: amt("6000")}
	if got := pledge.Balance(); !got.IsZero() {
		t.Fatalf("overpaid pledge balance expected 0, got %s", got.String())
	}
}

func TestTaskBalance_Clamps(t *testing.T) {
	task := Task{AllocatedAmount: amt("2000"), AmountPaid: amt("500")}
	if got := task.Balance(); got.String() != "1500" {
		t.Fatalf("task balance expected 1500, got %s", got.String())
	}
}
