package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClampZero(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"100", "100"},
		{"0", "0"},
		{"-0.01", "0"},
		{"-5000", "0"},
	}
	for _, tc := range cases {
		got := ClampZero(decimal.RequireFromString(tc.in))
		if got.String() != tc.expected {
			t.Fatalf("ClampZero(%s) expected %s, got %s", tc.in, tc.expected, got.String())
		}
	}
}

func TestPercentage_RoundsToTwoPlaces(t *testing.T) {
	got := Percentage(decimal.RequireFromString("1"), decimal.RequireFromString("3"))
	if got.String() != "33.33" {
		t.Fatalf("Percentage(1, 3) expected 33.33, got %s", got.String())
	}
}

func TestPercentage_ZeroDenominatorDegradesToZero(t *testing.T) {
	got := Percentage(decimal.RequireFromString("3000"), decimal.Zero)
	if !got.IsZero() {
		t.Fatalf("Percentage with zero denominator expected 0, got %s", got.String())
	}
}

func TestParseAmount_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       interface{}
		expected string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"KES 20,000", "20000"},
		{"  kes 1,234.50  ", "1234.5"},
		{float64(2500.75), "2500.75"},
		{42, "42"},
	}
	for _, tc := range cases {
		d, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%v) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseAmount(%v) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	cases := []interface{}{
		"not a number",
		"7up",
		"12abc",
		"1.2.3",
		"$100",
		"",
		nil,
	}
	for _, in := range cases {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%v) expected an error", in)
		}
	}
}
