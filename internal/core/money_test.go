package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		err error
	}{
		{"1", 100, nil},
		{"1.0", 100, nil},
		{"1.23", 123, nil},
		{"1,23", 123, nil},
		{"0.01", 1, nil},
		{"0", 0, nil},
		{" 2.50 ", 250, nil},
		{"99999999.99", 9999999999, nil},
		{"1.005", 0, ErrAmountPrecision},
		{"-1", 0, ErrNegativeAmount},
		{"100000000", 0, ErrAmountTooLarge},
		{"abc", 0, ErrInvalidAmount},
		{"1.2.3", 0, ErrInvalidAmount},
		{"", 0, ErrInvalidAmount},
		{"1,000", 0, ErrInvalidAmount},
		{"2,500", 0, ErrInvalidAmount},
		{"12,340", 0, ErrInvalidAmount},
		{"1,000.50", 0, ErrInvalidAmount},
		{"1,2,3", 0, ErrInvalidAmount},
		{"1,", 0, ErrInvalidAmount},
		{"12,3", 1230, nil},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%q expected %v, got %v", tc.in, tc.err, err)
			}
			continue
		}
		if err != nil || got.Cents != tc.out {
			t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		20050:  "200.50",
		100000: "1000.00",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d: expected %s, got %s", cents, want, got)
		}
	}
}

func TestMoneyFromDecimalRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("799.50")
	m, err := MoneyFromDecimal(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Decimal().Equal(d) {
		t.Fatalf("expected %s, got %s", d, m.Decimal())
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 0}).Validate(); err != nil {
		t.Fatalf("expected zero to be valid, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
	if err := (Money{Cents: 10000000000}).Validate(); err == nil {
		t.Fatalf("expected error for overflow")
	}
}
