package models

import "testing"

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in     string
		micros int64
	}{
		{"0.03", 30_000},
		{"0.01", 10_000},
		{"1.00", 1_000_000},
		{"1", 1_000_000},
		{"0.000001", 1},
		{"12.5", 12_500_000},
		{"-0.25", -250_000},
		{".5", 500_000},
	}

	for _, tt := range tests {
		m, err := ParseMoney(tt.in, "USDC")
		if err != nil {
			t.Fatalf("ParseMoney(%q): unexpected error: %v", tt.in, err)
		}
		if m.Micros != tt.micros {
			t.Errorf("ParseMoney(%q) = %d micros, want %d", tt.in, m.Micros, tt.micros)
		}
	}
}

func TestParseMoneyRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "0.1234567"} {
		if _, err := ParseMoney(in, "USDC"); err == nil {
			t.Errorf("ParseMoney(%q): expected error", in)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := NewMoney(30_000, "USDC")
	b := NewMoney(50_000, "USDC")

	if got := a.Add(b).Micros; got != 80_000 {
		t.Errorf("Add = %d, want 80000", got)
	}
	if got := b.Sub(a).Micros; got != 20_000 {
		t.Errorf("Sub = %d, want 20000", got)
	}
	if !a.LessThan(b) {
		t.Error("expected 0.03 < 0.05")
	}
	if a.Cmp(a) != 0 {
		t.Error("expected Cmp to report equality")
	}
}

func TestMoneyOverflowPanics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic on overflow", name)
			}
		}()
		fn()
	}

	max := NewMoney(1<<63-1, "USDC")
	min := NewMoney(-1<<63, "USDC")
	one := NewMoney(1, "USDC")

	mustPanic("Add", func() { max.Add(one) })
	mustPanic("Sub", func() { min.Sub(one) })
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		micros int64
		want   string
	}{
		{30_000, "0.03 USDC"},
		{1_000_000, "1 USDC"},
		{-250_000, "-0.25 USDC"},
	}
	for _, tt := range tests {
		if got := NewMoney(tt.micros, "USDC").String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.micros, got, tt.want)
		}
	}
}

func TestApplyRatingRunningMean(t *testing.T) {
	// The running mean must be order-independent for the same multiset.
	scores := []float64{5, 3, 4, 1, 2}

	var fwd, rev Reputation
	for _, s := range scores {
		fwd.ApplyRating(s)
	}
	for i := len(scores) - 1; i >= 0; i-- {
		rev.ApplyRating(scores[i])
	}

	if diff := fwd.Rating - rev.Rating; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("running mean order-dependent: %f vs %f", fwd.Rating, rev.Rating)
	}
	if fwd.Rating != 3.0 {
		t.Errorf("running mean = %f, want 3.0", fwd.Rating)
	}
	if fwd.ReviewCount != 5 {
		t.Errorf("review count = %d, want 5", fwd.ReviewCount)
	}
}
