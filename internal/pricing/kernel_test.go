package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func approxEqual(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

func TestSpotPrice(t *testing.T) {
	tests := []struct {
		name                                       string
		balanceIn, weightIn, balanceOut, weightOut string
		fee                                        string
		want                                       string
	}{
		{"equal weights", "100", "1", "50", "1", "0", "2"},
		{"fee doubles price", "100", "1", "50", "1", "0.5", "4"},
		{"weights cancel balances", "200", "2", "100", "1", "0", "1"},
		{"fractional", "30", "1", "40", "1", "0", "0.75"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SpotPrice(d(tt.balanceIn), d(tt.weightIn), d(tt.balanceOut), d(tt.weightOut), d(tt.fee))
			if err != nil {
				t.Fatalf("SpotPrice() error = %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("SpotPrice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSpotPrice_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    [5]string
		wantErr error
	}{
		{"zero balance out", [5]string{"100", "1", "0", "1", "0"}, ErrZeroBalance},
		{"zero weight out", [5]string{"100", "1", "100", "0", "0"}, ErrNonPositiveWeight},
		{"negative weight in", [5]string{"100", "-1", "100", "1", "0"}, ErrNonPositiveWeight},
		{"fee of one", [5]string{"100", "1", "100", "1", "1"}, ErrInvalidFee},
		{"negative fee", [5]string{"100", "1", "100", "1", "-0.1"}, ErrInvalidFee},
		{"negative balance", [5]string{"-5", "1", "100", "1", "0"}, ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SpotPrice(d(tt.args[0]), d(tt.args[1]), d(tt.args[2]), d(tt.args[3]), d(tt.args[4]))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SpotPrice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpotPrice_ScaleInvariant(t *testing.T) {
	base, err := SpotPrice(d("100"), d("1"), d("40"), d("1"), d("0.02"))
	if err != nil {
		t.Fatalf("SpotPrice() error = %v", err)
	}

	for _, k := range []string{"7", "0.5", "1000", "0.001"} {
		scaled, err := SpotPrice(d("100").Mul(d(k)), d("1"), d("40").Mul(d(k)), d("1"), d("0.02"))
		if err != nil {
			t.Fatalf("SpotPrice(scale %s) error = %v", k, err)
		}
		if !approxEqual(base, scaled, d("1e-15")) {
			t.Errorf("SpotPrice(scale %s) = %s, want %s", k, scaled, base)
		}
	}
}

func TestAmountOutGivenIn(t *testing.T) {
	tests := []struct {
		name                                       string
		balanceIn, weightIn, balanceOut, weightOut string
		amountIn, fee                              string
		want                                       string
		tol                                        string
	}{
		{"equal weights", "100", "1", "100", "1", "100", "0", "50", "0"},
		{"integer exponent", "100", "2", "100", "1", "300", "0", "93.75", "0"},
		{"fee halves input", "100", "1", "100", "1", "200", "0.5", "50", "0"},
		{"fractional exponent", "100", "1", "100", "2", "300", "0", "50", "1e-12"},
		{"zero amount", "100", "1", "100", "1", "0", "0.3", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountOutGivenIn(d(tt.balanceIn), d(tt.weightIn), d(tt.balanceOut), d(tt.weightOut), d(tt.amountIn), d(tt.fee))
			if err != nil {
				t.Fatalf("AmountOutGivenIn() error = %v", err)
			}
			if !approxEqual(got, d(tt.want), d(tt.tol)) {
				t.Errorf("AmountOutGivenIn() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAmountOutGivenIn_NeverDrainsPool(t *testing.T) {
	balanceOut := d("100")
	for _, amountIn := range []string{"1", "1000", "1000000", "1000000000000"} {
		got, err := AmountOutGivenIn(d("1"), d("1"), balanceOut, d("1"), d(amountIn), d("0"))
		if err != nil {
			if !errors.Is(err, ErrNonFinite) {
				t.Fatalf("AmountOutGivenIn(%s) error = %v, want ErrNonFinite", amountIn, err)
			}
			continue
		}
		if !got.LessThan(balanceOut) {
			t.Errorf("AmountOutGivenIn(%s) = %s, want < %s", amountIn, got, balanceOut)
		}
	}

	_, err := AmountOutGivenIn(d("1"), d("1"), balanceOut, d("1"), d("1e30"), d("0"))
	if !errors.Is(err, ErrNonFinite) {
		t.Errorf("AmountOutGivenIn(1e30) error = %v, want ErrNonFinite", err)
	}
}

func TestAmountOutGivenIn_Monotonic(t *testing.T) {
	prev := decimal.Zero
	for _, amountIn := range []string{"1", "5", "10", "50", "100", "500"} {
		got, err := AmountOutGivenIn(d("200"), d("1"), d("300"), d("3"), d(amountIn), d("0.01"))
		if err != nil {
			t.Fatalf("AmountOutGivenIn(%s) error = %v", amountIn, err)
		}
		if !got.GreaterThan(prev) {
			t.Errorf("AmountOutGivenIn(%s) = %s, want > %s", amountIn, got, prev)
		}
		prev = got
	}
}

func TestAmountInGivenOut(t *testing.T) {
	tests := []struct {
		name                                       string
		balanceOut, weightOut, balanceIn, weightIn string
		amountOut, fee                             string
		want                                       string
		tol                                        string
	}{
		{"equal weights", "100", "1", "100", "1", "50", "0", "100", "0"},
		{"fee doubles cost", "100", "1", "100", "1", "50", "0.5", "200", "0"},
		{"integer exponent", "100", "2", "100", "1", "50", "0", "300", "0"},
		{"fractional exponent", "100", "1", "100", "2", "75", "0", "100", "1e-12"},
		{"zero amount", "100", "1", "100", "1", "0", "0", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AmountInGivenOut(d(tt.balanceOut), d(tt.weightOut), d(tt.balanceIn), d(tt.weightIn), d(tt.amountOut), d(tt.fee))
			if err != nil {
				t.Fatalf("AmountInGivenOut() error = %v", err)
			}
			if !approxEqual(got, d(tt.want), d(tt.tol)) {
				t.Errorf("AmountInGivenOut() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAmountInGivenOut_Domain(t *testing.T) {
	tests := []struct {
		name      string
		amountOut string
		wantErr   error
	}{
		{"equal to balance", "100", ErrInfeasibleQuantity},
		{"above balance", "150", ErrInfeasibleQuantity},
		{"negative", "-1", ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AmountInGivenOut(d("100"), d("1"), d("100"), d("1"), d(tt.amountOut), d("0"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AmountInGivenOut() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	pools := []struct {
		poolIn, wIn, poolOut, wOut string
	}{
		{"100", "1", "100", "1"},
		{"1000", "1", "250", "4"},
		{"52.5", "3", "812.25", "2"},
		{"10000", "10", "30000", "1"},
	}
	tol := d("1e-9")

	for _, p := range pools {
		for _, x := range []string{"0.1", "1", "7.5", "20"} {
			out, err := AmountOutGivenIn(d(p.poolIn), d(p.wIn), d(p.poolOut), d(p.wOut), d(x), decimal.Zero)
			if err != nil {
				t.Fatalf("AmountOutGivenIn(%v, %s) error = %v", p, x, err)
			}
			back, err := AmountInGivenOut(d(p.poolOut), d(p.wOut), d(p.poolIn), d(p.wIn), out, decimal.Zero)
			if err != nil {
				t.Fatalf("AmountInGivenOut(%v, %s) error = %v", p, out, err)
			}
			if !approxEqual(back, d(x), tol) {
				t.Errorf("round trip %v: %s -> %s -> %s", p, x, out, back)
			}
		}
	}
}

func TestFeeMonotonicity(t *testing.T) {
	fees := []string{"0", "0.001", "0.01", "0.1", "0.3"}

	prevOut := decimal.Zero
	prevIn := decimal.Zero
	for i, fee := range fees {
		out, err := AmountOutGivenIn(d("500"), d("1"), d("500"), d("1"), d("25"), d(fee))
		if err != nil {
			t.Fatalf("AmountOutGivenIn(fee %s) error = %v", fee, err)
		}
		in, err := AmountInGivenOut(d("500"), d("1"), d("500"), d("1"), d("25"), d(fee))
		if err != nil {
			t.Fatalf("AmountInGivenOut(fee %s) error = %v", fee, err)
		}
		if i > 0 {
			if !out.LessThan(prevOut) {
				t.Errorf("fee %s: out %s not < %s", fee, out, prevOut)
			}
			if !in.GreaterThan(prevIn) {
				t.Errorf("fee %s: in %s not > %s", fee, in, prevIn)
			}
		}
		prevOut, prevIn = out, in
	}
}

func TestIsInfeasible(t *testing.T) {
	for _, err := range []error{ErrInfeasibleQuantity, ErrNonFinite, ErrZeroBalance, ErrNonPositiveWeight} {
		if !IsInfeasible(err) {
			t.Errorf("IsInfeasible(%v) = false, want true", err)
		}
	}
	if IsInfeasible(ErrInvalidFee) {
		t.Error("IsInfeasible(ErrInvalidFee) = true, want false")
	}
}

func TestSlippage(t *testing.T) {
	if got := SlippedCost(d("100"), d("1")); !got.Equal(d("101")) {
		t.Errorf("SlippedCost(100, 1) = %s, want 101", got)
	}
	if got := SlippedProceeds(d("100"), d("1")); !got.Equal(d("99")) {
		t.Errorf("SlippedProceeds(100, 1) = %s, want 99", got)
	}
	if got := SlippedCost(d("42"), decimal.Zero); !got.Equal(d("42")) {
		t.Errorf("SlippedCost(42, 0) = %s, want 42", got)
	}
	if got := SlippedProceeds(d("42"), d("100")); !got.IsZero() {
		t.Errorf("SlippedProceeds(42, 100) = %s, want 0", got)
	}
}
