package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{name: "plain digits", input: "1500", want: 1500},
		{name: "k suffix", input: "250k", want: 250_000},
		{name: "uppercase suffix", input: "250K", want: 250_000},
		{name: "decimal mantissa", input: "2.5m", want: 2_500_000},
		{name: "b suffix", input: "1.5b", want: 1_500_000_000},
		{name: "t suffix", input: "1t", want: 1_000_000_000_000},
		{name: "comma separators", input: "1,000,000", want: 1_000_000},
		{name: "underscore separators", input: "10_000", want: 10_000},
		{name: "inner spaces", input: "1 000 000", want: 1_000_000},
		{name: "leading dot", input: ".5m", want: 500_000},
		{name: "excess fraction truncates", input: "1.2345k", want: 1_234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmountRejects(t *testing.T) {
	// Decimals without a suffix are rejected rather than truncated.
	inputs := []string{"", "   ", "-5", "abc", "5x", "1..5k", "k", "2.5mm", "1e6", "2.5", ".5"}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAmount(input)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "0"},
		{999, "999"},
		{1_000, "1K"},
		{250_000, "250K"},
		{2_500_000, "2.5M"},
		{1_230_000, "1.23M"},
		{1_000_000_000, "1B"},
		{1_000_000_000_000, "1T"},
		{-250_000, "-250K"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, FormatAmount(tt.amount))
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, amount := range []int64{1_000, 250_000, 2_500_000, 1_000_000_000} {
		parsed, err := ParseAmount(FormatAmount(amount))
		require.NoError(t, err)
		require.Equal(t, amount, parsed)
	}
}

func TestCompareAmounts(t *testing.T) {
	require.Equal(t, "+50K", CompareAmounts(300_000, 250_000))
	require.Equal(t, "-50K", CompareAmounts(250_000, 300_000))
	require.Equal(t, "±0", CompareAmounts(250_000, 250_000))
}

func TestCommissionRoundsHalfUp(t *testing.T) {
	tests := []struct {
		amount int64
		pct    int64
		want   int64
	}{
		{1_000, 5, 50},
		{10, 5, 1},    // 0.5 rounds up
		{999, 5, 50},  // 49.95 rounds up
		{989, 5, 49},  // 49.45 rounds down
		{1_000, 0, 0},
		{0, 5, 0},
		{-100, 5, 0},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Commission(tt.amount, tt.pct),
			"Commission(%d, %d)", tt.amount, tt.pct)
	}
}

func TestValidateAmount(t *testing.T) {
	limits := Limits{MinAmount: 1_000, MaxAmount: 1_000_000_000_000}

	require.NoError(t, ValidateAmount(1_000, limits))
	require.NoError(t, ValidateAmount(1_000_000_000_000, limits))

	var validErr *ValidationError
	require.ErrorAs(t, ValidateAmount(999, limits), &validErr)
	require.ErrorAs(t, ValidateAmount(1_000_000_000_001, limits), &validErr)
}

func TestCooldownGate(t *testing.T) {
	gate, err := NewCooldownGate(2*time.Second, 16)
	require.NoError(t, err)

	now := time.Now()

	_, blocked := gate.Check("g1:alice", now)
	require.False(t, blocked, "fresh bidder must not be blocked")

	gate.Touch("g1:alice", now)

	remaining, blocked := gate.Check("g1:alice", now.Add(time.Second))
	require.True(t, blocked)
	require.Equal(t, time.Second, remaining)

	_, blocked = gate.Check("g1:alice", now.Add(2*time.Second))
	require.False(t, blocked, "window must expire")

	_, blocked = gate.Check("g1:bob", now)
	require.False(t, blocked, "cooldowns are per bidder")
}
