package auction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

var amountPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)([kmbt]?)$`)

var suffixMultipliers = map[string]int64{
	"":  1,
	"k": 1_000,
	"m": 1_000_000,
	"b": 1_000_000_000,
	"t": 1_000_000_000_000,
}

// ParseAmount reads shorthand bid text into a raw amount. Separators
// (",", "_", spaces) are stripped, a single k/m/b/t suffix scales the
// value, and a decimal mantissa is allowed only before a suffix ("2.5m").
// Fractions beyond the suffix's precision are truncated.
func ParseAmount(input string) (int64, error) {
	cleaned := strings.ToLower(strings.TrimSpace(input))
	cleaned = strings.NewReplacer(",", "", "_", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return 0, &ParseError{Input: input, Reason: "empty amount"}
	}

	match := amountPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return 0, &ParseError{Input: input, Reason: "not a number with optional k/m/b/t suffix"}
	}

	mantissa, suffix := match[1], match[2]
	multiplier := suffixMultipliers[suffix]

	intPart := mantissa
	fracPart := ""
	if dot := strings.IndexByte(mantissa, '.'); dot >= 0 {
		if suffix == "" {
			return 0, &ParseError{Input: input, Reason: "decimal amounts need a k/m/b/t suffix"}
		}
		intPart, fracPart = mantissa[:dot], mantissa[dot+1:]
	}

	var value int64
	if intPart != "" {
		n, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, &ParseError{Input: input, Reason: "amount too large"}
		}
		if n > (1<<62)/multiplier {
			return 0, &ParseError{Input: input, Reason: "amount too large"}
		}
		value = n * multiplier
	}

	scale := multiplier
	for i := 0; i < len(fracPart); i++ {
		scale /= 10
		value += int64(fracPart[i]-'0') * scale
	}

	return value, nil
}

// FormatAmount renders an amount in the same shorthand ParseAmount reads,
// keeping up to two decimals and trimming trailing zeros: 250000 -> "250K",
// 2500000 -> "2.5M". Values below 1000 render as plain digits.
func FormatAmount(amount int64) string {
	if amount < 0 {
		return "-" + FormatAmount(-amount)
	}

	steps := []struct {
		threshold int64
		suffix    string
	}{
		{1_000_000_000_000, "T"},
		{1_000_000_000, "B"},
		{1_000_000, "M"},
		{1_000, "K"},
	}

	for _, s := range steps {
		if amount >= s.threshold {
			value := strconv.FormatFloat(float64(amount)/float64(s.threshold), 'f', 2, 64)
			value = strings.TrimRight(value, "0")
			value = strings.TrimRight(value, ".")
			return value + s.suffix
		}
	}
	return strconv.FormatInt(amount, 10)
}

// CompareAmounts renders the signed difference between two amounts.
func CompareAmounts(a, b int64) string {
	switch delta := a - b; {
	case delta > 0:
		return "+" + FormatAmount(delta)
	case delta < 0:
		return "-" + FormatAmount(-delta)
	default:
		return "±0"
	}
}

// Commission computes the house cut, rounding half-up.
func Commission(amount, pct int64) int64 {
	if amount <= 0 || pct <= 0 {
		return 0
	}
	return (amount*pct + 50) / 100
}

// Limits carries the amount bounds a guild enforces on bids.
type Limits struct {
	MinAmount int64
	MaxAmount int64
}

// ValidateAmount checks an amount against the guild limits.
func ValidateAmount(amount int64, limits Limits) error {
	if amount < limits.MinAmount {
		return &ValidationError{
			Reason: fmt.Sprintf("bid must be at least %s", FormatAmount(limits.MinAmount)),
		}
	}
	if amount > limits.MaxAmount {
		return &ValidationError{
			Reason: fmt.Sprintf("bid cannot exceed %s", FormatAmount(limits.MaxAmount)),
		}
	}
	return nil
}

// CooldownGate rate-limits bidders. The LRU bounds memory across guilds
// without ever expiring entries by hand.
type CooldownGate struct {
	window time.Duration
	cache  *lru.Cache
}

func NewCooldownGate(window time.Duration, size int) (*CooldownGate, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CooldownGate{window: window, cache: cache}, nil
}

// Check returns the remaining wait for a bidder still inside their window.
func (g *CooldownGate) Check(bidderID string, now time.Time) (time.Duration, bool) {
	if g.window <= 0 {
		return 0, false
	}
	if v, ok := g.cache.Get(bidderID); ok {
		if last, ok := v.(time.Time); ok {
			if remaining := g.window - now.Sub(last); remaining > 0 {
				return remaining, true
			}
		}
	}
	return 0, false
}

// Touch records an accepted bid, starting the bidder's window.
func (g *CooldownGate) Touch(bidderID string, now time.Time) {
	g.cache.Add(bidderID, now)
}
