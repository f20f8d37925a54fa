package checkout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price is a tagged amount: a line price is either resolved to a cent value
// or still unresolved while the operator is editing the field. An unresolved
// price displays as zero but blocks submission until it is finalized.
type Price struct {
	resolved bool
	cents    int64
}

func UnresolvedPrice() Price {
	return Price{}
}

func ResolvedPrice(cents int64) Price {
	return Price{resolved: true, cents: cents}
}

func (p Price) Resolved() bool {
	return p.resolved
}

// Cents returns the resolved value, or 0 for an unresolved price.
func (p Price) Cents() int64 {
	if !p.resolved {
		return 0
	}
	return p.cents
}

// ParseAmountCents converts a textual currency amount ("120", "12.50", "0.5")
// into integer cents. Negative and non-numeric input is rejected.
func ParseAmountCents(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	if strings.HasPrefix(trimmed, "-") {
		return 0, fmt.Errorf("%w: negative amount %q", ErrInvalidInput, raw)
	}

	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: amount %q has sub-cent precision", ErrInvalidInput, raw)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not numeric", ErrInvalidInput, raw)
	}
	fracCents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not numeric", ErrInvalidInput, raw)
	}

	// units*100+fracCents must stay within int64.
	if units > (math.MaxInt64-99)/100 {
		return 0, fmt.Errorf("%w: amount %q is too large", ErrInvalidInput, raw)
	}

	return units*100 + fracCents, nil
}
