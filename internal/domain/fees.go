package domain

import (
	"fmt"
	"strings"
)

// FeeKind selects how fees are charged on each fill leg.
type FeeKind string

const (
	FeePercentage FeeKind = "percentage" // Rate x notional of the leg
	FeeFlat       FeeKind = "flat"       // Fixed stake-currency amount per leg
)

// ParseFeeKind converts a config string to FeeKind.
func ParseFeeKind(s string) (FeeKind, error) {
	switch FeeKind(strings.ToLower(strings.TrimSpace(s))) {
	case FeePercentage, "percent", "":
		return FeePercentage, nil
	case FeeFlat:
		return FeeFlat, nil
	default:
		return "", fmt.Errorf("unknown fee model %q", s)
	}
}

// FeeModel is applied symmetrically to entry and exit legs.
// The zero value charges no fees.
type FeeModel struct {
	Kind FeeKind
	Rate float64 // e.g. 0.001 for 0.1%
	Flat float64 // stake currency per leg
}

// Fee returns the fee charged for a leg of amount at price.
func (m FeeModel) Fee(price, amount float64) float64 {
	switch m.Kind {
	case FeeFlat:
		return m.Flat
	case FeePercentage, "":
		return m.Rate * price * amount
	default:
		return 0
	}
}

// Validate checks that the model is usable.
func (m FeeModel) Validate() error {
	if m.Rate < 0 || m.Rate >= 1 {
		return fmt.Errorf("fee rate must be in [0, 1), got %v", m.Rate)
	}
	if m.Flat < 0 {
		return fmt.Errorf("flat fee cannot be negative, got %v", m.Flat)
	}
	switch m.Kind {
	case FeePercentage, FeeFlat, "":
		return nil
	default:
		return fmt.Errorf("unknown fee model %q", m.Kind)
	}
}
