package checkout

import (
	"fmt"
	"math"
)

// Discount turns operator input plus an optional loyalty-tier suggestion into
// a single flat amount. The flat amount is stored as entered, even above the
// current subtotal; clamping happens only when the effective discount is
// computed so the operator is not fought mid-edit.
type Discount struct {
	flatCents    int64
	suggestedPct float64
}

func NewDiscount() *Discount {
	return &Discount{}
}

func (d *Discount) SetFlatCents(cents int64) error {
	if cents < 0 {
		return fmt.Errorf("%w: negative discount", ErrInvalidInput)
	}
	d.flatCents = cents
	return nil
}

// SetSuggestedPercentage records the advisory percentage supplied by the
// loyalty provider for the attached customer. It changes nothing until the
// operator explicitly applies it.
func (d *Discount) SetSuggestedPercentage(pct float64) {
	if pct < 0 {
		pct = 0
	}
	d.suggestedPct = pct
}

func (d *Discount) SuggestedPercentage() float64 {
	return d.suggestedPct
}

// ApplySuggested overwrites the flat amount with the suggested percentage of
// the given subtotal. Explicit operator action only.
func (d *Discount) ApplySuggested(subtotalCents int64) {
	if d.suggestedPct <= 0 || subtotalCents < 1 {
		return
	}
	d.flatCents = int64(math.Round(float64(subtotalCents) * d.suggestedPct / 100))
}

func (d *Discount) FlatCents() int64 {
	return d.flatCents
}

// EffectiveCents clamps the flat amount into [0, subtotal] so the final total
// can never go negative.
func (d *Discount) EffectiveCents(subtotalCents int64) int64 {
	if d.flatCents < 0 {
		return 0
	}
	if d.flatCents > subtotalCents {
		return subtotalCents
	}
	return d.flatCents
}

func (d *Discount) Reset() {
	d.flatCents = 0
	d.suggestedPct = 0
}
