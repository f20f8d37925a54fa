package checkout

import "fmt"

// Method is one of the three tender types a sale can be paid with.
type Method string

const (
	MethodCash   Method = "cash"
	MethodBank   Method = "bank"
	MethodMobile Method = "mobile"
)

// methodOrder doubles as the tie-break priority for the primary method.
var methodOrder = []Method{MethodCash, MethodBank, MethodMobile}

func ParseMethod(raw string) (Method, error) {
	switch Method(raw) {
	case MethodCash, MethodBank, MethodMobile:
		return Method(raw), nil
	default:
		return "", fmt.Errorf("%w: unsupported tender method %q", ErrInvalidInput, raw)
	}
}

type Mode string

const (
	ModeSingle Mode = "single"
	ModeSplit  Mode = "split"
)

// TenderLedger tracks how the total due will be paid: one method covering the
// full amount, or an explicit split across the three tender types. Switching
// modes keeps the inactive mode's amounts dormant rather than clearing them,
// so an operator can experiment with both without re-entering figures.
type TenderLedger struct {
	mode   Mode
	single Method
	split  map[Method]int64
}

func NewTenderLedger() *TenderLedger {
	return &TenderLedger{
		mode:   ModeSingle,
		single: MethodCash,
		split:  make(map[Method]int64, len(methodOrder)),
	}
}

func (t *TenderLedger) Mode() Mode {
	return t.mode
}

func (t *TenderLedger) SingleMethod() Method {
	return t.single
}

func (t *TenderLedger) SplitAmountCents(method Method) int64 {
	return t.split[method]
}

// SelectSingle switches to single mode with the given method. Previously
// entered split amounts stay in place for a later toggle back.
func (t *TenderLedger) SelectSingle(method Method) error {
	if _, err := ParseMethod(string(method)); err != nil {
		return err
	}
	t.mode = ModeSingle
	t.single = method
	return nil
}

func (t *TenderLedger) SelectSplit() {
	t.mode = ModeSplit
}

func (t *TenderLedger) SetSplitAmount(method Method, cents int64) error {
	if _, err := ParseMethod(string(method)); err != nil {
		return err
	}
	if cents < 0 {
		return fmt.Errorf("%w: negative tender amount", ErrInvalidInput)
	}
	t.split[method] = cents
	return nil
}

// PayRemainder sets one method's split amount so the tendered total exactly
// covers the total due, floored at zero when the other methods already cover
// it. Calling it twice with no other change is a no-op.
func (t *TenderLedger) PayRemainder(method Method, totalDueCents int64) error {
	if _, err := ParseMethod(string(method)); err != nil {
		return err
	}
	var others int64
	for _, m := range methodOrder {
		if m != method {
			others += t.split[m]
		}
	}
	amount := totalDueCents - others
	if amount < 0 {
		amount = 0
	}
	t.split[method] = amount
	return nil
}

// Clear zeroes all split amounts. Mode and single method are untouched.
func (t *TenderLedger) Clear() {
	for _, m := range methodOrder {
		delete(t.split, m)
	}
}

// Reset returns the ledger to its default state: single mode, cash, no split
// amounts.
func (t *TenderLedger) Reset() {
	t.mode = ModeSingle
	t.single = MethodCash
	t.Clear()
}

func (t *TenderLedger) TotalTenderedCents(totalDueCents int64) int64 {
	if t.mode == ModeSingle {
		return totalDueCents
	}
	var sum int64
	for _, m := range methodOrder {
		sum += t.split[m]
	}
	return sum
}

func (t *TenderLedger) RemainingCents(totalDueCents int64) int64 {
	return totalDueCents - t.TotalTenderedCents(totalDueCents)
}

// IsComplete gates submission. Single mode always covers the total; split
// mode requires the tendered sum to match the total due to the cent.
func (t *TenderLedger) IsComplete(totalDueCents int64) bool {
	if t.mode == ModeSingle {
		return true
	}
	return t.RemainingCents(totalDueCents) == 0
}

func (t *TenderLedger) IsOverpaid(totalDueCents int64) bool {
	if t.mode == ModeSingle {
		return false
	}
	return t.TotalTenderedCents(totalDueCents) > totalDueCents
}

// PrimaryMethod is the headline method on the sale record. In split mode the
// largest amount wins; exact ties fall back to cash, then bank, then mobile.
func (t *TenderLedger) PrimaryMethod() Method {
	if t.mode == ModeSingle {
		return t.single
	}
	primary := methodOrder[0]
	best := t.split[primary]
	for _, m := range methodOrder[1:] {
		if t.split[m] > best {
			primary = m
			best = t.split[m]
		}
	}
	return primary
}
