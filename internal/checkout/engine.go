package checkout

import (
	"context"
	"fmt"
	"sync"

	"suqpos/backend/internal/domain"
)

// SaleSink is the external persistence boundary a finished payload is handed
// to. The sink commits atomically on its side: stock decrement, sale and line
// records, customer resolution, tier recompute, audit row.
type SaleSink interface {
	CompleteSale(ctx context.Context, draft domain.SaleDraft) (domain.SaleReceipt, error)
}

// Engine is one operator's in-progress checkout: the cart, the discount, the
// tender ledger and the optional customer reference, plus the reconciliation
// that decides whether the sale is submittable. One engine per session; all
// mutations are synchronous.
type Engine struct {
	mu       sync.Mutex
	branchID string
	cashier  string
	sink     SaleSink

	cart     *Cart
	discount *Discount
	tender   *TenderLedger
	customer domain.CustomerRef
	inFlight bool
}

func NewEngine(branchID string, cashier string, sink SaleSink) *Engine {
	return &Engine{
		branchID: branchID,
		cashier:  cashier,
		sink:     sink,
		cart:     NewCart(),
		discount: NewDiscount(),
		tender:   NewTenderLedger(),
	}
}

func (e *Engine) BranchID() string {
	return e.branchID
}

// Cart operations.

func (e *Engine) AddProduct(item domain.CatalogItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.AddProduct(item)
}

func (e *Engine) ChangeQuantity(productID string, delta int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.ChangeQuantity(productID, delta)
}

func (e *Engine) SetPrice(productID string, rawInput string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.SetPrice(productID, rawInput)
}

func (e *Engine) FinalizePrice(productID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.FinalizePrice(productID)
}

func (e *Engine) RemoveLine(productID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cart.Remove(productID)
}

func (e *Engine) ClearCart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cart.Clear()
}

// Discount operations.

func (e *Engine) SetFlatDiscount(cents int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.discount.SetFlatCents(cents)
}

func (e *Engine) ApplySuggestedDiscount() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discount.ApplySuggested(e.cart.SubtotalCents())
}

// Customer attachment. The suggested percentage comes from the loyalty
// provider and is advisory until the operator applies it.

func (e *Engine) AttachCustomer(ref domain.CustomerRef, suggestedPct float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customer = ref
	e.discount.SetSuggestedPercentage(suggestedPct)
}

func (e *Engine) DetachCustomer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customer = domain.CustomerRef{}
	e.discount.SetSuggestedPercentage(0)
}

// Tender operations.

func (e *Engine) SelectSingleTender(method Method) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tender.SelectSingle(method)
}

func (e *Engine) SelectSplitTender() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tender.SelectSplit()
}

func (e *Engine) SetSplitAmount(method Method, cents int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tender.SetSplitAmount(method, cents)
}

func (e *Engine) PayRemainder(method Method) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tender.PayRemainder(method, e.totalDueCentsLocked())
}

func (e *Engine) ClearTender() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tender.Clear()
}

func (e *Engine) totalDueCentsLocked() int64 {
	subtotal := e.cart.SubtotalCents()
	return subtotal - e.discount.EffectiveCents(subtotal)
}

// CanSubmit reports why the sale is not yet submittable, or nil when it is.
func (e *Engine) CanSubmit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canSubmitLocked()
}

func (e *Engine) canSubmitLocked() error {
	if e.inFlight {
		return ErrSubmitInFlight
	}
	if e.cart.Empty() {
		return ErrCartEmpty
	}
	if line, ok := e.cart.firstUnresolved(); ok {
		return fmt.Errorf("%w: %s", ErrPriceUnresolved, line.Name())
	}
	if !e.tender.IsComplete(e.totalDueCentsLocked()) {
		return ErrPaymentIncomplete
	}
	return nil
}

// BuildPayload assembles the write-once sale draft. Precondition: the sale is
// submittable; the blocking reason is returned otherwise.
func (e *Engine) BuildPayload() (domain.SaleDraft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildPayloadLocked()
}

func (e *Engine) buildPayloadLocked() (domain.SaleDraft, error) {
	if err := e.canSubmitLocked(); err != nil {
		return domain.SaleDraft{}, err
	}

	subtotal := e.cart.SubtotalCents()
	discount := e.discount.EffectiveCents(subtotal)
	total := subtotal - discount
	if total < 0 {
		total = 0
	}

	lines := make([]domain.SaleLine, 0, len(e.cart.order))
	for _, line := range e.cart.Lines() {
		lines = append(lines, domain.SaleLine{
			ProductID:      line.ProductID(),
			Name:           line.Name(),
			Quantity:       line.Quantity(),
			UnitPriceCents: line.UnitPrice().Cents(),
			LineTotalCents: line.LineTotalCents(),
		})
	}

	breakdown := domain.TenderBreakdown{PrimaryMethod: string(e.tender.PrimaryMethod())}
	if e.tender.Mode() == ModeSingle {
		switch e.tender.SingleMethod() {
		case MethodBank:
			breakdown.BankCents = total
		case MethodMobile:
			breakdown.MobileCents = total
		default:
			breakdown.CashCents = total
		}
	} else {
		// Recorded split amounts verbatim; no rescaling.
		breakdown.CashCents = e.tender.SplitAmountCents(MethodCash)
		breakdown.BankCents = e.tender.SplitAmountCents(MethodBank)
		breakdown.MobileCents = e.tender.SplitAmountCents(MethodMobile)
	}

	return domain.SaleDraft{
		BranchID:        e.branchID,
		CashierUsername: e.cashier,
		Lines:           lines,
		SubtotalCents:   subtotal,
		DiscountCents:   discount,
		TotalCents:      total,
		Tender:          breakdown,
		Customer:        e.customer,
	}, nil
}

// Submit hands the payload to the persistence boundary. On success every
// piece of session state resets to empty; on failure nothing changes so the
// operator can adjust and retry. A second Submit while one is outstanding is
// rejected.
func (e *Engine) Submit(ctx context.Context) (domain.SaleReceipt, error) {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return domain.SaleReceipt{}, ErrSubmitInFlight
	}
	draft, err := e.buildPayloadLocked()
	if err != nil {
		e.mu.Unlock()
		return domain.SaleReceipt{}, err
	}
	e.inFlight = true
	e.mu.Unlock()

	receipt, err := e.sink.CompleteSale(ctx, draft)

	e.mu.Lock()
	e.inFlight = false
	if err == nil {
		e.resetLocked()
	}
	e.mu.Unlock()

	if err != nil {
		return domain.SaleReceipt{}, err
	}
	return receipt, nil
}

func (e *Engine) resetLocked() {
	e.cart.Clear()
	e.discount.Reset()
	e.tender.Reset()
	e.customer = domain.CustomerRef{}
}

// LineView and View are the read-only derived state the UI shell rebinds to
// after each mutating call.

type LineView struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	StockCeiling   int    `json:"stock_ceiling"`
	PriceResolved  bool   `json:"price_resolved"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type View struct {
	BranchID            string             `json:"branch_id"`
	Lines               []LineView         `json:"lines"`
	SubtotalCents       int64              `json:"subtotal_cents"`
	DiscountCents       int64              `json:"discount_cents"`
	SuggestedPercentage float64            `json:"suggested_percentage"`
	TotalDueCents       int64              `json:"total_due_cents"`
	TotalTenderedCents  int64              `json:"total_tendered_cents"`
	RemainingCents      int64              `json:"remaining_cents"`
	TenderMode          string             `json:"tender_mode"`
	SingleMethod        string             `json:"single_method"`
	SplitCents          map[string]int64   `json:"split_cents"`
	Customer            domain.CustomerRef `json:"customer"`
	IsComplete          bool               `json:"is_complete"`
	IsOverpaid          bool               `json:"is_overpaid"`
	CanSubmit           bool               `json:"can_submit"`
	BlockedReason       string             `json:"blocked_reason,omitempty"`
}

func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	subtotal := e.cart.SubtotalCents()
	discount := e.discount.EffectiveCents(subtotal)
	due := subtotal - discount

	lines := make([]LineView, 0, len(e.cart.order))
	for _, line := range e.cart.Lines() {
		lines = append(lines, LineView{
			ProductID:      line.ProductID(),
			Name:           line.Name(),
			Quantity:       line.Quantity(),
			StockCeiling:   line.StockCeiling(),
			PriceResolved:  line.UnitPrice().Resolved(),
			UnitPriceCents: line.UnitPrice().Cents(),
			LineTotalCents: line.LineTotalCents(),
		})
	}

	view := View{
		BranchID:            e.branchID,
		Lines:               lines,
		SubtotalCents:       subtotal,
		DiscountCents:       discount,
		SuggestedPercentage: e.discount.SuggestedPercentage(),
		TotalDueCents:       due,
		TotalTenderedCents:  e.tender.TotalTenderedCents(due),
		RemainingCents:      e.tender.RemainingCents(due),
		TenderMode:          string(e.tender.Mode()),
		SingleMethod:        string(e.tender.SingleMethod()),
		SplitCents: map[string]int64{
			string(MethodCash):   e.tender.SplitAmountCents(MethodCash),
			string(MethodBank):   e.tender.SplitAmountCents(MethodBank),
			string(MethodMobile): e.tender.SplitAmountCents(MethodMobile),
		},
		Customer:   e.customer,
		IsComplete: e.tender.IsComplete(due),
		IsOverpaid: e.tender.IsOverpaid(due),
	}
	if err := e.canSubmitLocked(); err != nil {
		view.BlockedReason = err.Error()
	} else {
		view.CanSubmit = true
	}
	return view
}
