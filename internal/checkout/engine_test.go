package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"suqpos/backend/internal/domain"
)

type fakeSink struct {
	mu      sync.Mutex
	drafts  []domain.SaleDraft
	failErr error
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeSink) CompleteSale(_ context.Context, draft domain.SaleDraft) (domain.SaleReceipt, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return domain.SaleReceipt{}, f.failErr
	}
	f.drafts = append(f.drafts, draft)
	return domain.SaleReceipt{SaleID: "sale-test-1"}, nil
}

func (f *fakeSink) lastDraft(t *testing.T) domain.SaleDraft {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.drafts) == 0 {
		t.Fatalf("expected a committed draft")
	}
	return f.drafts[len(f.drafts)-1]
}

func newTestEngine(sink SaleSink) *Engine {
	return NewEngine("branch-bole", "cashier", sink)
}

func TestSubmitBlockedOnEmptyCart(t *testing.T) {
	engine := newTestEngine(&fakeSink{})

	if err := engine.CanSubmit(); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
	if _, err := engine.Submit(context.Background()); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected Submit to refuse empty cart, got %v", err)
	}
}

func TestSubmitBlockedOnUnresolvedPrice(t *testing.T) {
	engine := newTestEngine(&fakeSink{})

	if err := engine.AddProduct(catalogItem("prd-a", 10000, 5)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := engine.SetPrice("prd-a", ""); err != nil {
		t.Fatalf("clear price failed: %v", err)
	}

	if err := engine.CanSubmit(); !errors.Is(err, ErrPriceUnresolved) {
		t.Fatalf("expected ErrPriceUnresolved, got %v", err)
	}

	if err := engine.FinalizePrice("prd-a"); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if err := engine.CanSubmit(); err != nil {
		t.Fatalf("expected submittable after finalize, got %v", err)
	}
}

func TestSubmitBlockedOnIncompleteSplit(t *testing.T) {
	engine := newTestEngine(&fakeSink{})

	if err := engine.AddProduct(catalogItem("prd-a", 35000, 5)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	engine.SelectSplitTender()
	if err := engine.SetSplitAmount(MethodCash, 20000); err != nil {
		t.Fatalf("set split failed: %v", err)
	}

	if err := engine.CanSubmit(); !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("expected ErrPaymentIncomplete, got %v", err)
	}

	if err := engine.PayRemainder(MethodBank); err != nil {
		t.Fatalf("pay remainder failed: %v", err)
	}
	if err := engine.CanSubmit(); err != nil {
		t.Fatalf("expected submittable after remainder, got %v", err)
	}
}

func TestSubmitSuccessResetsSession(t *testing.T) {
	sink := &fakeSink{}
	engine := newTestEngine(sink)

	for i := 0; i < 3; i++ {
		if err := engine.AddProduct(catalogItem("prd-a", 10000, 10)); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}
	if err := engine.AddProduct(catalogItem("prd-b", 5000, 10)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := engine.SetFlatDiscount(5000); err != nil {
		t.Fatalf("set discount failed: %v", err)
	}
	engine.AttachCustomer(domain.CustomerRef{CustomerID: "cus-0001"}, 5)

	receipt, err := engine.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if receipt.SaleID != "sale-test-1" {
		t.Fatalf("expected receipt from sink, got %+v", receipt)
	}

	draft := sink.lastDraft(t)
	if draft.SubtotalCents != 35000 || draft.DiscountCents != 5000 || draft.TotalCents != 30000 {
		t.Fatalf("unexpected totals: %+v", draft)
	}
	if draft.Tender.PrimaryMethod != string(MethodCash) || draft.Tender.CashCents != 30000 {
		t.Fatalf("expected full total on cash, got %+v", draft.Tender)
	}
	if draft.Customer.CustomerID != "cus-0001" {
		t.Fatalf("expected customer carried on draft, got %+v", draft.Customer)
	}

	view := engine.View()
	if len(view.Lines) != 0 || view.SubtotalCents != 0 || view.DiscountCents != 0 {
		t.Fatalf("expected cleared session after success, got %+v", view)
	}
	if view.TenderMode != string(ModeSingle) || view.SingleMethod != string(MethodCash) {
		t.Fatalf("expected tender reset to single/cash, got %s/%s", view.TenderMode, view.SingleMethod)
	}
	if !view.Customer.IsZero() {
		t.Fatalf("expected customer detached after success, got %+v", view.Customer)
	}
}

func TestSubmitFailureKeepsSessionIntact(t *testing.T) {
	sink := &fakeSink{failErr: errors.New("stock gone stale")}
	engine := newTestEngine(sink)

	if err := engine.AddProduct(catalogItem("prd-a", 10000, 5)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := engine.SetFlatDiscount(1000); err != nil {
		t.Fatalf("set discount failed: %v", err)
	}
	engine.SelectSplitTender()
	if err := engine.PayRemainder(MethodMobile); err != nil {
		t.Fatalf("pay remainder failed: %v", err)
	}

	if _, err := engine.Submit(context.Background()); err == nil {
		t.Fatalf("expected submit to surface sink failure")
	}

	view := engine.View()
	if len(view.Lines) != 1 || view.SubtotalCents != 10000 || view.DiscountCents != 1000 {
		t.Fatalf("expected session untouched after failure, got %+v", view)
	}
	if view.SplitCents[string(MethodMobile)] != 9000 {
		t.Fatalf("expected split amounts kept, got %+v", view.SplitCents)
	}

	// Clearing the sink error lets the same session retry unchanged.
	sink.mu.Lock()
	sink.failErr = nil
	sink.mu.Unlock()
	if _, err := engine.Submit(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	draft := sink.lastDraft(t)
	if draft.TotalCents != 9000 || draft.Tender.MobileCents != 9000 {
		t.Fatalf("unexpected retried draft: %+v", draft)
	}
}

func TestSubmitOverpaidSplitIsRejected(t *testing.T) {
	engine := newTestEngine(&fakeSink{})

	if err := engine.AddProduct(catalogItem("prd-a", 35000, 5)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	engine.SelectSplitTender()
	if err := engine.SetSplitAmount(MethodCash, 20000); err != nil {
		t.Fatalf("set cash failed: %v", err)
	}
	if err := engine.SetSplitAmount(MethodBank, 15000); err != nil {
		t.Fatalf("set bank failed: %v", err)
	}
	if err := engine.SetSplitAmount(MethodMobile, 1000); err != nil {
		t.Fatalf("set mobile failed: %v", err)
	}

	view := engine.View()
	if !view.IsOverpaid || view.CanSubmit {
		t.Fatalf("expected overpaid and blocked, got %+v", view)
	}
	if _, err := engine.Submit(context.Background()); !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("expected ErrPaymentIncomplete, got %v", err)
	}
}

func TestSubmitRejectsReentry(t *testing.T) {
	sink := &fakeSink{entered: make(chan struct{}), block: make(chan struct{})}
	engine := newTestEngine(sink)

	if err := engine.AddProduct(catalogItem("prd-a", 10000, 5)); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := engine.Submit(context.Background())
		done <- err
	}()

	// Wait until the first submission is parked inside the sink.
	<-sink.entered

	if _, err := engine.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}
	if err := engine.CanSubmit(); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected CanSubmit to report in-flight submission, got %v", err)
	}
	view := engine.View()
	if view.CanSubmit || view.BlockedReason != ErrSubmitInFlight.Error() {
		t.Fatalf("expected view blocked while submission outstanding, got %+v", view)
	}

	close(sink.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
}

func TestDiscountAboveSubtotalYieldsZeroTotal(t *testing.T) {
	sink := &fakeSink{}
	engine := newTestEngine(sink)

	for i := 0; i < 3; i++ {
		if err := engine.AddProduct(catalogItem("prd-a", 10000, 10)); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}
	if err := engine.AddProduct(catalogItem("prd-b", 5000, 10)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := engine.SetFlatDiscount(40000); err != nil {
		t.Fatalf("set discount failed: %v", err)
	}

	view := engine.View()
	if view.DiscountCents != 35000 || view.TotalDueCents != 0 {
		t.Fatalf("expected discount clamped and zero due, got %+v", view)
	}

	if _, err := engine.Submit(context.Background()); err != nil {
		t.Fatalf("zero-due sale should submit: %v", err)
	}
	draft := sink.lastDraft(t)
	if draft.TotalCents != 0 || draft.DiscountCents != 35000 {
		t.Fatalf("unexpected draft totals: %+v", draft)
	}
}

func TestApplySuggestedDiscountFlow(t *testing.T) {
	engine := newTestEngine(&fakeSink{})

	for i := 0; i < 3; i++ {
		if err := engine.AddProduct(catalogItem("prd-a", 10000, 10)); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}
	if err := engine.AddProduct(catalogItem("prd-b", 5000, 10)); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	engine.AttachCustomer(domain.CustomerRef{CustomerID: "cus-0001", Name: "Hana Tesfaye"}, 5)
	view := engine.View()
	if view.SuggestedPercentage != 5 || view.DiscountCents != 0 {
		t.Fatalf("suggestion must be advisory until applied, got %+v", view)
	}

	engine.ApplySuggestedDiscount()
	view = engine.View()
	if view.DiscountCents != 1750 || view.TotalDueCents != 33250 {
		t.Fatalf("expected 5%% applied, got %+v", view)
	}

	engine.DetachCustomer()
	view = engine.View()
	if view.SuggestedPercentage != 0 {
		t.Fatalf("expected suggestion dropped on detach, got %+v", view)
	}
	if view.DiscountCents != 1750 {
		t.Fatalf("applied flat amount survives detach, got %+v", view)
	}
}

func TestBuildPayloadRecordsSplitVerbatim(t *testing.T) {
	engine := newTestEngine(&fakeSink{})

	if err := engine.AddProduct(catalogItem("prd-a", 35000, 5)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	engine.SelectSplitTender()
	if err := engine.SetSplitAmount(MethodBank, 20000); err != nil {
		t.Fatalf("set bank failed: %v", err)
	}
	if err := engine.SetSplitAmount(MethodMobile, 15000); err != nil {
		t.Fatalf("set mobile failed: %v", err)
	}

	draft, err := engine.BuildPayload()
	if err != nil {
		t.Fatalf("build payload failed: %v", err)
	}
	if draft.Tender.BankCents != 20000 || draft.Tender.MobileCents != 15000 || draft.Tender.CashCents != 0 {
		t.Fatalf("expected verbatim split amounts, got %+v", draft.Tender)
	}
	if draft.Tender.PrimaryMethod != string(MethodBank) {
		t.Fatalf("expected bank as primary, got %s", draft.Tender.PrimaryMethod)
	}
}
