package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"suqpos/backend/internal/cache"
	"suqpos/backend/internal/checkout"
	"suqpos/backend/internal/domain"
	"suqpos/backend/internal/store"
	"suqpos/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopCatalogCache{}, "branch-bole", 5*time.Second)
	return svc, repo
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func TestDefaultBranchSessionSeesSeededCatalog(t *testing.T) {
	svc := New(memory.NewSeeded(), nil, "", 0)

	sessionID, _, err := svc.OpenCartSession(cashierCtx(), "")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	// The fallback branch must carry seed products so a dev run can sell.
	if _, err := svc.AddCartItem(sessionID, "prd-sugar-01"); err != nil {
		t.Fatalf("expected seeded product in default branch snapshot: %v", err)
	}
}

func TestOpenCartSessionRequiresActor(t *testing.T) {
	svc, _ := newTestService()

	if _, _, err := svc.OpenCartSession(context.Background(), "branch-bole"); err == nil {
		t.Fatalf("expected open to fail without actor")
	}
}

func TestCartSessionSingleCashCheckout(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	sessionID, view, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if view.CanSubmit {
		t.Fatalf("fresh session must not be submittable")
	}

	for i := 0; i < 2; i++ {
		if view, err = svc.AddCartItem(sessionID, "prd-sugar-01"); err != nil {
			t.Fatalf("add sugar failed: %v", err)
		}
	}
	if view, err = svc.AddCartItem(sessionID, "prd-water-01"); err != nil {
		t.Fatalf("add water failed: %v", err)
	}
	if view.SubtotalCents != 2*9800+3000 {
		t.Fatalf("expected subtotal 22600, got %d", view.SubtotalCents)
	}
	if !view.CanSubmit {
		t.Fatalf("single cash sale should be submittable, blocked: %s", view.BlockedReason)
	}

	receipt, view, err := svc.SubmitCart(ctx, sessionID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if receipt.SaleID == "" {
		t.Fatalf("expected sale id on receipt")
	}
	if len(view.Lines) != 0 {
		t.Fatalf("expected empty cart after submit, got %d lines", len(view.Lines))
	}

	sugar, err := repo.GetProductByID(ctx, "prd-sugar-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if sugar.Stock != 118 {
		t.Fatalf("expected stock decremented to 118, got %d", sugar.Stock)
	}

	sale, err := svc.GetSale(ctx, receipt.SaleID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if sale.TotalCents != 22600 || sale.Tender.PrimaryMethod != "cash" || sale.Tender.CashCents != 22600 {
		t.Fatalf("unexpected persisted sale: %+v", sale)
	}
	if sale.CashierName != "cashier" {
		t.Fatalf("expected cashier from actor, got %s", sale.CashierName)
	}
}

func TestCartSessionSplitTenderCheckout(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	sessionID, _, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if _, err := svc.AddCartItem(sessionID, "prd-teff-01"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if _, err := svc.SetCartTenderMode(sessionID, "split", ""); err != nil {
		t.Fatalf("select split failed: %v", err)
	}
	view, err := svc.SetCartSplitAmount(sessionID, "bank", "400.00")
	if err != nil {
		t.Fatalf("set split failed: %v", err)
	}
	if view.CanSubmit {
		t.Fatalf("partial split must block submission")
	}

	view, err = svc.PayCartRemainder(sessionID, "mobile")
	if err != nil {
		t.Fatalf("pay remainder failed: %v", err)
	}
	if view.SplitCents["mobile"] != 25000 {
		t.Fatalf("expected mobile remainder 25000, got %d", view.SplitCents["mobile"])
	}

	receipt, _, err := svc.SubmitCart(ctx, sessionID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	sale, err := svc.GetSale(ctx, receipt.SaleID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if sale.Tender.BankCents != 40000 || sale.Tender.MobileCents != 25000 || sale.Tender.PrimaryMethod != "bank" {
		t.Fatalf("unexpected tender breakdown: %+v", sale.Tender)
	}
}

func TestSubmitStaleSnapshotKeepsCart(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	sessionID, _, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if _, err := svc.AddCartItem(sessionID, "prd-oil-01"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// Stock drains behind the session's back.
	oil, err := repo.GetProductByID(ctx, "prd-oil-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	oil.Stock = 0
	if _, err := repo.UpdateProduct(ctx, *oil); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	_, view, err := svc.SubmitCart(ctx, sessionID)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ProductID != "prd-oil-01" {
		t.Fatalf("expected error naming prd-oil-01, got %v", err)
	}
	if len(view.Lines) != 1 || view.SubtotalCents != 89000 {
		t.Fatalf("expected cart kept after failure, got %+v", view)
	}
}

func TestAttachCustomerBringsLoyaltySuggestion(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	sessionID, _, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if _, err := svc.AddCartItem(sessionID, "prd-coffee-01"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	view, err := svc.AttachCartCustomer(ctx, sessionID, domain.CartCustomerRequest{CustomerID: "cus-0002"})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if view.SuggestedPercentage != 3 {
		t.Fatalf("expected silver suggestion 3, got %v", view.SuggestedPercentage)
	}
	if view.DiscountCents != 0 {
		t.Fatalf("suggestion must stay advisory, got discount %d", view.DiscountCents)
	}

	view, err = svc.ApplySuggestedCartDiscount(sessionID)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if view.DiscountCents != 1560 {
		t.Fatalf("expected 3%% of 52000 = 1560, got %d", view.DiscountCents)
	}

	if _, err := svc.AttachCartCustomer(ctx, sessionID, domain.CartCustomerRequest{CustomerID: "cus-missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown customer, got %v", err)
	}
}

func TestTierChangeSurfacesOnReceipt(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	sessionID, _, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if _, err := svc.AddCartItem(sessionID, "prd-teff-01"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	// Price override lifts the sale past the gold threshold for cus-0002.
	if _, err := svc.SetCartPrice(sessionID, "prd-teff-01", "13600.00"); err != nil {
		t.Fatalf("set price failed: %v", err)
	}
	if _, err := svc.AttachCartCustomer(ctx, sessionID, domain.CartCustomerRequest{CustomerID: "cus-0002"}); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	receipt, _, err := svc.SubmitCart(ctx, sessionID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if receipt.TierChange == nil {
		t.Fatalf("expected tier change on receipt")
	}
	if receipt.TierChange.OldTier != domain.TierSilver || receipt.TierChange.NewTier != domain.TierGold {
		t.Fatalf("expected silver->gold, got %+v", receipt.TierChange)
	}

	loyalty, err := svc.GetCustomerLoyalty(ctx, "cus-0002")
	if err != nil {
		t.Fatalf("loyalty lookup failed: %v", err)
	}
	if loyalty.Tier != domain.TierGold || loyalty.DiscountPercentage != 5 {
		t.Fatalf("expected gold tier persisted, got %+v", loyalty)
	}
}

func TestAddCartItemOutsideSnapshot(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	sessionID, _, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}

	// Piassa products are not in a Bole session's snapshot.
	if _, err := svc.AddCartItem(sessionID, "prd-pasta-01"); !errors.Is(err, checkout.ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestCloseCartSession(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	sessionID, _, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if err := svc.CloseCartSession(ctx, sessionID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := svc.CartView(sessionID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after close, got %v", err)
	}
	if err := svc.CloseCartSession(ctx, sessionID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double close, got %v", err)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	req := domain.ProductCreateRequest{
		BranchID:       "branch-bole",
		Name:           "Berbere 500g",
		Category:       "grocery",
		UnitPriceCents: 18000,
		InitialStock:   50,
	}

	if _, err := svc.CreateProduct(cashierCtx(), req); err == nil {
		t.Fatalf("expected cashier to be rejected")
	}

	created, err := svc.CreateProduct(adminCtx(), req)
	if err != nil {
		t.Fatalf("admin create failed: %v", err)
	}
	if created.ID == "" || !created.Active || created.Stock != 50 {
		t.Fatalf("unexpected created product: %+v", created)
	}
}

func TestUpdateProductPartialFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	newPrice := int64(70000)
	updated, err := svc.UpdateProduct(ctx, "prd-teff-01", domain.ProductUpdateRequest{UnitPriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.UnitPriceCents != 70000 || updated.Name != "Teff Flour 5kg" || updated.Stock != 40 {
		t.Fatalf("expected only price to change, got %+v", updated)
	}

	empty := ""
	if _, err := svc.UpdateProduct(ctx, "prd-teff-01", domain.ProductUpdateRequest{Name: &empty}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	if _, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{Description: "", AmountCents: 5000}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	created, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Generator fuel",
		AmountCents: 120000,
		Category:    "utilities",
	})
	if err != nil {
		t.Fatalf("create expense failed: %v", err)
	}
	if created.RecordedBy != "cashier" || created.BranchID != "branch-bole" {
		t.Fatalf("unexpected expense: %+v", created)
	}
}

func TestSaleWritesAuditTrail(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	sessionID, _, err := svc.OpenCartSession(ctx, "branch-bole")
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	if _, err := svc.AddCartItem(sessionID, "prd-soap-01"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, _, err := svc.SubmitCart(ctx, sessionID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "branch-bole", "", 100)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}

	var sawOpen, sawSale bool
	for _, entry := range logs {
		switch entry.Action {
		case "cart_open":
			sawOpen = true
		case "sale_complete":
			sawSale = true
			if entry.ActorUsername != "cashier" {
				t.Fatalf("expected actor on audit entry, got %+v", entry)
			}
		}
	}
	if !sawOpen || !sawSale {
		t.Fatalf("expected cart_open and sale_complete entries, got %+v", logs)
	}
}

type countingCache struct {
	items map[string][]domain.CatalogItem
	hits  int
	sets  int
}

func (c *countingCache) Get(_ context.Context, key string) ([]domain.CatalogItem, bool, error) {
	items, ok := c.items[key]
	if ok {
		c.hits++
	}
	return items, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, items []domain.CatalogItem, _ time.Duration) error {
	if c.items == nil {
		c.items = make(map[string][]domain.CatalogItem)
	}
	c.items[key] = items
	c.sets++
	return nil
}

func TestCatalogServedFromCache(t *testing.T) {
	repo := memory.NewSeeded()
	cc := &countingCache{}
	svc := New(repo, cc, "branch-bole", 5*time.Second)
	ctx := cashierCtx()

	first, err := svc.Catalog(ctx, "branch-bole", "", "")
	if err != nil {
		t.Fatalf("first catalog failed: %v", err)
	}
	second, err := svc.Catalog(ctx, "branch-bole", "", "")
	if err != nil {
		t.Fatalf("second catalog failed: %v", err)
	}
	if cc.sets != 1 || cc.hits != 1 {
		t.Fatalf("expected one set and one hit, got sets=%d hits=%d", cc.sets, cc.hits)
	}
	if len(first) != len(second) || len(first) == 0 {
		t.Fatalf("expected identical non-empty listings, got %d vs %d", len(first), len(second))
	}
}
