package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"suqpos/backend/internal/cache"
	"suqpos/backend/internal/checkout"
	"suqpos/backend/internal/domain"
	"suqpos/backend/internal/store"
	"suqpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// session is one operator's open checkout: the engine plus the catalog
// snapshot it was opened against. Cart adds resolve product IDs against the
// snapshot, not the live catalog, so a session sees stable prices and stock
// ceilings until it closes.
type session struct {
	engine   *checkout.Engine
	snapshot map[string]domain.CatalogItem
	openedAt time.Time
}

type Service struct {
	repo            store.Repository
	catalogCache    cache.CatalogCache
	catalogTTL      time.Duration
	defaultBranchID string

	mu       sync.Mutex
	sessions map[string]*session
}

func New(repo store.Repository, catalogCache cache.CatalogCache, defaultBranchID string, catalogTTL time.Duration) *Service {
	if defaultBranchID == "" {
		defaultBranchID = "branch-bole"
	}
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = 30 * time.Second
	}

	return &Service{
		repo:            repo,
		catalogCache:    catalogCache,
		catalogTTL:      catalogTTL,
		defaultBranchID: defaultBranchID,
		sessions:        make(map[string]*session),
	}
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

// Catalog lists the sellable, in-stock items for a branch. Results are cached
// briefly per branch/category/search triple; a cache failure falls back to the
// repository with a warning rather than failing the request.
func (s *Service) Catalog(ctx context.Context, branchID string, category string, search string) ([]domain.CatalogItem, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}

	key := fmt.Sprintf("catalog:%s|%s|%s", branchID, strings.ToLower(strings.TrimSpace(category)), strings.ToLower(strings.TrimSpace(search)))
	if items, ok, err := s.catalogCache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: catalog cache get failed key=%s: %v", key, err)
	} else if ok {
		return items, nil
	}

	items, err := s.repo.ListCatalog(ctx, branchID, category, search)
	if err != nil {
		return nil, err
	}

	if err := s.catalogCache.Set(ctx, key, items, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache set failed key=%s: %v", key, err)
	}
	return items, nil
}

func (s *Service) ListProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, branchID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.UnitPriceCents < 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		BranchID:       req.BranchID,
		Name:           req.Name,
		Category:       req.Category,
		UnitPriceCents: req.UnitPriceCents,
		Stock:          req.InitialStock,
		Active:         true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, created.BranchID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.UnitPriceCents, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	if strings.TrimSpace(id) == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.UnitPriceCents != nil {
		if *req.UnitPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.UnitPriceCents = *req.UnitPriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, saved.BranchID, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d,stock=%d", saved.Active, saved.UnitPriceCents, saved.Stock))
	return *saved, nil
}

// Cart session lifecycle. Each open session owns one checkout engine keyed by
// a generated session ID; every mutation returns the rebuilt view.

func (s *Service) OpenCartSession(ctx context.Context, branchID string) (string, checkout.View, error) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "", checkout.View{}, fmt.Errorf("authenticated operator required")
	}

	items, err := s.Catalog(ctx, branchID, "", "")
	if err != nil {
		return "", checkout.View{}, err
	}
	snapshot := make(map[string]domain.CatalogItem, len(items))
	for _, item := range items {
		snapshot[item.ProductID] = item
	}

	sessionID := xid.New("cart")
	sess := &session{
		engine:   checkout.NewEngine(branchID, actor.Username, s),
		snapshot: snapshot,
		openedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	s.logAudit(ctx, branchID, "cart_open", "cart_session", sessionID, fmt.Sprintf("catalog_items=%d", len(snapshot)))
	return sessionID, sess.engine.View(), nil
}

func (s *Service) CloseCartSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}

	s.logAudit(ctx, sess.engine.BranchID(), "cart_close", "cart_session", sessionID, "closed")
	return nil
}

func (s *Service) lookupSession(sessionID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

func (s *Service) CartView(sessionID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	return sess.engine.View(), nil
}

func (s *Service) AddCartItem(sessionID string, productID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	item, ok := sess.snapshot[productID]
	if !ok {
		return checkout.View{}, checkout.ErrUnknownProduct
	}
	if err := sess.engine.AddProduct(item); err != nil {
		return sess.engine.View(), err
	}
	return sess.engine.View(), nil
}

func (s *Service) ChangeCartQuantity(sessionID string, productID string, delta int) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	if err := sess.engine.ChangeQuantity(productID, delta); err != nil {
		return sess.engine.View(), err
	}
	return sess.engine.View(), nil
}

func (s *Service) SetCartPrice(sessionID string, productID string, rawInput string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	if err := sess.engine.SetPrice(productID, rawInput); err != nil {
		return sess.engine.View(), err
	}
	return sess.engine.View(), nil
}

func (s *Service) FinalizeCartPrice(sessionID string, productID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	if err := sess.engine.FinalizePrice(productID); err != nil {
		return sess.engine.View(), err
	}
	return sess.engine.View(), nil
}

func (s *Service) RemoveCartItem(sessionID string, productID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	sess.engine.RemoveLine(productID)
	return sess.engine.View(), nil
}

func (s *Service) ClearCart(sessionID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	sess.engine.ClearCart()
	return sess.engine.View(), nil
}

func (s *Service) SetCartDiscount(sessionID string, rawAmount string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	var cents int64
	if strings.TrimSpace(rawAmount) != "" {
		cents, err = checkout.ParseAmountCents(rawAmount)
		if err != nil {
			return sess.engine.View(), err
		}
	}
	if err := sess.engine.SetFlatDiscount(cents); err != nil {
		return sess.engine.View(), err
	}
	return sess.engine.View(), nil
}

func (s *Service) ApplySuggestedCartDiscount(sessionID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	sess.engine.ApplySuggestedDiscount()
	return sess.engine.View(), nil
}

// AttachCartCustomer binds a customer to the open sale. An existing customer
// brings their loyalty tier's suggested percentage along; a walk-in name/phone
// pair carries no suggestion and is resolved at commit time.
func (s *Service) AttachCartCustomer(ctx context.Context, sessionID string, req domain.CartCustomerRequest) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}

	ref := domain.CustomerRef{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Name:       strings.TrimSpace(req.Name),
		Phone:      strings.TrimSpace(req.Phone),
	}
	if ref.IsZero() {
		return sess.engine.View(), store.ErrInvalidInput
	}

	var suggestedPct float64
	if ref.CustomerID != "" {
		loyalty, err := s.repo.GetCustomerLoyalty(ctx, ref.CustomerID)
		if err != nil {
			return sess.engine.View(), err
		}
		suggestedPct = loyalty.DiscountPercentage
	}

	sess.engine.AttachCustomer(ref, suggestedPct)
	return sess.engine.View(), nil
}

func (s *Service) DetachCartCustomer(sessionID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	sess.engine.DetachCustomer()
	return sess.engine.View(), nil
}

func (s *Service) SetCartTenderMode(sessionID string, mode string, method string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}

	switch checkout.Mode(mode) {
	case checkout.ModeSingle:
		if method == "" {
			method = string(checkout.MethodCash)
		}
		parsed, err := checkout.ParseMethod(method)
		if err != nil {
			return sess.engine.View(), err
		}
		if err := sess.engine.SelectSingleTender(parsed); err != nil {
			return sess.engine.View(), err
		}
	case checkout.ModeSplit:
		sess.engine.SelectSplitTender()
	default:
		return sess.engine.View(), fmt.Errorf("%w: unsupported tender mode %q", store.ErrInvalidInput, mode)
	}
	return sess.engine.View(), nil
}

func (s *Service) SetCartSplitAmount(sessionID string, method string, rawAmount string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	parsed, err := checkout.ParseMethod(method)
	if err != nil {
		return sess.engine.View(), err
	}
	cents, err := checkout.ParseAmountCents(rawAmount)
	if err != nil {
		return sess.engine.View(), err
	}
	if err := sess.engine.SetSplitAmount(parsed, cents); err != nil {
		return sess.engine.View(), err
	}
	return sess.engine.View(), nil
}

func (s *Service) PayCartRemainder(sessionID string, method string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	parsed, err := checkout.ParseMethod(method)
	if err != nil {
		return sess.engine.View(), err
	}
	if err := sess.engine.PayRemainder(parsed); err != nil {
		return sess.engine.View(), err
	}
	return sess.engine.View(), nil
}

func (s *Service) ClearCartTender(sessionID string) (checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return checkout.View{}, err
	}
	sess.engine.ClearTender()
	return sess.engine.View(), nil
}

// SubmitCart commits the session's sale. On success the engine has already
// reset itself and the session stays open for the next sale.
func (s *Service) SubmitCart(ctx context.Context, sessionID string) (domain.SaleReceipt, checkout.View, error) {
	sess, err := s.lookupSession(sessionID)
	if err != nil {
		return domain.SaleReceipt{}, checkout.View{}, err
	}
	receipt, err := sess.engine.Submit(ctx)
	if err != nil {
		return domain.SaleReceipt{}, sess.engine.View(), err
	}
	return receipt, sess.engine.View(), nil
}

// CompleteSale satisfies checkout.SaleSink: the repository commit plus the
// audit trail entry for the finished sale.
func (s *Service) CompleteSale(ctx context.Context, draft domain.SaleDraft) (domain.SaleReceipt, error) {
	receipt, err := s.repo.CompleteSale(ctx, draft)
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	s.logAudit(ctx, draft.BranchID, "sale_complete", "sale", receipt.SaleID,
		fmt.Sprintf("total=%d,discount=%d,method=%s", draft.TotalCents, draft.DiscountCents, draft.Tender.PrimaryMethod))
	if receipt.TierChange != nil {
		s.logAudit(ctx, draft.BranchID, "tier_change", "customer", receipt.TierChange.CustomerID,
			fmt.Sprintf("%s->%s", receipt.TierChange.OldTier, receipt.TierChange.NewTier))
	}
	return *receipt, nil
}

func (s *Service) ListSales(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, branchID, from, to, limit)
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.repo.GetSaleByID(ctx, id)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Expense{}, fmt.Errorf("authenticated operator required")
	}

	if req.BranchID == "" {
		req.BranchID = s.defaultBranchID
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" || req.AmountCents < 1 {
		return domain.Expense{}, store.ErrInvalidInput
	}

	spentAt := time.Now().UTC()
	if req.SpentAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.SpentAt)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("%w: spent_at must be RFC3339", store.ErrInvalidInput)
		}
		spentAt = parsed.UTC()
	}

	expense := domain.Expense{
		BranchID:    req.BranchID,
		Description: req.Description,
		AmountCents: req.AmountCents,
		Category:    strings.TrimSpace(req.Category),
		SpentAt:     spentAt,
		RecordedBy:  actor.Username,
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, created.BranchID, "expense_create", "expense", created.ID, fmt.Sprintf("amount=%d,category=%s", created.AmountCents, created.Category))
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, branchID, from, to, limit)
}

func (s *Service) ListCustomers(ctx context.Context, search string, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, search, limit)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.repo.GetCustomerByID(ctx, id)
}

func (s *Service) GetCustomerLoyalty(ctx context.Context, customerID string) (*domain.CustomerLoyalty, error) {
	return s.repo.GetCustomerLoyalty(ctx, customerID)
}

func (s *Service) ListAuditLogs(ctx context.Context, branchID string, date string, limit int) ([]domain.AuditLog, error) {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	if limit < 1 || limit > 500 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, branchID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, branchID string, action string, entityType string, entityID string, detail string) {
	if branchID == "" {
		branchID = s.defaultBranchID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		BranchID:      branchID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
