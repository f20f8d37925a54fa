package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"suqpos/backend/internal/domain"
	"suqpos/backend/internal/store"
	"suqpos/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	branches      map[string]domain.Branch
	products      map[string]domain.Product
	customersByID map[string]domain.Customer
	salesByID     map[string]domain.Sale
	expensesByID  map[string]domain.Expense
	auditLogs     []domain.AuditLog
	usersByName   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. The memory store is
// never used when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	branches := map[string]domain.Branch{
		"branch-bole":    {ID: "branch-bole", Name: "Bole"},
		"branch-piassa":  {ID: "branch-piassa", Name: "Piassa"},
		"branch-merkato": {ID: "branch-merkato", Name: "Merkato"},
	}

	products := []domain.Product{
		{ID: "prd-teff-01", BranchID: "branch-bole", Name: "Teff Flour 5kg", Category: "grocery", UnitPriceCents: 65000, Stock: 40, Active: true, CreatedAt: now},
		{ID: "prd-oil-01", BranchID: "branch-bole", Name: "Sunflower Oil 3L", Category: "grocery", UnitPriceCents: 89000, Stock: 25, Active: true, CreatedAt: now},
		{ID: "prd-coffee-01", BranchID: "branch-bole", Name: "Roasted Coffee 1kg", Category: "beverage", UnitPriceCents: 52000, Stock: 60, Active: true, CreatedAt: now},
		{ID: "prd-sugar-01", BranchID: "branch-bole", Name: "Sugar 1kg", Category: "grocery", UnitPriceCents: 9800, Stock: 120, Active: true, CreatedAt: now},
		{ID: "prd-soap-01", BranchID: "branch-bole", Name: "Laundry Soap Bar", Category: "household", UnitPriceCents: 4500, Stock: 200, Active: true, CreatedAt: now},
		{ID: "prd-water-01", BranchID: "branch-bole", Name: "Mineral Water 2L", Category: "beverage", UnitPriceCents: 3000, Stock: 150, Active: true, CreatedAt: now},
		{ID: "prd-pasta-01", BranchID: "branch-piassa", Name: "Pasta 500g", Category: "grocery", UnitPriceCents: 7200, Stock: 90, Active: true, CreatedAt: now},
		{ID: "prd-rice-01", BranchID: "branch-piassa", Name: "Rice 5kg", Category: "grocery", UnitPriceCents: 74000, Stock: 30, Active: true, CreatedAt: now},
		{ID: "prd-candle-01", BranchID: "branch-merkato", Name: "Candle Pack", Category: "household", UnitPriceCents: 2500, Stock: 0, Active: true, CreatedAt: now},
	}
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	customers := map[string]domain.Customer{
		"cus-0001": {ID: "cus-0001", Name: "Hana Tesfaye", Phone: "+251911000001", TotalPurchasedCents: 2150000, Tier: domain.TierGold, CreatedAt: now},
		"cus-0002": {ID: "cus-0002", Name: "Dawit Bekele", Phone: "+251911000002", TotalPurchasedCents: 640000, Tier: domain.TierSilver, CreatedAt: now},
		"cus-0003": {ID: "cus-0003", Name: "Selam Abebe", Phone: "+251911000003", TotalPurchasedCents: 98000, Tier: domain.TierRegular, CreatedAt: now},
	}

	return &Store{
		branches:      branches,
		products:      productMap,
		customersByID: customers,
		salesByID:     make(map[string]domain.Sale),
		expensesByID:  make(map[string]domain.Expense),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		usersByName:   seedUsers(),
	}
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return strings.Compare(a.Name, b.Name)
	})
	return branches, nil
}

// ListCatalog returns the in-stock snapshot a checkout session opens with.
func (s *Store) ListCatalog(_ context.Context, branchID string, category string, search string) ([]domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	category = strings.ToLower(strings.TrimSpace(category))

	items := make([]domain.CatalogItem, 0, len(s.products))
	for _, p := range s.products {
		if p.BranchID != branchID || !p.Active || p.Stock < 1 {
			continue
		}
		if category != "" && strings.ToLower(p.Category) != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		items = append(items, domain.CatalogItem{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.UnitPriceCents,
			AvailableStock: p.Stock,
		})
	}
	slices.SortFunc(items, func(a, b domain.CatalogItem) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) ListProducts(_ context.Context, branchID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.products[product.ID] = product
	saved := product
	return &saved, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := p
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	saved := product
	return &saved, nil
}

// CompleteSale is the atomic commit: stock re-check and decrement per line,
// sale record, customer resolution and tier recompute. A stale snapshot shows
// up here as InsufficientStockError naming the offending product.
func (s *Store) CompleteSale(_ context.Context, draft domain.SaleDraft) (*domain.SaleReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(draft.Lines) == 0 || draft.TotalCents < 0 {
		return nil, store.ErrInvalidInput
	}

	for _, line := range draft.Lines {
		p, exists := s.products[line.ProductID]
		if !exists || !p.Active {
			return nil, store.ErrNotFound
		}
		if p.Stock < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: line.ProductID,
				Name:      p.Name,
				Requested: line.Quantity,
				Available: p.Stock,
			}
		}
	}

	var (
		customerID string
		tierChange *domain.TierChange
	)
	if !draft.Customer.IsZero() {
		customer, err := s.resolveCustomerLocked(draft.Customer)
		if err != nil {
			return nil, err
		}
		oldTier := customer.Tier
		customer.TotalPurchasedCents += draft.TotalCents
		customer.Tier = tierFor(customer.TotalPurchasedCents)
		s.customersByID[customer.ID] = *customer
		customerID = customer.ID
		if customer.Tier != oldTier {
			tierChange = &domain.TierChange{CustomerID: customer.ID, OldTier: oldTier, NewTier: customer.Tier}
		}
	}

	for _, line := range draft.Lines {
		p := s.products[line.ProductID]
		p.Stock -= line.Quantity
		s.products[line.ProductID] = p
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:            xid.New("sale"),
		BranchID:      draft.BranchID,
		CashierName:   draft.CashierUsername,
		CustomerID:    customerID,
		SubtotalCents: draft.SubtotalCents,
		DiscountCents: draft.DiscountCents,
		TotalCents:    draft.TotalCents,
		Tender:        draft.Tender,
		Lines:         append([]domain.SaleLine(nil), draft.Lines...),
		CreatedAt:     now,
	}
	s.salesByID[sale.ID] = sale

	return &domain.SaleReceipt{
		SaleID:     sale.ID,
		CustomerID: customerID,
		TierChange: tierChange,
		CreatedAt:  now,
	}, nil
}

func (s *Store) resolveCustomerLocked(ref domain.CustomerRef) (*domain.Customer, error) {
	if ref.CustomerID != "" {
		c, exists := s.customersByID[ref.CustomerID]
		if !exists {
			return nil, store.ErrNotFound
		}
		found := c
		return &found, nil
	}

	phone := strings.TrimSpace(ref.Phone)
	if phone != "" {
		for _, c := range s.customersByID {
			if c.Phone == phone {
				found := c
				return &found, nil
			}
		}
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" && phone == "" {
		return nil, store.ErrInvalidInput
	}

	created := domain.Customer{
		ID:        xid.New("cus"),
		Name:      name,
		Phone:     phone,
		Tier:      domain.TierRegular,
		CreatedAt: time.Now().UTC(),
	}
	s.customersByID[created.ID] = created
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := sale
	return &found, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	s.expensesByID[expense.ID] = expense
	saved := expense
	return &saved, nil
}

func (s *Store) ListExpenses(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, limit)
	for _, e := range s.expensesByID {
		if branchID != "" && e.BranchID != branchID {
			continue
		}
		if e.SpentAt.Before(from) || !e.SpentAt.Before(to) {
			continue
		}
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		return b.SpentAt.Compare(a.SpentAt)
	})
	if limit > 0 && len(expenses) > limit {
		expenses = expenses[:limit]
	}
	return expenses, nil
}

func (s *Store) ListCustomers(_ context.Context, search string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	customers := make([]domain.Customer, 0, limit)
	for _, c := range s.customersByID {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(c.Phone, search) {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := c
	return &found, nil
}

func (s *Store) GetCustomerLoyalty(_ context.Context, customerID string) (*domain.CustomerLoyalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &domain.CustomerLoyalty{
		CustomerID:         c.ID,
		Tier:               c.Tier,
		DiscountPercentage: discountForTier(c.Tier),
	}, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByName[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByName[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, u := range s.usersByName {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.usersByName[username]
	if !exists {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByName[username] = u
	return nil
}

// Loyalty tier thresholds on lifetime purchases, in cents.
const (
	silverThresholdCents = 500000
	goldThresholdCents   = 2000000
)

func tierFor(totalPurchasedCents int64) string {
	switch {
	case totalPurchasedCents >= goldThresholdCents:
		return domain.TierGold
	case totalPurchasedCents >= silverThresholdCents:
		return domain.TierSilver
	default:
		return domain.TierRegular
	}
}

func discountForTier(tier string) float64 {
	switch tier {
	case domain.TierGold:
		return 5
	case domain.TierSilver:
		return 3
	default:
		return 0
	}
}
