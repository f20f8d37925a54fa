package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"suqpos/backend/internal/domain"
	"suqpos/backend/internal/store"
	"suqpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM branches
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (s *Store) ListCatalog(ctx context.Context, branchID string, category string, search string) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_price_cents, stock
		FROM products
		WHERE branch_id = $1 AND active = true AND stock > 0
		  AND ($2 = '' OR lower(category) = lower($2))
		  AND ($3 = '' OR name ILIKE '%' || $3 || '%')
		ORDER BY name
	`, branchID, strings.TrimSpace(category), strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0, 128)
	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.UnitPriceCents, &item.AvailableStock); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, name, category, unit_price_cents, stock, active, created_at
		FROM products
		WHERE $1 = '' OR branch_id = $1
		ORDER BY category, name
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BranchID, &p.Name, &p.Category, &p.UnitPriceCents, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.BranchID == "" || product.Name == "" || product.UnitPriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, branch_id, name, category, unit_price_cents, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, product.ID, product.BranchID, product.Name, product.Category, product.UnitPriceCents, product.Stock, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, name, category, unit_price_cents, stock, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.BranchID, &p.Name, &p.Category, &p.UnitPriceCents, &p.Stock, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.UnitPriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit_price_cents = $4, stock = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.UnitPriceCents, product.Stock, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

// CompleteSale commits a checkout payload in one serializable transaction:
// row-locked stock re-check and decrement, sale and line rows, customer
// resolution and tier recompute. Stock that went stale since the catalog
// snapshot surfaces as InsufficientStockError naming the product.
func (s *Store) CompleteSale(ctx context.Context, draft domain.SaleDraft) (*domain.SaleReceipt, error) {
	if len(draft.Lines) == 0 || draft.TotalCents < 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range draft.Lines {
		var name string
		var stock int
		err := tx.QueryRowContext(ctx, `
			SELECT name, stock
			FROM products
			WHERE id = $1 AND active = true
			FOR UPDATE
		`, line.ProductID).Scan(&name, &stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if stock < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: line.ProductID,
				Name:      name,
				Requested: line.Quantity,
				Available: stock,
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
		`, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
	}

	var (
		customerID sql.NullString
		tierChange *domain.TierChange
	)
	if !draft.Customer.IsZero() {
		resolvedID, change, err := resolveCustomerTx(ctx, tx, draft.Customer, draft.TotalCents)
		if err != nil {
			return nil, err
		}
		customerID = sql.NullString{String: resolvedID, Valid: true}
		tierChange = change
	}

	saleID := xid.New("sale")
	createdAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, branch_id, cashier_name, customer_id, subtotal_cents, discount_cents, total_cents,
			primary_method, cash_cents, bank_cents, mobile_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, saleID, draft.BranchID, draft.CashierUsername, customerID, draft.SubtotalCents, draft.DiscountCents,
		draft.TotalCents, draft.Tender.PrimaryMethod, draft.Tender.CashCents, draft.Tender.BankCents,
		draft.Tender.MobileCents, createdAt)
	if err != nil {
		return nil, err
	}

	for _, line := range draft.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("sli"), saleID, line.ProductID, line.Name, line.Quantity, line.UnitPriceCents, line.LineTotalCents); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	receipt := &domain.SaleReceipt{SaleID: saleID, TierChange: tierChange, CreatedAt: createdAt}
	if customerID.Valid {
		receipt.CustomerID = customerID.String
	}
	return receipt, nil
}

func resolveCustomerTx(ctx context.Context, tx *sql.Tx, ref domain.CustomerRef, totalCents int64) (string, *domain.TierChange, error) {
	var (
		id    string
		total int64
		tier  string
	)

	lookup := func(query string, arg any) error {
		return tx.QueryRowContext(ctx, query, arg).Scan(&id, &total, &tier)
	}

	var err error
	switch {
	case ref.CustomerID != "":
		err = lookup(`SELECT id, total_purchased_cents, tier FROM customers WHERE id = $1 FOR UPDATE`, ref.CustomerID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, store.ErrNotFound
		}
	case strings.TrimSpace(ref.Phone) != "":
		err = lookup(`SELECT id, total_purchased_cents, tier FROM customers WHERE phone = $1 FOR UPDATE`, strings.TrimSpace(ref.Phone))
	default:
		err = sql.ErrNoRows
	}

	if errors.Is(err, sql.ErrNoRows) {
		name := strings.TrimSpace(ref.Name)
		phone := strings.TrimSpace(ref.Phone)
		if name == "" && phone == "" {
			return "", nil, store.ErrInvalidInput
		}
		id = xid.New("cus")
		total = 0
		tier = domain.TierRegular
		if _, insErr := tx.ExecContext(ctx, `
			INSERT INTO customers (id, name, phone, total_purchased_cents, tier, created_at)
			VALUES ($1,$2,$3,0,$4,now())
		`, id, name, phone, tier); insErr != nil {
			return "", nil, insErr
		}
	} else if err != nil {
		return "", nil, err
	}

	newTotal := total + totalCents
	newTier := tierFor(newTotal)
	if _, err := tx.ExecContext(ctx, `
		UPDATE customers SET total_purchased_cents = $2, tier = $3 WHERE id = $1
	`, id, newTotal, newTier); err != nil {
		return "", nil, err
	}

	var change *domain.TierChange
	if newTier != tier {
		change = &domain.TierChange{CustomerID: id, OldTier: tier, NewTier: newTier}
	}
	return id, change, nil
}

func (s *Store) ListSales(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, cashier_name, COALESCE(customer_id, ''), subtotal_cents, discount_cents, total_cents,
			primary_method, cash_cents, bank_cents, mobile_cents, created_at
		FROM sales
		WHERE ($1 = '' OR branch_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.BranchID, &sale.CashierName, &sale.CustomerID, &sale.SubtotalCents,
			&sale.DiscountCents, &sale.TotalCents, &sale.Tender.PrimaryMethod, &sale.Tender.CashCents,
			&sale.Tender.BankCents, &sale.Tender.MobileCents, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		lines, err := s.saleLines(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Lines = lines
	}
	return sales, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, cashier_name, COALESCE(customer_id, ''), subtotal_cents, discount_cents, total_cents,
			primary_method, cash_cents, bank_cents, mobile_cents, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.BranchID, &sale.CashierName, &sale.CustomerID, &sale.SubtotalCents,
		&sale.DiscountCents, &sale.TotalCents, &sale.Tender.PrimaryMethod, &sale.Tender.CashCents,
		&sale.Tender.BankCents, &sale.Tender.MobileCents, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	lines, err := s.saleLines(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) saleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, qty, unit_price_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.UnitPriceCents, &line.LineTotalCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.BranchID == "" || expense.Description == "" || expense.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.SpentAt.IsZero() {
		expense.SpentAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, branch_id, description, amount_cents, category, spent_at, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.BranchID, expense.Description, expense.AmountCents, expense.Category, expense.SpentAt, expense.RecordedBy)
	if err != nil {
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.Expense, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, description, amount_cents, category, spent_at, recorded_by
		FROM expenses
		WHERE ($1 = '' OR branch_id = $1) AND spent_at >= $2 AND spent_at < $3
		ORDER BY spent_at DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, limit)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.BranchID, &e.Description, &e.AmountCents, &e.Category, &e.SpentAt, &e.RecordedBy); err != nil {
			return nil, err
		}
		e.SpentAt = e.SpentAt.UTC()
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) ListCustomers(ctx context.Context, search string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, total_purchased_cents, tier, created_at
		FROM customers
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, strings.TrimSpace(search), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.TotalPurchasedCents, &c.Tier, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, total_purchased_cents, tier, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.TotalPurchasedCents, &c.Tier, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) GetCustomerLoyalty(ctx context.Context, customerID string) (*domain.CustomerLoyalty, error) {
	customer, err := s.GetCustomerByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &domain.CustomerLoyalty{
		CustomerID:         customer.ID,
		Tier:               customer.Tier,
		DiscountPercentage: discountForTier(customer.Tier),
	}, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.BranchID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, branchID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR branch_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, branchID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
