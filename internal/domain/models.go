package domain

import "time"

// CatalogItem is the point-in-time view of a sellable product handed to a
// checkout session when it opens. The checkout engine never mutates it.
type CatalogItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AvailableStock int    `json:"available_stock"`
}

type Product struct {
	ID             string    `json:"id"`
	BranchID       string    `json:"branch_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Stock          int       `json:"stock"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	BranchID       string `json:"branch_id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	InitialStock   int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	UnitPriceCents *int64  `json:"unit_price_cents,omitempty"`
	Stock          *int    `json:"stock,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CustomerRef attaches a sale to a customer: either an existing record by ID
// or a transient name/phone pair resolved by the persistence layer at commit
// time. A zero CustomerRef means an anonymous sale.
type CustomerRef struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func (c CustomerRef) IsZero() bool {
	return c.CustomerID == "" && c.Name == "" && c.Phone == ""
}

type Customer struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Phone               string    `json:"phone"`
	TotalPurchasedCents int64     `json:"total_purchased_cents"`
	Tier                string    `json:"tier"`
	CreatedAt           time.Time `json:"created_at"`
}

// CustomerLoyalty is the advisory tier lookup offered to the discount
// resolver. The tier computation itself lives behind the persistence layer.
type CustomerLoyalty struct {
	CustomerID         string  `json:"customer_id"`
	Tier               string  `json:"tier"`
	DiscountPercentage float64 `json:"discount_percentage"`
}

// SaleLine is one finalized line of a sale payload.
type SaleLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// TenderBreakdown records how a sale total was paid across the three
// supported tender types plus the headline method shown on the record.
type TenderBreakdown struct {
	PrimaryMethod string `json:"primary_method"`
	CashCents     int64  `json:"cash_cents"`
	BankCents     int64  `json:"bank_cents"`
	MobileCents   int64  `json:"mobile_cents"`
}

// SaleDraft is the write-once checkout payload handed to the persistence
// boundary. It is assembled atomically and never mutated afterwards.
type SaleDraft struct {
	BranchID        string          `json:"branch_id"`
	CashierUsername string          `json:"cashier_username"`
	Lines           []SaleLine      `json:"lines"`
	SubtotalCents   int64           `json:"subtotal_cents"`
	DiscountCents   int64           `json:"discount_cents"`
	TotalCents      int64           `json:"total_cents"`
	Tender          TenderBreakdown `json:"tender"`
	Customer        CustomerRef     `json:"customer"`
}

// SaleReceipt is the persistence boundary's answer to a committed sale.
type SaleReceipt struct {
	SaleID     string      `json:"sale_id"`
	CustomerID string      `json:"customer_id,omitempty"`
	TierChange *TierChange `json:"tier_change,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// TierChange notifies the operator that the sale moved the customer to a new
// loyalty tier.
type TierChange struct {
	CustomerID string `json:"customer_id"`
	OldTier    string `json:"old_tier"`
	NewTier    string `json:"new_tier"`
}

type Sale struct {
	ID            string          `json:"id"`
	BranchID      string          `json:"branch_id"`
	CashierName   string          `json:"cashier_name"`
	CustomerID    string          `json:"customer_id,omitempty"`
	SubtotalCents int64           `json:"subtotal_cents"`
	DiscountCents int64           `json:"discount_cents"`
	TotalCents    int64           `json:"total_cents"`
	Tender        TenderBreakdown `json:"tender"`
	Lines         []SaleLine      `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Expense struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	SpentAt     time.Time `json:"spent_at"`
	RecordedBy  string    `json:"recorded_by"`
}

type ExpenseCreateRequest struct {
	BranchID    string `json:"branch_id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	SpentAt     string `json:"spent_at,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	BranchID      string    `json:"branch_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// HTTP request bodies for cart session operations.

type CartOpenRequest struct {
	BranchID string `json:"branch_id"`
}

type CartAddItemRequest struct {
	ProductID string `json:"product_id"`
}

type CartQuantityRequest struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

type CartPriceRequest struct {
	ProductID string `json:"product_id"`
	RawPrice  string `json:"raw_price"`
}

type CartRemoveItemRequest struct {
	ProductID string `json:"product_id"`
}

type CartDiscountRequest struct {
	RawAmount string `json:"raw_amount"`
}

type CartTenderModeRequest struct {
	Mode   string `json:"mode"`
	Method string `json:"method,omitempty"`
}

type CartSplitAmountRequest struct {
	Method    string `json:"method"`
	RawAmount string `json:"raw_amount"`
}

type CartPayRemainderRequest struct {
	Method string `json:"method"`
}

type CartCustomerRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

const (
	TierRegular = "regular"
	TierSilver  = "silver"
	TierGold    = "gold"
)
