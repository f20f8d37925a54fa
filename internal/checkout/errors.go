package checkout

import "errors"

// Every rejected mutation is observable by the caller through one of these
// sentinels. Remote submission failures pass through untouched from the
// persistence boundary.
var (
	ErrStockExceeded     = errors.New("stock exceeded")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownProduct    = errors.New("product not in cart")
	ErrCartEmpty         = errors.New("cart is empty")
	ErrPriceUnresolved   = errors.New("line price unresolved")
	ErrPaymentIncomplete = errors.New("payment incomplete")
	ErrSubmitInFlight    = errors.New("submission already in flight")
)
