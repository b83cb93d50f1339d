package service

import (
	"errors"
	"fmt"
	"strings"

	"order-lifecycle/internal/store"
)

var (
	// ErrNotFound indicates the order or stock variant does not exist.
	ErrNotFound = errors.New("order: not found")
	// ErrForbidden indicates the requester lacks rights over the order.
	ErrForbidden = errors.New("order: forbidden")
	// ErrInvalidTransition indicates the status change is not in the lifecycle table.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrInvalidOperation indicates cancel/return was requested while not eligible.
	ErrInvalidOperation = errors.New("order: invalid operation")
	// ErrInsufficientStock indicates an adjustment would drive stock negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("order: invalid input")
	// ErrConflict indicates the order changed between read and conditional write.
	ErrConflict = errors.New("order: conflict")
	// ErrStockRestoration indicates compensating stock updates failed.
	ErrStockRestoration = errors.New("inventory: stock restoration failed")
)

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrInsufficientStock):
		return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
	case errors.Is(err, store.ErrStatusMismatch):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// Restoration outcomes for a single line item. A restoration error always
// rolls the transaction back, so no reported item has moved stock.
const (
	RestorationRolledBack = "rolled_back"
	RestorationFailed     = "failed"
	RestorationSkipped    = "skipped"
)

// ItemRestoration is the outcome of restoring one line item's stock
type ItemRestoration struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

// RestorationError reports per-item results of a failed compensation. The
// status change and every restoration ran in one transaction, so none of
// them were committed.
type RestorationError struct {
	OrderID string            `json:"order_id"`
	Items   []ItemRestoration `json:"items"`
	cause   error
}

func (e *RestorationError) Error() string {
	var failed []string
	for _, item := range e.Items {
		if item.Outcome == RestorationFailed {
			failed = append(failed, fmt.Sprintf("%s/%s: %s", item.ProductID, item.SKU, item.Error))
		}
	}
	return fmt.Sprintf("%s for order %s (%s); status change rolled back",
		ErrStockRestoration, e.OrderID, strings.Join(failed, "; "))
}

// Unwrap exposes both the restoration sentinel and the underlying cause
func (e *RestorationError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrStockRestoration}
	}
	return []error{ErrStockRestoration, e.cause}
}
