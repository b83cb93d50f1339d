package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-lifecycle/internal/models"
	"order-lifecycle/internal/util"

	"go.uber.org/zap"
)

// InventoryAdjuster applies stock deltas to product variants and mirrors
// committed stock levels into the cache.
type InventoryAdjuster struct {
	stock  StockRepository
	cache  StockCache
	logger *zap.Logger
}

// NewInventoryAdjuster creates a new inventory adjuster; cache may be nil
func NewInventoryAdjuster(stock StockRepository, cache StockCache) *InventoryAdjuster {
	return &InventoryAdjuster{
		stock:  stock,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// AdjustStock adds delta (which may be negative) to a variant's stock and
// returns the new stock level. It fails with ErrInsufficientStock when the
// result would be negative and ErrNotFound when the variant is missing.
func (ia *InventoryAdjuster) AdjustStock(ctx context.Context, productID, sku string, delta int) (int, error) {
	stock, err := ia.adjust(ctx, productID, sku, delta)
	if err != nil {
		return 0, err
	}
	ia.MirrorStock(ctx, []models.StockMovement{{ProductID: productID, SKU: sku, Quantity: delta, NewStock: stock}})
	return stock, nil
}

// adjust runs the store update without touching the cache, so it is safe to
// call inside a transaction that may still roll back.
func (ia *InventoryAdjuster) adjust(ctx context.Context, productID, sku string, delta int) (stock int, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryAdjuster.AdjustStock")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.StockAdjustLatency.Observe(time.Since(start).Seconds())
	}()

	stock, err = ia.stock.AdjustStock(ctx, productID, sku, delta)
	if err != nil {
		err = mapStoreError(err)
		switch {
		case errors.Is(err, ErrInsufficientStock):
			util.StockAdjustmentsFailed.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, ErrNotFound):
			util.StockAdjustmentsFailed.WithLabelValues("not_found").Inc()
		default:
			util.StockAdjustmentsFailed.WithLabelValues("error").Inc()
			err = fmt.Errorf("failed to adjust stock for %s/%s: %w", productID, sku, err)
		}
		return 0, err
	}
	return stock, nil
}

// MirrorStock writes committed stock levels to the cache. Cache failures are
// logged; the database stays authoritative.
func (ia *InventoryAdjuster) MirrorStock(ctx context.Context, movements []models.StockMovement) {
	if ia.cache == nil {
		return
	}
	for _, m := range movements {
		if err := ia.cache.SetStock(ctx, m.ProductID, m.SKU, m.NewStock); err != nil {
			ia.logger.Warn("Failed to mirror stock",
				zap.String("product_id", m.ProductID),
				zap.String("sku", m.SKU),
				zap.Error(err))
		}
	}
}

// restoreItems adds every line item's quantity back to its variant. It stops
// at the first failure and reports the remaining items as skipped. Items
// adjusted before the failure are reported rolled back, since the caller's
// transaction undoes them.
func (ia *InventoryAdjuster) restoreItems(ctx context.Context, orderID string, items []models.OrderItem) ([]models.StockMovement, error) {
	movements := make([]models.StockMovement, 0, len(items))
	results := make([]ItemRestoration, len(items))
	var cause error

	for i, item := range items {
		results[i] = ItemRestoration{ProductID: item.ProductID, SKU: item.SKU, Quantity: item.Quantity}
		if cause != nil {
			results[i].Outcome = RestorationSkipped
			continue
		}

		stock, err := ia.adjust(ctx, item.ProductID, item.SKU, item.Quantity)
		if err != nil {
			cause = err
			results[i].Outcome = RestorationFailed
			results[i].Error = err.Error()
			continue
		}
		results[i].Outcome = RestorationRolledBack
		movements = append(movements, models.StockMovement{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			NewStock:  stock,
		})
	}

	if cause != nil {
		return nil, &RestorationError{OrderID: orderID, Items: results, cause: cause}
	}
	return movements, nil
}
