package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustStock(t *testing.T) {
	ms := newMemStore()
	cache := newMemCache()
	ms.setStock(productA, skuRedM, 5)
	ia := NewInventoryAdjuster(ms, cache)

	stock, err := ia.AdjustStock(context.Background(), productA, skuRedM, -3)
	require.NoError(t, err)
	assert.Equal(t, 2, stock)

	cached, ok := cache.get(productA, skuRedM)
	require.True(t, ok)
	assert.Equal(t, 2, cached)

	_, err = ia.AdjustStock(context.Background(), productA, skuRedM, -3)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, ms.stockOf(productA, skuRedM))

	_, err = ia.AdjustStock(context.Background(), productA, "NOPE", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustStockWrapsUnexpectedErrors(t *testing.T) {
	ms := newMemStore()
	ms.setStock(productA, skuRedM, 5)
	ms.failStock[stockKey(productA, skuRedM)] = errors.New("connection reset")
	ia := NewInventoryAdjuster(ms, nil)

	_, err := ia.AdjustStock(context.Background(), productA, skuRedM, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "connection reset")
}
