package redisclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStockKey(t *testing.T) {
	assert.Equal(t, "inventory:p-1:A-RED-M", stockKey("p-1", "A-RED-M"))
}
