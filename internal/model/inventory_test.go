package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovementDirection(t *testing.T) {
	cases := []struct {
		kind string
		dir  int
	}{
		{MovementIncoming, +1},
		{MovementOutgoing, -1},
		{MovementAdjustment, 0},
		{MovementTransfer, -1},
		{MovementRepackIn, +1},
		{MovementRepackOut, -1},
		{MovementSampling, -1},
		{MovementWaste, -1},
		{MovementReturn, +1},
	}
	for _, tc := range cases {
		dir, ok := MovementDirection(tc.kind)
		assert.True(t, ok, tc.kind)
		assert.Equal(t, tc.dir, dir, tc.kind)
	}

	_, ok := MovementDirection("teleport")
	assert.False(t, ok)
}

func TestStockMovementConsistent(t *testing.T) {
	cases := []struct {
		name     string
		movement StockMovement
		want     bool
	}{
		{
			name:     "incoming adds",
			movement: StockMovement{MovementType: MovementIncoming, Quantity: 5, PreviousStock: 10, NewStock: 15},
			want:     true,
		},
		{
			name:     "outgoing subtracts",
			movement: StockMovement{MovementType: MovementOutgoing, Quantity: 3, PreviousStock: 10, NewStock: 7},
			want:     true,
		},
		{
			name:     "adjustment sets absolute",
			movement: StockMovement{MovementType: MovementAdjustment, Quantity: 12.5, PreviousStock: 10, NewStock: 12.5},
			want:     true,
		},
		{
			name:     "sampling in fractional grams",
			movement: StockMovement{MovementType: MovementSampling, Quantity: 0.025, PreviousStock: 1.5, NewStock: 1.475},
			want:     true,
		},
		{
			name:     "levels disagree with quantity",
			movement: StockMovement{MovementType: MovementIncoming, Quantity: 5, PreviousStock: 10, NewStock: 14},
			want:     false,
		},
		{
			name:     "negative quantity",
			movement: StockMovement{MovementType: MovementOutgoing, Quantity: -3, PreviousStock: 10, NewStock: 13},
			want:     false,
		},
		{
			name:     "unknown kind",
			movement: StockMovement{MovementType: "teleport", Quantity: 1, PreviousStock: 1, NewStock: 2},
			want:     false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.movement.Consistent())
		})
	}
}

func TestInventoryItemInvariants(t *testing.T) {
	item := InventoryItem{CurrentStock: 10, ReservedStock: 2}
	assert.True(t, item.CheckInvariants())
	assert.Equal(t, 8.0, item.Available())

	item.ReservedStock = 11
	assert.False(t, item.CheckInvariants())

	item.ReservedStock = -1
	assert.False(t, item.CheckInvariants())

	item = InventoryItem{CurrentStock: -0.5}
	assert.False(t, item.CheckInvariants())

	// Zero stock with zero reserved is a valid resting state.
	item = InventoryItem{}
	assert.True(t, item.CheckInvariants())
	assert.Equal(t, 0.0, item.Available())
}
