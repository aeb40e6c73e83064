package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservation_BlocksSlot(t *testing.T) {
	tests := []struct {
		status   ReservationStatus
		expected bool
	}{
		{StatusPending, true},
		{StatusConfirmed, true},
		{StatusCompleted, true},
		{StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			r := Reservation{Status: tt.status}
			assert.Equal(t, tt.expected, r.BlocksSlot())
		})
	}
}

func TestReservation_SecondaryTotal(t *testing.T) {
	r := Reservation{
		SecondaryOrders: []LineItem{
			{ProductID: "coke", Quantity: 2, UnitPrice: 15000},
			{ProductID: "noodles", Quantity: 1, UnitPrice: 30000},
		},
	}
	assert.Equal(t, int64(60000), r.SecondaryTotal())
	assert.Equal(t, int64(0), (&Reservation{}).SecondaryTotal())
}

func TestReservation_Clone(t *testing.T) {
	orig := &Reservation{
		ID:              "r1",
		GameSelections:  []string{"fifa"},
		SecondaryOrders: []LineItem{{ProductID: "coke", Quantity: 1}},
	}

	c := orig.Clone()
	c.GameSelections[0] = "tekken"
	c.SecondaryOrders[0].Quantity = 5

	assert.Equal(t, "fifa", orig.GameSelections[0])
	assert.Equal(t, 1, orig.SecondaryOrders[0].Quantity)
	assert.Nil(t, (*Reservation)(nil).Clone())
}

func TestStationStatus_IsValid(t *testing.T) {
	assert.True(t, StationAvailable.IsValid())
	assert.True(t, StationMaintenance.IsValid())
	assert.True(t, StationOccupied.IsValid())
	assert.False(t, StationStatus("BROKEN").IsValid())
}
