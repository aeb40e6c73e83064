package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusCancelled ReservationStatus = "CANCELLED"
)

// Customer holds the contact fields captured at booking time.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	Note  string `json:"note,omitempty"`
}

// LineItem is a food/drink order attached to a running reservation.
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// TimeRange is a half-open [Start, End) window on one day, "HH:MM" formatted.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Reservation is a booked window on one station.
// StationName and TotalPrice are snapshots taken at the last mutation and are
// never recomputed from the station directory.
type Reservation struct {
	ID              string            `json:"id"`
	StationID       string            `json:"station_id"`
	StationName     string            `json:"station_name"`
	Date            string            `json:"date"`       // YYYY-MM-DD
	StartTime       string            `json:"start_time"` // HH:MM
	EndTime         string            `json:"end_time"`   // HH:MM
	DurationHours   float64           `json:"duration_hours"`
	TotalPrice      int64             `json:"total_price"`
	Status          ReservationStatus `json:"status"`
	Customer        Customer          `json:"customer"`
	GameSelections  []string          `json:"game_selections"`
	SecondaryOrders []LineItem        `json:"secondary_orders"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// BlocksSlot reports whether the reservation takes part in overlap checks.
func (r *Reservation) BlocksSlot() bool {
	return r.Status != StatusCancelled
}

// Range returns the reservation's window.
func (r *Reservation) Range() TimeRange {
	return TimeRange{Start: r.StartTime, End: r.EndTime}
}

// SecondaryTotal sums the attached line items.
func (r *Reservation) SecondaryTotal() int64 {
	var total int64
	for _, it := range r.SecondaryOrders {
		total += it.UnitPrice * int64(it.Quantity)
	}
	return total
}

// Clone returns a deep copy so callers cannot mutate repository state.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	c := *r
	c.GameSelections = append([]string(nil), r.GameSelections...)
	c.SecondaryOrders = append([]LineItem(nil), r.SecondaryOrders...)
	return &c
}
