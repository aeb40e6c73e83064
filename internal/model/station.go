package model

// StationStatus is the advisory state of a station.
type StationStatus string

const (
	StationAvailable   StationStatus = "AVAILABLE"
	StationMaintenance StationStatus = "MAINTENANCE"
	StationOccupied    StationStatus = "OCCUPIED"
)

// Station is a bookable gaming setup with an hourly rate.
type Station struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	PricePerHour int64         `json:"price_per_hour"`
	Status       StationStatus `json:"status"`
	Capacity     int           `json:"capacity,omitempty"`
}

// IsValid reports whether s is one of the known statuses.
func (s StationStatus) IsValid() bool {
	switch s {
	case StationAvailable, StationMaintenance, StationOccupied:
		return true
	default:
		return false
	}
}
