package booking

import (
	"context"

	"stationbook/internal/model"
)

// Repository stores reservations. Implementations return
// repository.ErrNotFound for unknown ids and may return
// repository.ErrSlotTaken from Create when they guard overlap themselves.
type Repository interface {
	ListByStationDate(ctx context.Context, stationID, date string) ([]*model.Reservation, error)
	Get(ctx context.Context, id string) (*model.Reservation, error)
	Create(ctx context.Context, r *model.Reservation) error
	Update(ctx context.Context, r *model.Reservation) error
}

// StationDirectory is the read-only station lookup.
type StationDirectory interface {
	Station(id string) (model.Station, bool)
	Stations() []model.Station
}

// Locker serializes the check-then-write sequence for one station day.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Publisher receives domain events after a successful mutation.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}
