package config

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// StationChange describes how one station differs between two loads of
// stations.yaml. Reservations keep their own snapshot of name and price, so
// these changes only affect bookings made after the reload.
type StationChange struct {
	ID        string
	Added     bool
	Removed   bool
	OldStatus string
	NewStatus string
	OldPrice  int64
	NewPrice  int64
}

// DiffStations lists added, removed and re-priced or re-statused stations,
// ordered by id.
func DiffStations(prev, next *StationsConfig) []StationChange {
	before := make(map[string]StationConfig)
	if prev != nil {
		for _, st := range prev.Stations {
			before[st.ID] = st
		}
	}
	after := make(map[string]StationConfig)
	if next != nil {
		for _, st := range next.Stations {
			after[st.ID] = st
		}
	}

	var changes []StationChange
	for id, n := range after {
		o, existed := before[id]
		switch {
		case !existed:
			changes = append(changes, StationChange{ID: id, Added: true, NewStatus: n.Status, NewPrice: n.PricePerHour})
		case o.Status != n.Status || o.PricePerHour != n.PricePerHour:
			changes = append(changes, StationChange{
				ID:        id,
				OldStatus: o.Status,
				NewStatus: n.Status,
				OldPrice:  o.PricePerHour,
				NewPrice:  n.PricePerHour,
			})
		}
	}
	for id, o := range before {
		if _, still := after[id]; !still {
			changes = append(changes, StationChange{ID: id, Removed: true, OldStatus: o.Status, OldPrice: o.PricePerHour})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes
}

func logStationChanges(logger *zerolog.Logger, changes []StationChange) {
	for _, c := range changes {
		switch {
		case c.Added:
			logger.Info().Str("station_id", c.ID).Str("status", c.NewStatus).Int64("price_per_hour", c.NewPrice).Msg("station added")
		case c.Removed:
			// existing reservations on it stay readable, new ones get STATION_NOT_FOUND
			logger.Warn().Str("station_id", c.ID).Msg("station removed")
		default:
			logger.Info().
				Str("station_id", c.ID).
				Str("old_status", c.OldStatus).
				Str("new_status", c.NewStatus).
				Int64("old_price_per_hour", c.OldPrice).
				Int64("new_price_per_hour", c.NewPrice).
				Msg("station updated")
		}
	}
}

// WatchStations loads stations.yaml, hands it to onUpdate, then polls the
// file's mtime and re-delivers every valid change. An invalid file is logged
// and the last good directory keeps serving.
func WatchStations(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*StationsConfig)) error {
	if path == "" {
		path = "configs/stations.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	current, err := LoadStationsConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(current)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil || !info.ModTime().After(lastMod) {
					continue
				}
				next, err := LoadStationsConfig(path)
				if err != nil {
					logger.Error().Err(err).Str("path", path).Msg("stations reload failed")
					continue
				}
				lastMod = info.ModTime()

				changes := DiffStations(current, next)
				logStationChanges(logger, changes)
				logger.Info().Str("path", path).Int("changed", len(changes)).Msg(next.String())

				current = next
				if onUpdate != nil {
					onUpdate(next)
				}
			}
		}
	}()

	return nil
}
