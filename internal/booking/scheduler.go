// Package booking assigns time-bounded reservations to gaming stations
// without overlap and owns every mutation of a reservation after creation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stationbook/internal/events"
	"stationbook/internal/lock"
	"stationbook/internal/metrics"
	"stationbook/internal/model"
	"stationbook/internal/repository"
	"stationbook/internal/slots"
)

// CreateRequest is the input of CreateReservation.
type CreateRequest struct {
	StationID      string         `json:"station_id"`
	Date           string         `json:"date"`
	StartTime      string         `json:"start_time"`
	DurationHours  float64        `json:"duration_hours"`
	Customer       model.Customer `json:"customer"`
	GameSelections []string       `json:"game_selections,omitempty"`
}

// Scheduler is the booking scheduler.
type Scheduler struct {
	repo      Repository
	stations  StationDirectory
	locker    Locker
	publisher Publisher
	policy    Policy
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLocker replaces the in-process station-day lock.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithPublisher sets the sink for reservation events.
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithClock overrides time.Now, used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler wires a scheduler over the given store and station directory.
func NewScheduler(repo Repository, stations StationDirectory, policy Policy, logger *zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:     repo,
		stations: stations,
		locker:   lock.NewKeyedMutex(),
		policy:   policy.withDefaults(),
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the effective rules.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// ListOccupiedSlots returns the windows taken by non-cancelled reservations
// on a station day, ordered by start time.
func (s *Scheduler) ListOccupiedSlots(ctx context.Context, date, stationID string) ([]model.TimeRange, error) {
	active, err := s.activeReservations(ctx, stationID, date)
	if err != nil {
		return nil, err
	}

	result := make([]model.TimeRange, 0, len(active))
	for _, r := range active {
		result = append(result, r.Range())
	}
	return result, nil
}

// ListReservations returns every reservation of a station day regardless of status.
func (s *Scheduler) ListReservations(ctx context.Context, date, stationID string) ([]*model.Reservation, error) {
	all, err := s.repo.ListByStationDate(ctx, stationID, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	sortReservations(all)
	return all, nil
}

// GetReservation returns a reservation by id.
func (s *Scheduler) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, id)
	}
	return r, nil
}

// CreateReservation books a station window. The reservation is created
// CONFIRMED, or nothing is stored at all.
func (s *Scheduler) CreateReservation(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	if _, err := slots.ParseDate(req.Date); err != nil {
		return nil, newError(KindInvalidRequest, "Invalid date %q, use YYYY-MM-DD.", req.Date)
	}
	start, err := slots.ParseClock(req.StartTime)
	if err != nil || start >= slots.MinutesPerDay {
		return nil, newError(KindInvalidRequest, "Invalid start time %q, use HH:MM.", req.StartTime)
	}
	if req.DurationHours <= 0 || math.IsNaN(req.DurationHours) || math.IsInf(req.DurationHours, 0) {
		return nil, newError(KindInvalidRequest, "Duration must be a positive number of hours.")
	}
	endClock, err := slots.AddHours(req.StartTime, req.DurationHours)
	if err != nil {
		return nil, newError(KindInvalidRequest, "Bookings must end by midnight; %s for %gh runs into the next day.", req.StartTime, req.DurationHours)
	}
	end, _ := slots.ParseClock(endClock)
	if end <= start {
		return nil, newError(KindInvalidRequest, "Duration must be at least one minute.")
	}

	station, ok := s.stations.Station(req.StationID)
	if !ok {
		return nil, newError(KindStationNotFound, "Station %q does not exist.", req.StationID)
	}
	if s.policy.RejectUnavailableStations && station.Status != model.StationAvailable {
		return nil, newError(KindStationUnavailable, "%s is currently %s and cannot be booked.", station.Name, strings.ToLower(string(station.Status)))
	}

	if limit := s.gameLimit(req.DurationHours); len(req.GameSelections) > limit {
		return nil, newError(KindCapacityExceeded, "A %gh booking allows at most %d games, got %d.", req.DurationHours, limit, len(req.GameSelections))
	}

	unlock, err := s.locker.Lock(ctx, slotKey(req.StationID, req.Date))
	if err != nil {
		return nil, fmt.Errorf("lock station day: %w", err)
	}
	defer unlock()

	active, err := s.activeReservations(ctx, req.StationID, req.Date)
	if err != nil {
		return nil, err
	}
	if clash := findOverlap(active, start, end, ""); clash != nil {
		return nil, s.conflict(station, req.Date, clash)
	}

	now := s.now()
	r := &model.Reservation{
		ID:             s.newID(),
		StationID:      station.ID,
		StationName:    station.Name,
		Date:           req.Date,
		StartTime:      slots.FormatClock(start),
		EndTime:        endClock,
		DurationHours:  req.DurationHours,
		TotalPrice:     int64(math.Round(float64(station.PricePerHour) * req.DurationHours)),
		Status:         model.StatusConfirmed,
		Customer:       req.Customer,
		GameSelections: append([]string(nil), req.GameSelections...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, s.conflict(station, req.Date, nil)
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	metrics.IncReservationCreated(station.ID)
	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("station_id", r.StationID).
		Str("date", r.Date).
		Str("start", r.StartTime).
		Str("end", r.EndTime).
		Int64("total_price", r.TotalPrice).
		Msg("reservation created")
	s.publish(events.ReservationCreated, r)

	return r, nil
}

// ExtendReservation adds hours to the end of a reservation. The price grows
// by the flat surcharge, not the station rate.
func (s *Scheduler) ExtendReservation(ctx context.Context, id string, additionalHours float64) (*model.Reservation, error) {
	if additionalHours > s.policy.MaxExtensionHours {
		metrics.IncExtension("rejected")
		return nil, newError(KindInvalidExtension, "A reservation can be extended by at most %g hours at a time.", s.policy.MaxExtensionHours)
	}
	if additionalHours <= 0 || math.IsNaN(additionalHours) {
		metrics.IncExtension("rejected")
		return nil, newError(KindInvalidExtension, "Extension must be a positive number of hours.")
	}
	if slots.HoursToMinutes(additionalHours) < 1 {
		metrics.IncExtension("rejected")
		return nil, newError(KindInvalidExtension, "An extension of %gh is shorter than a minute.", additionalHours)
	}

	var updated *model.Reservation
	err := s.mutate(ctx, id, func(r *model.Reservation) error {
		if r.Status == model.StatusCancelled || r.Status == model.StatusCompleted {
			return newError(KindInvalidExtension, "A %s reservation cannot be extended.", strings.ToLower(string(r.Status)))
		}

		start, err := slots.ParseClock(r.StartTime)
		if err != nil {
			return fmt.Errorf("stored start time: %w", err)
		}
		// derive from the total so EndTime stays start + DurationHours
		newEnd := start + slots.HoursToMinutes(r.DurationHours+additionalHours)
		if newEnd > slots.MinutesPerDay {
			return newError(KindInvalidExtension, "The reservation cannot be extended past midnight.")
		}

		if s.policy.RecheckOverlapOnExtend {
			active, err := s.activeReservations(ctx, r.StationID, r.Date)
			if err != nil {
				return err
			}
			if clash := findOverlap(active, start, newEnd, r.ID); clash != nil {
				station := model.Station{ID: r.StationID, Name: r.StationName}
				return s.conflict(station, r.Date, clash)
			}
		}

		r.EndTime = slots.FormatClock(newEnd)
		r.DurationHours += additionalHours
		r.TotalPrice += int64(math.Round(float64(s.policy.ExtensionSurchargePerHour) * additionalHours))
		updated = r
		return nil
	})
	if err != nil {
		if KindOf(err) != "" {
			metrics.IncExtension("rejected")
		}
		return nil, err
	}

	metrics.IncExtension("ok")
	s.logger.Info().
		Str("reservation_id", updated.ID).
		Float64("additional_hours", additionalHours).
		Str("end", updated.EndTime).
		Int64("total_price", updated.TotalPrice).
		Msg("reservation extended")
	s.publish(events.ReservationExtended, updated)

	return updated, nil
}

// AttachSecondaryOrder appends line items to the reservation. Items are not
// deduplicated.
func (s *Scheduler) AttachSecondaryOrder(ctx context.Context, id string, items []model.LineItem) error {
	var updated *model.Reservation
	err := s.mutate(ctx, id, func(r *model.Reservation) error {
		r.SecondaryOrders = append(r.SecondaryOrders, items...)
		updated = r
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Str("reservation_id", id).Int("items", len(items)).Msg("secondary order attached")
	s.publish(events.ReservationOrdersAttached, updated)
	return nil
}

// SetGameSelections replaces the game list wholesale.
func (s *Scheduler) SetGameSelections(ctx context.Context, id string, gameIDs []string) error {
	var updated *model.Reservation
	err := s.mutate(ctx, id, func(r *model.Reservation) error {
		if limit := s.gameLimit(r.DurationHours); len(gameIDs) > limit {
			return newError(KindCapacityExceeded, "A %gh booking allows at most %d games, got %d.", r.DurationHours, limit, len(gameIDs))
		}
		r.GameSelections = append([]string(nil), gameIDs...)
		updated = r
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(events.ReservationGamesSet, updated)
	return nil
}

// CancelReservation frees the reservation's window.
func (s *Scheduler) CancelReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := s.transition(ctx, id, model.StatusCancelled, model.StatusPending, model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	metrics.IncReservationCancelled()
	s.logger.Info().Str("reservation_id", id).Msg("reservation cancelled")
	s.publish(events.ReservationCancelled, r)
	return r, nil
}

// CompleteReservation marks a confirmed reservation as played out.
func (s *Scheduler) CompleteReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := s.transition(ctx, id, model.StatusCompleted, model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("reservation_id", id).Msg("reservation completed")
	s.publish(events.ReservationCompleted, r)
	return r, nil
}

func (s *Scheduler) transition(ctx context.Context, id string, to model.ReservationStatus, from ...model.ReservationStatus) (*model.Reservation, error) {
	var updated *model.Reservation
	err := s.mutate(ctx, id, func(r *model.Reservation) error {
		for _, st := range from {
			if r.Status == st {
				r.Status = to
				updated = r
				return nil
			}
		}
		return newError(KindInvalidTransition, "A %s reservation cannot be marked %s.",
			strings.ToLower(string(r.Status)), strings.ToLower(string(to)))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// mutate loads the reservation under its station-day lock, applies fn and
// stores the result. Nothing is written when fn fails.
func (s *Scheduler) mutate(ctx context.Context, id string, fn func(r *model.Reservation) error) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return translateRepoError(err, id)
	}

	unlock, err := s.locker.Lock(ctx, slotKey(current.StationID, current.Date))
	if err != nil {
		return fmt.Errorf("lock station day: %w", err)
	}
	defer unlock()

	// Re-read under the lock so concurrent appends are not lost.
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return translateRepoError(err, id)
	}

	if err := fn(r); err != nil {
		return err
	}
	r.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, r); err != nil {
		return translateRepoError(err, id)
	}
	return nil
}

func (s *Scheduler) activeReservations(ctx context.Context, stationID, date string) ([]*model.Reservation, error) {
	all, err := s.repo.ListByStationDate(ctx, stationID, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	active := all[:0]
	for _, r := range all {
		if r.BlocksSlot() {
			active = append(active, r)
		}
	}
	sortReservations(active)
	return active, nil
}

func (s *Scheduler) gameLimit(durationHours float64) int {
	return int(math.Floor(float64(s.policy.GamesPerHour)*durationHours + 1e-9))
}

func (s *Scheduler) conflict(station model.Station, date string, clash *model.Reservation) error {
	metrics.IncSlotConflict(station.ID)

	ev := s.logger.Warn().Str("station_id", station.ID).Str("date", date)
	if clash == nil {
		ev.Msg("slot conflict detected by storage")
		return newError(KindSlotConflict, "%s was just booked for this time on %s. Please choose another time.", displayName(station), date)
	}
	ev.Str("existing_id", clash.ID).
		Str("existing_start", clash.StartTime).
		Str("existing_end", clash.EndTime).
		Msg("slot conflict")
	return newError(KindSlotConflict, "%s is already booked from %s to %s on %s. Please choose another time.",
		displayName(station), clash.StartTime, clash.EndTime, date)
}

func (s *Scheduler) publish(eventType string, r *model.Reservation) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, r); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish event")
	}
}

// findOverlap returns the first reservation whose window intersects
// [start, end), skipping excludeID.
func findOverlap(active []*model.Reservation, start, end int, excludeID string) *model.Reservation {
	for _, r := range active {
		if r.ID == excludeID {
			continue
		}
		existingStart, errS := slots.ParseClock(r.StartTime)
		existingEnd, errE := slots.ParseClock(r.EndTime)
		if errS != nil || errE != nil {
			continue
		}
		if slots.Overlaps(start, end, existingStart, existingEnd) {
			return r
		}
	}
	return nil
}

func translateRepoError(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, "Reservation %s not found.", id)
	}
	return fmt.Errorf("reservation %s: %w", id, err)
}

func sortReservations(rs []*model.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].StartTime != rs[j].StartTime {
			return rs[i].StartTime < rs[j].StartTime
		}
		return rs[i].ID < rs[j].ID
	})
}

func slotKey(stationID, date string) string {
	return stationID + "|" + date
}

func displayName(st model.Station) string {
	if st.Name != "" {
		return st.Name
	}
	return "Station " + st.ID
}
