// Package repository holds reservation stores and the errors shared by all
// of them.
package repository

import (
	"context"
	"errors"
	"sync"

	"stationbook/internal/model"
	"stationbook/internal/slots"
)

var (
	// ErrNotFound is returned for unknown reservation ids.
	ErrNotFound = errors.New("reservation not found")
	// ErrSlotTaken is returned by Create when an active reservation on the
	// same station day already covers part of the window.
	ErrSlotTaken = errors.New("slot already taken")
)

// Memory is an in-process reservation store. Stored values are copied on
// the way in and out so callers never share state with the store.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]*model.Reservation
	index map[string][]string // station|date -> ids
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		byID:  make(map[string]*model.Reservation),
		index: make(map[string][]string),
	}
}

func indexKey(stationID, date string) string {
	return stationID + "|" + date
}

func (m *Memory) ListByStationDate(ctx context.Context, stationID, date string) ([]*model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.index[indexKey(stationID, date)]
	result := make([]*model.Reservation, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.byID[id].Clone())
	}
	return result, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Create stores a new reservation, refusing it when it overlaps an active
// reservation of the same station day.
func (m *Memory) Create(ctx context.Context, r *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[r.ID]; exists {
		return errors.New("reservation id already exists")
	}

	key := indexKey(r.StationID, r.Date)
	if r.BlocksSlot() {
		for _, id := range m.index[key] {
			if overlapsActive(m.byID[id], r) {
				return ErrSlotTaken
			}
		}
	}

	m.byID[r.ID] = r.Clone()
	m.index[key] = append(m.index[key], r.ID)
	return nil
}

func (m *Memory) Update(ctx context.Context, r *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[r.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.StationID != r.StationID || existing.Date != r.Date {
		return errors.New("station and date of a reservation are immutable")
	}
	m.byID[r.ID] = r.Clone()
	return nil
}

func overlapsActive(existing, candidate *model.Reservation) bool {
	if existing == nil || !existing.BlocksSlot() {
		return false
	}
	es, err1 := slots.ParseClock(existing.StartTime)
	ee, err2 := slots.ParseClock(existing.EndTime)
	cs, err3 := slots.ParseClock(candidate.StartTime)
	ce, err4 := slots.ParseClock(candidate.EndTime)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return slots.Overlaps(cs, ce, es, ee)
}
