package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationbook/internal/model"
)

func newRes(id, start, end string, status model.ReservationStatus) *model.Reservation {
	return &model.Reservation{
		ID:        id,
		StationID: "pc-01",
		Date:      "2024-01-10",
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}
}

func TestMemory_CreateAndGet(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	r := newRes("r1", "14:00", "16:00", model.StatusConfirmed)
	r.GameSelections = []string{"fifa"}
	require.NoError(t, repo.Create(ctx, r))

	// caller mutation does not leak into the store
	r.GameSelections[0] = "tekken"

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "fifa", got.GameSelections[0])

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, repo.Create(ctx, newRes("r1", "18:00", "19:00", model.StatusConfirmed)))
}

func TestMemory_CreateRejectsOverlap(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRes("a", "14:00", "16:00", model.StatusConfirmed)))

	assert.ErrorIs(t, repo.Create(ctx, newRes("b", "15:00", "16:00", model.StatusConfirmed)), ErrSlotTaken)
	assert.NoError(t, repo.Create(ctx, newRes("c", "16:00", "17:00", model.StatusConfirmed)))

	cancelled := newRes("a", "14:00", "16:00", model.StatusCancelled)
	require.NoError(t, repo.Update(ctx, cancelled))
	assert.NoError(t, repo.Create(ctx, newRes("d", "14:00", "16:00", model.StatusConfirmed)))
}

func TestMemory_ListByStationDate(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRes("a", "10:00", "11:00", model.StatusConfirmed)))
	other := newRes("b", "10:00", "11:00", model.StatusConfirmed)
	other.StationID = "pc-02"
	require.NoError(t, repo.Create(ctx, other))
	nextDay := newRes("c", "10:00", "11:00", model.StatusConfirmed)
	nextDay.Date = "2024-01-11"
	require.NoError(t, repo.Create(ctx, nextDay))

	list, err := repo.ListByStationDate(ctx, "pc-01", "2024-01-10")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	empty, err := repo.ListByStationDate(ctx, "pc-09", "2024-01-10")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemory_Update(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRes("a", "10:00", "11:00", model.StatusConfirmed)))

	assert.ErrorIs(t, repo.Update(ctx, newRes("zzz", "10:00", "11:00", model.StatusConfirmed)), ErrNotFound)

	moved := newRes("a", "10:00", "11:00", model.StatusConfirmed)
	moved.Date = "2024-02-01"
	assert.Error(t, repo.Update(ctx, moved))

	extended := newRes("a", "10:00", "12:00", model.StatusConfirmed)
	require.NoError(t, repo.Update(ctx, extended))
	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "12:00", got.EndTime)
}
