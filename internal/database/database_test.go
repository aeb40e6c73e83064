package database

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationbook/internal/booking"
	"stationbook/internal/events"
	"stationbook/internal/model"
	"stationbook/internal/repository"
)

// compile-time check
var _ booking.Repository = (*DB)(nil)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleReservation(id, start, end string) *model.Reservation {
	return &model.Reservation{
		ID:             id,
		StationID:      "ps5-1",
		StationName:    "PS5 Station 1",
		Date:           "2024-01-10",
		StartTime:      start,
		EndTime:        end,
		DurationHours:  2,
		TotalPrice:     100000,
		Status:         model.StatusConfirmed,
		Customer:       model.Customer{Name: "Alex", Phone: "+10000000000"},
		GameSelections: []string{"fifa", "tekken"},
		CreatedAt:      time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC),
	}
}

func TestDB_CreateGetUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := sampleReservation("r1", "14:00", "16:00")
	require.NoError(t, db.Create(ctx, r))

	got, err := db.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "PS5 Station 1", got.StationName)
	assert.Equal(t, "16:00", got.EndTime)
	assert.Equal(t, int64(100000), got.TotalPrice)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, "Alex", got.Customer.Name)
	assert.Equal(t, []string{"fifa", "tekken"}, got.GameSelections)
	assert.Empty(t, got.SecondaryOrders)
	assert.True(t, got.CreatedAt.Equal(r.CreatedAt))

	got.EndTime = "17:00"
	got.DurationHours = 3
	got.TotalPrice = 120000
	got.SecondaryOrders = []model.LineItem{{ProductID: "coke", Name: "Coke", Quantity: 2, UnitPrice: 15000}}
	require.NoError(t, db.Update(ctx, got))

	again, err := db.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "17:00", again.EndTime)
	assert.Equal(t, 3.0, again.DurationHours)
	require.Len(t, again.SecondaryOrders, 1)
	assert.Equal(t, int64(15000), again.SecondaryOrders[0].UnitPrice)

	_, err = db.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, db.Update(ctx, sampleReservation("missing", "10:00", "11:00")), repository.ErrNotFound)
}

func TestDB_CreateRejectsOverlap(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(ctx, sampleReservation("a", "14:00", "16:00")))

	assert.ErrorIs(t, db.Create(ctx, sampleReservation("b", "15:00", "16:00")), repository.ErrSlotTaken)
	assert.NoError(t, db.Create(ctx, sampleReservation("c", "16:00", "17:00")))
	assert.NoError(t, db.Create(ctx, sampleReservation("d", "22:00", "24:00")))
	assert.ErrorIs(t, db.Create(ctx, sampleReservation("e", "23:00", "24:00")), repository.ErrSlotTaken)

	a, err := db.Get(ctx, "a")
	require.NoError(t, err)
	a.Status = model.StatusCancelled
	require.NoError(t, db.Update(ctx, a))
	assert.NoError(t, db.Create(ctx, sampleReservation("f", "14:00", "16:00")))
}

func TestDB_ListByStationDate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(ctx, sampleReservation("late", "18:00", "19:00")))
	require.NoError(t, db.Create(ctx, sampleReservation("early", "10:00", "11:00")))
	other := sampleReservation("other", "10:00", "11:00")
	other.StationID = "pc-01"
	require.NoError(t, db.Create(ctx, other))

	list, err := db.ListByStationDate(ctx, "ps5-1", "2024-01-10")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "late", list[1].ID)

	empty, err := db.ListByStationDate(ctx, "ps5-1", "2030-01-01")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDB_WithScheduler(t *testing.T) {
	db := setupTestDB(t)
	logger := zerolog.New(io.Discard)
	stations := staticStations{"ps5-1": {ID: "ps5-1", Name: "PS5 Station 1", PricePerHour: 50000, Status: model.StationAvailable}}
	s := booking.NewScheduler(db, stations, booking.DefaultPolicy(), &logger)
	ctx := context.Background()

	req := booking.CreateRequest{StationID: "ps5-1", Date: "2024-01-10", StartTime: "14:00", DurationHours: 2}
	r, err := s.CreateReservation(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), r.TotalPrice)

	req.StartTime = "15:00"
	req.DurationHours = 1
	_, err = s.CreateReservation(ctx, req)
	assert.ErrorIs(t, err, booking.ErrSlotConflict)

	ext, err := s.ExtendReservation(ctx, r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "17:00", ext.EndTime)

	stored, err := db.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), stored.TotalPrice)
}

type staticStations map[string]model.Station

func (s staticStations) Station(id string) (model.Station, bool) {
	st, ok := s[id]
	return st, ok
}

func (s staticStations) Stations() []model.Station {
	var out []model.Station
	for _, st := range s {
		out = append(out, st)
	}
	return out
}

func TestDB_AuditTables(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := sampleReservation("old", "10:00", "11:00")
	old.Date = time.Now().AddDate(0, 0, -60).Format("2006-01-02")
	require.NoError(t, db.Create(ctx, old))
	fresh := sampleReservation("fresh", "10:00", "11:00")
	fresh.Date = time.Now().Format("2006-01-02")
	require.NoError(t, db.Create(ctx, fresh))

	require.NoError(t, db.RecordEvent(events.Event{
		Type:    events.ReservationCreated,
		Payload: []byte(`{"id":"fresh"}`),
	}))

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuditTableNames, names)

	rows, cols, err := db.GetTableData(ctx, "reservations")
	require.NoError(t, err)
	assert.Contains(t, cols, "station_id")
	assert.Len(t, rows, 2)

	evRows, _, err := db.GetTableData(ctx, "reservation_events")
	require.NoError(t, err)
	require.Len(t, evRows, 1)
	assert.Equal(t, "fresh", evRows[0]["reservation_id"])

	_, _, err = db.GetTableData(ctx, "sqlite_master")
	assert.Error(t, err)

	deleted, err := db.DeleteOldReservations(ctx, 31*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = db.Get(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = db.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	require.NoError(t, db.Create(ctx, sampleReservation("r1", "14:00", "16:00")))

	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	restored, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer restored.Close()
	got, err := restored.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "14:00", got.StartTime)

	stale := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, stale)
	assert.FileExists(t, path)
}

func TestNewDB_UnopenablePath(t *testing.T) {
	logger := zerolog.New(io.Discard)
	// a directory cannot be opened as a database file
	db, err := NewDB(t.TempDir(), &logger)
	require.Error(t, err)
	assert.Nil(t, db)
}

func TestDB_RecordEventUndecodablePayload(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	db, err := NewDB(filepath.Join(t.TempDir(), "events.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RecordEvent(events.Event{Type: events.ReservationCreated, Payload: []byte("not json")}))

	rows, _, err := db.GetTableData(context.Background(), "reservation_events")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0]["reservation_id"])
	assert.Contains(t, buf.String(), "event payload carries no reservation id")
	assert.Contains(t, buf.String(), events.ReservationCreated)
}
