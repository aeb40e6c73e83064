package config

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationbook/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STATIONBOOK_API_KEY", "secret")

	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "db", "test.db")+`
api:
  port: 9090
  api_key: ${STATIONBOOK_API_KEY}
booking:
  extension_surcharge_per_hour: 0
  recheck_overlap_on_extend: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "configs/stations.yaml", cfg.Stations.Path)
	assert.DirExists(t, filepath.Join(dir, "db"))

	p := cfg.BookingPolicy()
	assert.Equal(t, int64(0), p.ExtensionSurchargePerHour, "explicit zero surcharge is kept")
	assert.Equal(t, 2.0, p.MaxExtensionHours)
	assert.Equal(t, 4, p.GamesPerHour)
	assert.True(t, p.RecheckOverlapOnExtend)

	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 5*time.Second, cfg.LockWait())
}

func TestBookingPolicy_DefaultSurcharge(t *testing.T) {
	var cfg Config
	assert.Equal(t, int64(20000), cfg.BookingPolicy().ExtensionSurchargePerHour)
	assert.False(t, cfg.BookingPolicy().RecheckOverlapOnExtend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

const stationsYAML = `
defaults:
  schedule:
    open_time: "10:00"
    close_time: "24:00"
    slot_duration_minutes: 30
stations:
  - id: ps5-1
    name: PS5 Station 1
    price_per_hour: 50000
  - id: pc-01
    name: PC 1
    price_per_hour: 35000
    status: MAINTENANCE
    capacity: 2
    schedule:
      open_time: "12:00"
      close_time: "22:00"
      slot_duration_minutes: 60
holidays:
  - date: "2024-12-31"
    name: New Year's Eve
`

func TestLoadStationsConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stations.yaml", stationsYAML)

	cfg, err := LoadStationsConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Stations, 2)

	dir := NewDirectory(cfg)

	st, ok := dir.Station("ps5-1")
	require.True(t, ok)
	assert.Equal(t, int64(50000), st.PricePerHour)
	assert.Equal(t, model.StationAvailable, st.Status)
	assert.Equal(t, 1, st.Capacity)

	pc, ok := dir.Station("pc-01")
	require.True(t, ok)
	assert.Equal(t, model.StationMaintenance, pc.Status)

	_, ok = dir.Station("nope")
	assert.False(t, ok)

	list := dir.Stations()
	require.Len(t, list, 2)
	assert.Equal(t, "pc-01", list[0].ID)

	sched, ok := dir.Schedule("ps5-1", "2024-01-10")
	require.True(t, ok)
	assert.Equal(t, "24:00", sched.CloseTime)

	sched, ok = dir.Schedule("pc-01", "2024-01-10")
	require.True(t, ok)
	assert.Equal(t, 60, sched.SlotDuration)

	_, ok = dir.Schedule("ps5-1", "2024-12-31")
	assert.False(t, ok, "holiday")
}

func TestStationsConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  StationsConfig
	}{
		{"empty", StationsConfig{}},
		{"missing id", StationsConfig{Stations: []StationConfig{{Name: "x"}}}},
		{"duplicate id", StationsConfig{Stations: []StationConfig{{ID: "a", Name: "x"}, {ID: "a", Name: "y"}}}},
		{"missing name", StationsConfig{Stations: []StationConfig{{ID: "a"}}}},
		{"negative price", StationsConfig{Stations: []StationConfig{{ID: "a", Name: "x", PricePerHour: -1}}}},
		{"bad status", StationsConfig{Stations: []StationConfig{{ID: "a", Name: "x", Status: "BROKEN"}}}},
		{"bad schedule", StationsConfig{Stations: []StationConfig{{ID: "a", Name: "x",
			Schedule: &ScheduleConfig{OpenTime: "22:00", CloseTime: "10:00"}}}}},
		{"bad holiday", StationsConfig{Stations: []StationConfig{{ID: "a", Name: "x"}},
			Holidays: []HolidayConfig{{Date: "31.12.2024"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestWatchStations(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stations.yaml", stationsYAML)
	logger := zerolog.New(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *StationsConfig, 4)
	err := WatchStations(ctx, path, 10*time.Millisecond, &logger, func(c *StationsConfig) {
		updates <- c
	})
	require.NoError(t, err)

	first := <-updates
	assert.Len(t, first.Stations, 2)

	updated := stationsYAML + `
  - date: "2025-01-01"
    name: New Year
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case c := <-updates:
		assert.Len(t, c.Holidays, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after file change")
	}
}

func TestDiffStations(t *testing.T) {
	prev := &StationsConfig{Stations: []StationConfig{
		{ID: "ps5-1", PricePerHour: 50000, Status: "AVAILABLE"},
		{ID: "pc-01", PricePerHour: 35000, Status: "MAINTENANCE"},
		{ID: "vr-01", PricePerHour: 80000, Status: "AVAILABLE"},
	}}
	next := &StationsConfig{Stations: []StationConfig{
		{ID: "ps5-1", PricePerHour: 50000, Status: "AVAILABLE"},
		{ID: "pc-01", PricePerHour: 40000, Status: "AVAILABLE"},
		{ID: "xbox-1", PricePerHour: 45000, Status: "AVAILABLE"},
	}}

	assert.Equal(t, []StationChange{
		{ID: "pc-01", OldStatus: "MAINTENANCE", NewStatus: "AVAILABLE", OldPrice: 35000, NewPrice: 40000},
		{ID: "vr-01", Removed: true, OldStatus: "AVAILABLE", OldPrice: 80000},
		{ID: "xbox-1", Added: true, NewStatus: "AVAILABLE", NewPrice: 45000},
	}, DiffStations(prev, next))

	assert.Empty(t, DiffStations(prev, prev))
	assert.Len(t, DiffStations(nil, next), 3)
}

func TestWatchStations_LogsStationChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stations.yaml", stationsYAML)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *StationsConfig, 4)
	require.NoError(t, WatchStations(ctx, path, 10*time.Millisecond, &logger, func(c *StationsConfig) {
		updates <- c
	}))
	<-updates

	reopened := strings.Replace(stationsYAML, "status: MAINTENANCE", "status: AVAILABLE", 1)
	// swap the file in one step so the watcher sees a single change
	tmp := writeFile(t, dir, "stations.yaml.tmp", reopened)
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(tmp, future, future))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case c := <-updates:
		st, ok := NewDirectory(c).Station("pc-01")
		require.True(t, ok)
		assert.Equal(t, model.StationAvailable, st.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after file change")
	}

	out := buf.String()
	assert.Contains(t, out, "station updated")
	assert.Contains(t, out, `"new_status":"AVAILABLE"`)
	assert.NotContains(t, out, "station removed")
}
