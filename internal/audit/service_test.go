package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeExporter struct {
	tables map[string][]map[string]interface{}
	cols   map[string][]string
}

func (f *fakeExporter) GetTableNames(ctx context.Context) ([]string, error) {
	return []string{"reservations", "reservation_events", "broken"}, nil
}

func (f *fakeExporter) GetTableData(ctx context.Context, name string) ([]map[string]interface{}, []string, error) {
	cols, ok := f.cols[name]
	if !ok {
		return nil, nil, errors.New("no such table")
	}
	return f.tables[name], cols, nil
}

type mockCleaner struct {
	mock.Mock
}

func (m *mockCleaner) DeleteOldReservations(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type memorySink struct {
	name string
	data []byte
}

func (m *memorySink) Deliver(ctx context.Context, filename string, data io.Reader) error {
	b, err := io.ReadAll(data)
	m.name, m.data = filename, b
	return err
}

func newExporter() *fakeExporter {
	return &fakeExporter{
		cols: map[string][]string{
			"reservations":       {"id", "station_id", "station_name", "duration_hours", "total_price", "status"},
			"reservation_events": {"id", "type"},
		},
		tables: map[string][]map[string]interface{}{
			"reservations": {
				{"id": "r1", "station_id": "ps5-1", "station_name": "PS5 Station 1", "duration_hours": 2.0, "total_price": int64(100000), "status": "CONFIRMED"},
				{"id": "r2", "station_id": "ps5-1", "station_name": "PS5 Station 1", "duration_hours": 1.0, "total_price": int64(50000), "status": "COMPLETED"},
				{"id": "r3", "station_id": "ps5-1", "station_name": "PS5 Station 1", "duration_hours": 1.0, "total_price": int64(50000), "status": "CANCELLED"},
				{"id": "r4", "station_id": "pc-01", "station_name": "PC 1", "duration_hours": 3.0, "total_price": int64(105000), "status": "CONFIRMED"},
			},
			"reservation_events": {
				{"id": int64(1), "type": "reservation.created"},
			},
		},
	}
}

func TestService_Export(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sink := &memorySink{}
	svc := NewService(Config{}, newExporter(), NewExcelizeWriter, sink, nil, &logger)
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 0, 1, 0, 0, time.UTC) }

	name, err := svc.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reservations_2024-01.xlsx", name)
	assert.Equal(t, name, sink.name)

	f, err := excelize.OpenReader(bytes.NewReader(sink.data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"reservations", "summary", "reservation_events"}, f.GetSheetList())

	rows, err := f.GetRows("reservations")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "station_id", rows[0][1])

	summary, err := f.GetRows("summary")
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"pc-01", "PC 1", "1", "3", "105000"}, summary[1])
	assert.Equal(t, []string{"ps5-1", "PS5 Station 1", "2", "3", "150000"}, summary[2])
}

func TestService_ExportNamesPreviousMonth(t *testing.T) {
	logger := zerolog.New(io.Discard)

	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC), "reservations_2024-02.xlsx"},
		{time.Date(2024, 5, 31, 23, 59, 0, 0, time.UTC), "reservations_2024-04.xlsx"},
		{time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC), "reservations_2024-12.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			sink := &memorySink{}
			svc := NewService(Config{}, newExporter(), NewExcelizeWriter, sink, nil, &logger)
			svc.now = func() time.Time { return tt.now }

			name, err := svc.Export(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
			assert.Equal(t, tt.want, sink.name)
		})
	}
}

func TestService_Cleanup(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cleaner := new(mockCleaner)
	svc := NewService(Config{RetentionDays: 10}, nil, nil, nil, cleaner, &logger)
	ctx := context.Background()

	cleaner.On("DeleteOldReservations", ctx, 10*24*time.Hour).Return(int64(3), nil).Once()
	require.NoError(t, svc.Cleanup(ctx))

	cleaner.On("DeleteOldReservations", ctx, 10*24*time.Hour).Return(int64(0), errors.New("locked")).Once()
	assert.Error(t, svc.Cleanup(ctx))

	cleaner.AssertExpectations(t)
}

func TestService_ExportWithoutExporter(t *testing.T) {
	logger := zerolog.New(io.Discard)
	svc := NewService(Config{}, nil, nil, nil, nil, &logger)
	_, err := svc.Export(context.Background())
	assert.Error(t, err)
	assert.NoError(t, svc.Cleanup(context.Background()))
}

func TestService_StartStop(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()
	svc := NewService(Config{ExportOnStart: true}, newExporter(), NewExcelizeWriter, DirectorySink{Dir: dir}, nil, &logger)

	svc.Start()
	svc.Start()
	svc.Stop()
	svc.Stop()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.FileExists(t, filepath.Join(dir, entries[0].Name()))
}

func TestGenerateFilename(t *testing.T) {
	assert.Equal(t, "reservations_2026-01.xlsx", GenerateFilename(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)))
}
