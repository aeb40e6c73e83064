// Package audit produces the monthly reservations workbook and prunes
// reservations past the retention window.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// DataCleaner removes reservations older than the retention window.
type DataCleaner interface {
	DeleteOldReservations(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Sink receives finished reports.
type Sink interface {
	Deliver(ctx context.Context, filename string, data io.Reader) error
}

// DirectorySink stores reports as files in a directory.
type DirectorySink struct {
	Dir string
}

func (d DirectorySink) Deliver(ctx context.Context, filename string, data io.Reader) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(filepath.Join(d.Dir, filename))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Config holds configuration for the audit service.
type Config struct {
	// RetentionDays is how many days of reservations to keep. Default: 31.
	RetentionDays int
	// ExportOnStart runs an export right after Start.
	ExportOnStart bool
}

// Service handles monthly audit exports and data cleanup.
type Service struct {
	config   Config
	exporter TableExporter
	writer   func() ExcelWriter
	sink     Sink
	cleaner  DataCleaner
	logger   zerolog.Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates a new audit service.
func NewService(
	config Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	sink Sink,
	cleaner DataCleaner,
	logger *zerolog.Logger,
) *Service {
	if config.RetentionDays <= 0 {
		config.RetentionDays = 31
	}

	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		sink:     sink,
		cleaner:  cleaner,
		logger:   logger.With().Str("component", "audit").Logger(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the audit scheduler.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunExportAndCleanup()
		}()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Int("retention_days", s.config.RetentionDays).Msg("Audit service started")
}

// Stop gracefully stops the audit service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info().Msg("Audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := s.nextFirstOfMonth()
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()

	s.logger.Info().Time("next_run", nextRun).Msg("Next audit scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.RunExportAndCleanup()

			nextRun = s.nextFirstOfMonth()
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("next_run", nextRun).Msg("Next audit scheduled")
		}
	}
}

func (s *Service) nextFirstOfMonth() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup exports first so nothing is pruned before it is reported.
func (s *Service) RunExportAndCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.Export(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data")
	}

	if err := s.Cleanup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to cleanup old data")
	}
}

// Export writes every audit table plus a per-station summary into one
// workbook and hands it to the sink. It returns the report filename.
func (s *Service) Export(ctx context.Context) (string, error) {
	if s.exporter == nil || s.writer == nil {
		return "", fmt.Errorf("exporter or writer not configured")
	}

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		s.logger.Info().Msg("No tables to export")
		return "", nil
	}

	excel := s.writer()
	if excel == nil {
		return "", fmt.Errorf("failed to create excel writer")
	}
	defer excel.Close()

	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("Failed to get table data")
			continue
		}

		if err := writeSheet(excel, tableName, columns, data); err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("Failed to write sheet")
			continue
		}

		if tableName == "reservations" {
			if err := writeSummary(excel, data); err != nil {
				s.logger.Error().Err(err).Msg("Failed to write summary")
			}
		}

		s.logger.Debug().Str("table", tableName).Int("rows", len(data)).Msg("Exported table")
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return "", fmt.Errorf("save excel: %w", err)
	}

	now := s.now()
	filename := GenerateFilename(time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location()))
	if s.sink != nil {
		if err := s.sink.Deliver(ctx, filename, &buf); err != nil {
			return "", fmt.Errorf("deliver report: %w", err)
		}
		s.logger.Info().Str("filename", filename).Msg("Audit report delivered")
	}

	return filename, nil
}

// Cleanup deletes reservations older than the retention window.
func (s *Service) Cleanup(ctx context.Context) error {
	if s.cleaner == nil {
		return nil
	}

	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.DeleteOldReservations(ctx, retention)
	if err != nil {
		return fmt.Errorf("delete old reservations: %w", err)
	}

	s.logger.Info().
		Int64("deleted_count", deleted).
		Int("retention_days", s.config.RetentionDays).
		Msg("Cleaned up old data")
	return nil
}

func writeSheet(excel ExcelWriter, name string, columns []string, data []map[string]interface{}) error {
	if err := excel.AddSheet(name); err != nil {
		return err
	}
	if err := excel.WriteHeader(columns); err != nil {
		return err
	}
	for _, row := range data {
		rowData := make([]interface{}, len(columns))
		for i, col := range columns {
			rowData[i] = row[col]
		}
		if err := excel.WriteRow(rowData); err != nil {
			return err
		}
	}
	return nil
}

// writeSummary adds bookings and revenue per station, cancelled excluded.
func writeSummary(excel ExcelWriter, reservations []map[string]interface{}) error {
	type totals struct {
		name     string
		bookings int
		hours    float64
		revenue  int64
	}
	byStation := make(map[string]*totals)

	for _, row := range reservations {
		if fmt.Sprint(row["status"]) == "CANCELLED" {
			continue
		}
		id := fmt.Sprint(row["station_id"])
		t, ok := byStation[id]
		if !ok {
			t = &totals{name: fmt.Sprint(row["station_name"])}
			byStation[id] = t
		}
		t.bookings++
		t.hours += toFloat(row["duration_hours"])
		t.revenue += int64(toFloat(row["total_price"]))
	}

	ids := make([]string, 0, len(byStation))
	for id := range byStation {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		t := byStation[id]
		rows = append(rows, map[string]interface{}{
			"station_id": id, "station_name": t.name, "bookings": t.bookings, "hours": t.hours, "revenue": t.revenue,
		})
	}
	return writeSheet(excel, "summary", []string{"station_id", "station_name", "bookings", "hours", "revenue"}, rows)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// GenerateFilename creates a filename like "reservations_2026-01.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("reservations_%s.xlsx", t.Format("2006-01"))
}
