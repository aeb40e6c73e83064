package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stationbook/internal/events"
)

// AuditTableNames lists the tables exported in audit reports.
var AuditTableNames = []string{
	"reservations",
	"reservation_events",
}

// GetTableNames returns list of table names to export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns all rows from a table as maps.
func (db *DB) GetTableData(ctx context.Context, tableName string) (result []map[string]interface{}, columns []string, err error) {
	// Validate table name to prevent SQL injection
	validTable := false
	for _, t := range AuditTableNames {
		if t == tableName {
			validTable = true
			break
		}
	}
	if !validTable {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, nil, err
	}

	for rows.Next() {
		var cid int
		var name, typeName string
		var notNull, pk int
		var dfltValue sql.NullString
		if errScan := rows.Scan(&cid, &name, &typeName, &notNull, &dfltValue, &pk); errScan != nil {
			rows.Close()
			return nil, nil, errScan
		}
		columns = append(columns, name)
	}
	rows.Close()

	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("table %s has no columns", tableName)
	}

	dataRows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer dataRows.Close()

	for dataRows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if errScan := dataRows.Scan(valuePtrs...); errScan != nil {
			return nil, nil, errScan
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}

	return result, columns, dataRows.Err()
}

// DeleteOldReservations removes reservations whose day lies further back
// than olderThan, together with their events.
func (db *DB) DeleteOldReservations(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	cutoffDate := cutoff.Format("2006-01-02")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE date < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("delete reservations: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reservation_events WHERE created_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// RecordEvent appends a bus event to reservation_events. It is meant to be
// subscribed to the event bus.
func (db *DB) RecordEvent(ev events.Event) error {
	var ref struct {
		ID string `json:"id"`
	}
	if err := ev.Decode(&ref); err != nil {
		db.logger.Debug().Err(err).Str("type", ev.Type).Msg("event payload carries no reservation id")
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.Exec(
		`INSERT INTO reservation_events (reservation_id, type, payload, created_at) VALUES (?, ?, ?, ?)`,
		ref.ID, ev.Type, string(ev.Payload), createdAt,
	)
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.Type, err)
	}
	return nil
}
