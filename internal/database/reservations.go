package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stationbook/internal/model"
	"stationbook/internal/repository"
)

const reservationColumns = `id, station_id, station_name, date, start_time, end_time, duration_hours,
	total_price, status, customer, game_selections, secondary_orders, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r                       model.Reservation
		status                  string
		customer, games, orders string
		createdAt, updatedAt    sql.NullTime
	)
	if err := row.Scan(
		&r.ID, &r.StationID, &r.StationName, &r.Date, &r.StartTime, &r.EndTime, &r.DurationHours,
		&r.TotalPrice, &status, &customer, &games, &orders, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = model.ReservationStatus(status)

	if err := json.Unmarshal([]byte(customer), &r.Customer); err != nil {
		return nil, fmt.Errorf("decode customer of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(games), &r.GameSelections); err != nil {
		return nil, fmt.Errorf("decode games of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(orders), &r.SecondaryOrders); err != nil {
		return nil, fmt.Errorf("decode orders of %s: %w", r.ID, err)
	}
	if createdAt.Valid {
		r.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		r.UpdatedAt = updatedAt.Time
	}
	return &r, nil
}

type encodedFields struct {
	customer, games, orders string
}

func encodeFields(r *model.Reservation) (encodedFields, error) {
	customer, err := json.Marshal(r.Customer)
	if err != nil {
		return encodedFields{}, fmt.Errorf("encode customer: %w", err)
	}
	games := r.GameSelections
	if games == nil {
		games = []string{}
	}
	gamesJSON, err := json.Marshal(games)
	if err != nil {
		return encodedFields{}, fmt.Errorf("encode games: %w", err)
	}
	orders := r.SecondaryOrders
	if orders == nil {
		orders = []model.LineItem{}
	}
	ordersJSON, err := json.Marshal(orders)
	if err != nil {
		return encodedFields{}, fmt.Errorf("encode orders: %w", err)
	}
	return encodedFields{customer: string(customer), games: string(gamesJSON), orders: string(ordersJSON)}, nil
}

// ListByStationDate returns all reservations of a station day, any status.
func (db *DB) ListByStationDate(ctx context.Context, stationID, date string) ([]*model.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE station_id = ? AND date = ?
		ORDER BY start_time, id`,
		stationID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var result []*model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Get returns a reservation by id.
func (db *DB) Get(ctx context.Context, id string) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// Create inserts a reservation. For slot-blocking reservations the overlap
// test is repeated inside the write transaction, so two processes sharing
// the file cannot both win the same window.
func (db *DB) Create(ctx context.Context, r *model.Reservation) error {
	enc, err := encodeFields(r)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if r.BlocksSlot() {
		var taken int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM reservations
			WHERE station_id = ? AND date = ?
			  AND status != ?
			  AND start_time < ? AND end_time > ?`,
			r.StationID, r.Date, string(model.StatusCancelled), r.EndTime, r.StartTime,
		).Scan(&taken)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if taken > 0 {
			return repository.ErrSlotTaken
		}
	}

	createdAt, updatedAt := r.CreatedAt, r.UpdatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StationID, r.StationName, r.Date, r.StartTime, r.EndTime, r.DurationHours,
		r.TotalPrice, string(r.Status), enc.customer, enc.games, enc.orders, createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	return tx.Commit()
}

// Update stores the mutable fields of a reservation.
func (db *DB) Update(ctx context.Context, r *model.Reservation) error {
	enc, err := encodeFields(r)
	if err != nil {
		return err
	}

	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	res, err := db.ExecContext(ctx, `
		UPDATE reservations SET
			end_time = ?, duration_hours = ?, total_price = ?, status = ?,
			customer = ?, game_selections = ?, secondary_orders = ?, updated_at = ?
		WHERE id = ?`,
		r.EndTime, r.DurationHours, r.TotalPrice, string(r.Status),
		enc.customer, enc.games, enc.orders, updatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
