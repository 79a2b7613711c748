package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence for alerts.
type Repository interface {
	// Insert stores a new alert and fills in its assigned ID.
	Insert(ctx context.Context, a *Alert) error

	// Get returns one alert by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id int64) (*Alert, error)

	// List returns alerts newest first, narrowed by the filter.
	List(ctx context.Context, filter ListFilter) ([]Alert, error)

	// Resolve marks an alert resolved and returns the updated record.
	// Returns ErrNotFound when absent and ErrAlreadyResolved when the
	// alert was resolved before.
	Resolve(ctx context.Context, id int64, resolvedBy string) (*Alert, error)

	// Counts returns the total and unresolved alert counts.
	Counts(ctx context.Context) (Counts, error)
}

// SQLiteRepository persists alerts in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new alert repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const alertColumns = `id, timestamp, alert_type, severity, title, message,
	sensor_type, sensor_value, threshold_value, device_id,
	resolved, resolved_at, resolved_by`

// Insert stores a new alert and fills in its assigned ID.
func (r *SQLiteRepository) Insert(ctx context.Context, a *Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (timestamp, alert_type, severity, title, message,
		   sensor_type, sensor_value, threshold_value, device_id, resolved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		a.Timestamp.Format(time.RFC3339), a.Type, string(a.Severity), a.Title, a.Message,
		nullableString(a.SensorType), a.SensorValue, a.ThresholdValue, nullableString(a.DeviceID),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading alert id: %w", err)
	}
	a.ID = id
	return nil
}

// Get returns one alert by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying alert: %w", err)
	}
	return a, nil
}

// List returns alerts newest first, narrowed by the filter.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	args := []any{}
	if filter.Resolved != nil {
		query += ` WHERE resolved = ?`
		args = append(args, *filter.Resolved)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var alerts []Alert
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning alert: %w", scanErr)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// Resolve marks an alert resolved. The update is guarded on resolved = 0
// so concurrent resolvers cannot overwrite each other's audit fields.
func (r *SQLiteRepository) Resolve(ctx context.Context, id int64, resolvedBy string) (*Alert, error) {
	if resolvedBy == "" {
		resolvedBy = "user"
	}
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET resolved = 1, resolved_at = ?, resolved_by = ?
		 WHERE id = ? AND resolved = 0`,
		now.Format(time.RFC3339), resolvedBy, id,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving alert: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading resolve result: %w", err)
	}
	if affected == 0 {
		// Either missing or already resolved; Get disambiguates.
		a, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: id %d resolved by %s", ErrAlreadyResolved, id, a.ResolvedBy)
	}

	return r.Get(ctx, id)
}

// Counts returns the total and unresolved alert counts in one scan.
func (r *SQLiteRepository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0)
		 FROM alerts`).Scan(&c.Total, &c.Unresolved)
	if err != nil {
		return Counts{}, fmt.Errorf("counting alerts: %w", err)
	}
	return c, nil
}

// scanner abstracts sql.Row and sql.Rows for scanAlert.
type scanner interface {
	Scan(dest ...any) error
}

// scanAlert reads one alert row.
func scanAlert(s scanner) (*Alert, error) {
	var a Alert
	var severity string
	var timestamp string
	var sensorType, deviceID, resolvedAt, resolvedBy sql.NullString

	err := s.Scan(&a.ID, &timestamp, &a.Type, &severity, &a.Title, &a.Message,
		&sensorType, &a.SensorValue, &a.ThresholdValue, &deviceID,
		&a.Resolved, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, err
	}

	a.Severity = Severity(severity)
	a.SensorType = sensorType.String
	a.DeviceID = deviceID.String
	a.ResolvedBy = resolvedBy.String

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	a.Timestamp = ts

	if resolvedAt.Valid {
		rt, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing resolved_at: %w", err)
		}
		a.ResolvedAt = &rt
	}

	return &a, nil
}

// nullableString returns nil for empty strings, for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
