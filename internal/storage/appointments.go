package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkravets/agenda/internal/apperr"
)

func InsertAppointment(ctx context.Context, q Querier, a Appointment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO appointments
			(id, tenant_id, service_id, staff_id, client_name, client_email, client_phone,
			 date, time, duration_minutes, status, notes, google_event_id, created_at)
		VALUES (?, (SELECT tenant_id FROM session_tenant), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ServiceID, a.StaffID, a.ClientName, a.ClientEmail, a.ClientPhone,
		a.Date, a.Time, a.DurationMinutes, a.Status, a.Notes, a.GoogleEventID,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func GetAppointment(ctx context.Context, q Querier, id string) (Appointment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, service_id, staff_id, client_name, client_email, client_phone,
		       date, time, duration_minutes, status, notes, google_event_id, created_at
		FROM appointments
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant) AND id = ?`, id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return Appointment{}, fmt.Errorf("%w: appointment %s", apperr.ErrNotFound, id)
	}
	return a, err
}

// ListStaffAppointments returns a staff member's non-cancelled
// appointments on the given date. The overlap check runs over this set.
func ListStaffAppointments(ctx context.Context, q Querier, staffID, date string) ([]Appointment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, service_id, staff_id, client_name, client_email, client_phone,
		       date, time, duration_minutes, status, notes, google_event_id, created_at
		FROM appointments
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)
		  AND staff_id = ? AND date = ? AND status != 'cancelled'
		ORDER BY time ASC`, staffID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListAppointmentsByDate returns the workspace's appointments for a date,
// regardless of staff.
func ListAppointmentsByDate(ctx context.Context, q Querier, date string) ([]Appointment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, service_id, staff_id, client_name, client_email, client_phone,
		       date, time, duration_minutes, status, notes, google_event_id, created_at
		FROM appointments
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant) AND date = ?
		ORDER BY time ASC, staff_id ASC`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// CancelAppointment marks a confirmed appointment cancelled. It reports
// apperr.ErrNotFound when the appointment does not exist in the bound
// workspace and apperr.ErrConflict when it is already cancelled.
func CancelAppointment(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE appointments SET status = 'cancelled'
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)
		  AND id = ? AND status = 'confirmed'`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	if _, err := GetAppointment(ctx, q, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: appointment %s is already cancelled", apperr.ErrConflict, id)
}

// CountAppointments reports the number of appointment rows in the bound
// workspace. Used by tests to verify replay creates no extra rows.
func CountAppointments(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE tenant_id = (SELECT tenant_id FROM session_tenant)`,
	).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var a Appointment
	var createdAt string
	err := row.Scan(&a.ID, &a.ServiceID, &a.StaffID, &a.ClientName, &a.ClientEmail,
		&a.ClientPhone, &a.Date, &a.Time, &a.DurationMinutes, &a.Status, &a.Notes,
		&a.GoogleEventID, &createdAt)
	if err != nil {
		return Appointment{}, err
	}
	a.CreatedAt = parseTimestamp(createdAt)
	return a, nil
}

func collectAppointments(rows *sql.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
