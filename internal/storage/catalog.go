package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkravets/agenda/internal/apperr"
)

// Catalog accessors for the per-workspace service and staff tables. Every
// statement resolves the active tenant from the session marker, never
// from a Go-side parameter.

func CreateService(ctx context.Context, q Querier, svc Service) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO services (id, tenant_id, name, duration_minutes, price_cents, created_at)
		VALUES (?, (SELECT tenant_id FROM session_tenant), ?, ?, ?, ?)`,
		svc.ID, svc.Name, svc.DurationMinutes, svc.PriceCents,
		svc.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func GetServiceByName(ctx context.Context, q Querier, name string) (Service, error) {
	var svc Service
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, price_cents, created_at
		FROM services
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant) AND name = ?`, name,
	).Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &createdAt)
	if err == sql.ErrNoRows {
		return Service{}, fmt.Errorf("%w: service %q", apperr.ErrNotFound, name)
	}
	if err != nil {
		return Service{}, err
	}
	svc.CreatedAt = parseTimestamp(createdAt)
	return svc, nil
}

func CreateStaff(ctx context.Context, q Querier, st Staff) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO staff (id, tenant_id, name, email, created_at)
		VALUES (?, (SELECT tenant_id FROM session_tenant), ?, ?, ?)`,
		st.ID, st.Name, st.Email, st.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func GetStaff(ctx context.Context, q Querier, id string) (Staff, error) {
	var st Staff
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM staff
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant) AND id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.Email, &createdAt)
	if err == sql.ErrNoRows {
		return Staff{}, fmt.Errorf("%w: staff %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return Staff{}, err
	}
	st.CreatedAt = parseTimestamp(createdAt)
	return st, nil
}

// ListStaff returns the workspace's staff ordered by name, which makes
// automatic assignment deterministic.
func ListStaff(ctx context.Context, q Querier) ([]Staff, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, email, created_at
		FROM staff
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)
		ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Staff
	for rows.Next() {
		var st Staff
		var createdAt string
		if err := rows.Scan(&st.ID, &st.Name, &st.Email, &createdAt); err != nil {
			return nil, err
		}
		st.CreatedAt = parseTimestamp(createdAt)
		result = append(result, st)
	}
	return result, rows.Err()
}

// parseTimestamp tolerates malformed stored timestamps by returning the
// zero time; timestamps here are informational, not behavioral.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
