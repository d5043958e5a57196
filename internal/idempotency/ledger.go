// Package idempotency guards side-effecting actions against replays. A
// ledger row per (tenant, fingerprint) records whether the action is in
// progress, succeeded, or definitively failed; the UNIQUE constraint on
// that pair is the sole serialization point across process instances.
package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkravets/agenda/internal/storage"
)

// State classifies what Begin found for a fingerprint.
type State int

const (
	// Fresh: no prior record; a pending row was inserted in the
	// caller's transaction and the caller may perform the side effect.
	Fresh State = iota
	// InFlight: a pending record exists; another execution is running
	// (or crashed before finalizing and awaits reconciliation).
	InFlight
	// Done: a prior execution finished; Result or ErrorDetail holds
	// the recorded outcome and the side effect must not run again.
	Done
)

// Outcome is the result of Begin.
type Outcome struct {
	State       State
	Status      string          // "completed" or "failed" when State == Done
	Result      json.RawMessage // stored result payload for completed records
	ErrorDetail string          // stored error for failed records
	CreatedAt   time.Time
}

// Begin claims the fingerprint inside the caller's transaction. The
// pending insert commits or rolls back together with the side effect, so
// a concurrent caller observes InFlight or Done, never a second Fresh.
func Begin(ctx context.Context, tx *storage.TenantTx, fingerprint string) (Outcome, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_ledger (tenant_id, fingerprint, status, created_at, updated_at)
		VALUES ((SELECT tenant_id FROM session_tenant), ?, 'pending', ?, ?)
		ON CONFLICT (tenant_id, fingerprint) DO NOTHING`,
		fingerprint, now, now,
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("claiming fingerprint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Outcome{}, err
	}
	if n == 1 {
		return Outcome{State: Fresh}, nil
	}

	var status string
	var result, errorDetail sql.NullString
	var createdAt string
	err = tx.QueryRowContext(ctx, `
		SELECT status, result_json, error_detail, created_at
		FROM idempotency_ledger
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant) AND fingerprint = ?`,
		fingerprint,
	).Scan(&status, &result, &errorDetail, &createdAt)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading existing record: %w", err)
	}

	out := Outcome{
		Status:      status,
		ErrorDetail: errorDetail.String,
		CreatedAt:   parseTime(createdAt),
	}
	if result.Valid {
		out.Result = json.RawMessage(result.String)
	}
	if status == "pending" {
		out.State = InFlight
	} else {
		out.State = Done
	}
	return out, nil
}

// Complete transitions pending -> completed, recording the result. The
// guard on status makes the transition happen at most once.
func Complete(ctx context.Context, tx *storage.TenantTx, fingerprint string, result json.RawMessage) error {
	return finalize(ctx, tx, fingerprint, "completed", string(result), "")
}

// Fail transitions pending -> failed, recording the error. A failed
// record still blocks re-execution: replays return the recorded failure.
func Fail(ctx context.Context, tx *storage.TenantTx, fingerprint string, detail string) error {
	return finalize(ctx, tx, fingerprint, "failed", "", detail)
}

func finalize(ctx context.Context, tx *storage.TenantTx, fingerprint, status, result, detail string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
		UPDATE idempotency_ledger
		SET status = ?, result_json = ?, error_detail = ?, updated_at = ?
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)
		  AND fingerprint = ? AND status = 'pending'`,
		status, nullIfEmpty(result), nullIfEmpty(detail), now, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("finalizing record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("fingerprint %s is not pending", fingerprint)
	}
	return nil
}

// StaleRecord identifies a pending ledger row past the staleness window.
type StaleRecord struct {
	Fingerprint string
	CreatedAt   time.Time
}

// ListStalePending returns pending records older than the staleness
// window for the bound workspace. Reconciliation policy itself lives
// outside this core; this is the data hook it needs.
func ListStalePending(ctx context.Context, q storage.Querier, olderThan time.Duration) ([]StaleRecord, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	rows, err := q.QueryContext(ctx, `
		SELECT fingerprint, created_at FROM idempotency_ledger
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)
		  AND status = 'pending' AND created_at < ?
		ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []StaleRecord
	for rows.Next() {
		var rec StaleRecord
		var createdAt string
		if err := rows.Scan(&rec.Fingerprint, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(createdAt)
		stale = append(stale, rec)
	}
	return stale, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
