package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mkravets/agenda/internal/apperr"
	"github.com/mkravets/agenda/internal/idempotency"
	"github.com/mkravets/agenda/internal/storage"
)

// Executor applies actions exactly once per logical request. The pending
// ledger insert and the domain write share one transaction, so no partial
// state (a ledger row without its appointment, or the reverse) is ever
// observable.
type Executor struct {
	pool   *storage.Pool
	logger *slog.Logger
}

// NewExecutor creates an Executor over the given pool.
func NewExecutor(pool *storage.Pool) *Executor {
	return &Executor{pool: pool, logger: slog.Default()}
}

// Execute validates the action, binds a pooled session to the tenant and
// runs the idempotent execution flow. Replays of a finished fingerprint
// return the recorded outcome without touching domain tables; duplicates
// of an in-progress fingerprint fail with apperr.ErrInFlight.
func (e *Executor) Execute(ctx context.Context, tenantID string, action Action) (Result, error) {
	if err := action.Validate(); err != nil {
		return Result{}, err
	}

	conn, err := e.pool.Acquire(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	defer conn.Release()

	fp := idempotency.Fingerprint(tenantID, action.Name(), action.identity())

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	outcome, err := idempotency.Begin(ctx, tx, fp)
	if err != nil {
		return Result{}, err
	}

	switch outcome.State {
	case idempotency.InFlight:
		return Result{}, fmt.Errorf("%w: an identical request is being processed, retry later", apperr.ErrInFlight)

	case idempotency.Done:
		// Replay: side-effect free by construction. The deferred
		// rollback discards the read-only transaction.
		if outcome.Status == "failed" {
			e.logger.Debug("replaying recorded failure", "action", action.Name(), "fingerprint", fp)
			return Result{}, fmt.Errorf("%w: %s", apperr.ErrConflict, outcome.ErrorDetail)
		}
		var res Result
		if err := json.Unmarshal(outcome.Result, &res); err != nil {
			return Result{}, fmt.Errorf("decoding recorded result: %w", err)
		}
		e.logger.Info("replayed recorded result", "action", action.Name(), "appointment_id", res.AppointmentID)
		return res, nil
	}

	// Fresh: the pending row rides this transaction together with the
	// domain write.
	res, applyErr := action.apply(ctx, tx)
	if applyErr != nil {
		if errors.Is(applyErr, apperr.ErrConflict) {
			// A domain conflict is a definitive outcome: record it so
			// replays of the same fingerprint fail the same way. Only
			// the ledger row commits; no domain write has happened.
			if err := idempotency.Fail(ctx, tx, fp, applyErr.Error()); err != nil {
				return Result{}, err
			}
			if err := tx.Commit(); err != nil {
				return Result{}, fmt.Errorf("committing conflict record: %w", err)
			}
			return Result{}, applyErr
		}
		// Validation-class and infrastructure failures roll back fully,
		// pending row included, so an identical retry starts fresh.
		return Result{}, applyErr
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return Result{}, fmt.Errorf("encoding result: %w", err)
	}
	if err := idempotency.Complete(ctx, tx, fp, payload); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("committing action: %w", err)
	}

	e.logger.Info("action executed", "action", action.Name(), "workspace", tenantID, "appointment_id", res.AppointmentID)
	return res, nil
}
