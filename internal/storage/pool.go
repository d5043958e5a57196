package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mkravets/agenda/internal/apperr"
)

// Pool lends tenant-bound database sessions to request workers. It is an
// explicitly constructed, owned instance: build it at process start, pass
// it to the components that need it, close the Store at shutdown.
//
// Acquire hands out a *TenantConn only after the session-scoped tenant
// marker is installed, so code holding a handle can never run a
// tenant-scoped statement on an unbound session. The unbound state has no
// exported type.
type Pool struct {
	db             *sql.DB
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
}

// NewPool builds a Pool over the store's database with at most size
// concurrent tenant sessions. Acquire blocks up to acquireTimeout for a
// free slot before failing with apperr.ErrPoolExhausted.
func NewPool(store *Store, size int, acquireTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 4
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	// Two sessions beyond the tenant bound are left for the job queue
	// and migrations, which never touch tenant-scoped tables by marker.
	store.db.SetMaxOpenConns(size + 2)
	return &Pool{
		db:             store.db,
		sem:            semaphore.NewWeighted(int64(size)),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire borrows a dedicated session from the pool and binds it to the
// given tenant before returning it. The caller owns the session
// exclusively until Release.
func (p *Pool) Acquire(ctx context.Context, tenantID string) (*TenantConn, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid workspace id", apperr.ErrInvalidTenant, tenantID)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: no session available within %s", apperr.ErrPoolExhausted, p.acquireTimeout)
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("borrowing session: %w", err)
	}

	if err := bindTenant(ctx, conn, tenantID); err != nil {
		discard(conn)
		conn.Close()
		p.sem.Release(1)
		return nil, err
	}

	return &TenantConn{conn: conn, pool: p, tenantID: tenantID}, nil
}

// bindTenant installs the session-scoped tenant marker. Every
// tenant-scoped statement in this repo reads the active tenant from
// session_tenant rather than taking it as a bind parameter, so scoping is
// enforced in the statement layer: a handler bug cannot substitute a
// different tenant id per query.
func bindTenant(ctx context.Context, conn *sql.Conn, tenantID string) error {
	const script = `
		CREATE TEMP TABLE IF NOT EXISTS session_tenant (tenant_id TEXT NOT NULL);
		DELETE FROM session_tenant;
	`
	if _, err := conn.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("preparing tenant marker: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO session_tenant (tenant_id) VALUES (?)`, tenantID); err != nil {
		return fmt.Errorf("binding workspace %s: %w", tenantID, err)
	}
	return nil
}

// discard poisons a session so database/sql replaces it instead of
// returning it to circulation.
func discard(conn *sql.Conn) {
	conn.Raw(func(driverConn any) error {
		return driver.ErrBadConn
	})
}

// Querier is the tenant-scoped statement surface shared by TenantConn and
// TenantTx. Domain accessors accept it so the same SQL runs inside and
// outside transactions.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TenantConn is a pooled session bound to exactly one tenant. It is
// exclusively owned by its borrower; no two workers ever share one.
type TenantConn struct {
	conn     *sql.Conn
	pool     *Pool
	tenantID string
}

// TenantID returns the workspace this session is bound to.
func (c *TenantConn) TenantID() string {
	return c.tenantID
}

func (c *TenantConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *TenantConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *TenantConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction on the bound session. The tenant marker
// stays in effect for every statement inside it.
func (c *TenantConn) BeginTx(ctx context.Context) (*TenantTx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &TenantTx{tx: tx, tenantID: c.tenantID}, nil
}

// Release clears the tenant marker and returns the session to the pool.
// Safe to call multiple times; always invoked via defer so every exit
// path gives the slot back. A session whose marker cannot be cleared is
// discarded rather than recirculated.
func (c *TenantConn) Release() {
	if c.conn == nil {
		return
	}
	if _, err := c.conn.ExecContext(context.Background(), `DELETE FROM session_tenant`); err != nil {
		discard(c.conn)
	}
	c.conn.Close()
	c.conn = nil
	c.pool.sem.Release(1)
}

// TenantTx is a transaction on a tenant-bound session.
type TenantTx struct {
	tx       *sql.Tx
	tenantID string
}

// TenantID returns the workspace the transaction's session is bound to.
func (t *TenantTx) TenantID() string {
	return t.tenantID
}

func (t *TenantTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *TenantTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *TenantTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *TenantTx) Commit() error {
	return t.tx.Commit()
}

// Rollback is a no-op after Commit, so it can sit in a defer.
func (t *TenantTx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
