package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row abstracts pgx.Row for testability.
type Row interface {
	Scan(dest ...any) error
}

// Rows abstracts pgx.Rows for testability.
type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// CommandTag abstracts the result of Exec calls.
type CommandTag interface {
	RowsAffected() int64
}

// DBConn provides the minimum query surface for services.
type DBConn interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Tx mirrors the transaction methods used by services.
type Tx interface {
	DBConn
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB adds transaction support on top of DBConn.
type DB interface {
	DBConn
	Begin(ctx context.Context) (Tx, error)
}

type pgxPoolLike interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolAdapter wraps *pgxpool.Pool to satisfy DB.
type PoolAdapter struct {
	pool pgxPoolLike
}

// NewPoolAdapter builds a DB adapter around a pgx pool.
func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	return &PoolAdapter{pool: pool}
}

func (p *PoolAdapter) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	return commandTagAdapter{tag: tag}, err
}

func (p *PoolAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rowsAdapter{rows: rows}, nil
}

func (p *PoolAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *PoolAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txAdapter{tx: tx}, nil
}

type txAdapter struct {
	tx pgx.Tx
}

func (t *txAdapter) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	return commandTagAdapter{tag: tag}, err
}

func (t *txAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rowsAdapter{rows: rows}, nil
}

func (t *txAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *txAdapter) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txAdapter) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type rowsAdapter struct {
	rows pgx.Rows
}

func (r rowsAdapter) Close() {
	r.rows.Close()
}

func (r rowsAdapter) Err() error {
	return r.rows.Err()
}

func (r rowsAdapter) Next() bool {
	return r.rows.Next()
}

func (r rowsAdapter) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

type commandTagAdapter struct {
	tag pgconn.CommandTag
}

func (c commandTagAdapter) RowsAffected() int64 {
	return c.tag.RowsAffected()
}

// TimeoutDB bounds every store call by timeout and reports failures as
// *GatewayError. pgx.ErrNoRows passes through untouched.
type TimeoutDB struct {
	db      DB
	timeout time.Duration
}

func NewTimeoutDB(db DB, timeout time.Duration) *TimeoutDB {
	return &TimeoutDB{db: db, timeout: timeout}
}

func (t *TimeoutDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func gatewayErr(op string, err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

func (t *TimeoutDB) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return timedExec(ctx, t, t.db, sql, args)
}

func (t *TimeoutDB) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return timedQuery(ctx, t, t.db, sql, args)
}

func (t *TimeoutDB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return timedQueryRow(ctx, t, t.db, sql, args)
}

func (t *TimeoutDB) Begin(ctx context.Context) (Tx, error) {
	cctx, cancel := t.withTimeout(ctx)
	defer cancel()
	tx, err := t.db.Begin(cctx)
	if err != nil {
		return nil, gatewayErr("begin transaction", err)
	}
	return &timeoutTx{tx: tx, parent: t}, nil
}

type timeoutTx struct {
	tx     Tx
	parent *TimeoutDB
}

func (t *timeoutTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return timedExec(ctx, t.parent, t.tx, sql, args)
}

func (t *timeoutTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return timedQuery(ctx, t.parent, t.tx, sql, args)
}

func (t *timeoutTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return timedQueryRow(ctx, t.parent, t.tx, sql, args)
}

func (t *timeoutTx) Commit(ctx context.Context) error {
	cctx, cancel := t.parent.withTimeout(ctx)
	defer cancel()
	return gatewayErr("commit", t.tx.Commit(cctx))
}

func (t *timeoutTx) Rollback(ctx context.Context) error {
	cctx, cancel := t.parent.withTimeout(ctx)
	defer cancel()
	return gatewayErr("rollback", t.tx.Rollback(cctx))
}

func timedExec(ctx context.Context, t *TimeoutDB, conn DBConn, sql string, args []any) (CommandTag, error) {
	cctx, cancel := t.withTimeout(ctx)
	defer cancel()
	tag, err := conn.Exec(cctx, sql, args...)
	return tag, gatewayErr("exec", err)
}

func timedQuery(ctx context.Context, t *TimeoutDB, conn DBConn, sql string, args []any) (Rows, error) {
	cctx, cancel := t.withTimeout(ctx)
	rows, err := conn.Query(cctx, sql, args...)
	if err != nil {
		cancel()
		return nil, gatewayErr("query", err)
	}
	return &timeoutRows{Rows: rows, cancel: cancel}, nil
}

func timedQueryRow(ctx context.Context, t *TimeoutDB, conn DBConn, sql string, args []any) Row {
	cctx, cancel := t.withTimeout(ctx)
	return &timeoutRow{row: conn.QueryRow(cctx, sql, args...), cancel: cancel}
}

// timeoutRows releases its deadline when closed.
type timeoutRows struct {
	Rows
	cancel context.CancelFunc
}

func (r *timeoutRows) Close() {
	r.Rows.Close()
	r.cancel()
}

func (r *timeoutRows) Err() error {
	return gatewayErr("read rows", r.Rows.Err())
}

func (r *timeoutRows) Scan(dest ...any) error {
	return gatewayErr("scan", r.Rows.Scan(dest...))
}

type timeoutRow struct {
	row    Row
	cancel context.CancelFunc
}

func (r *timeoutRow) Scan(dest ...any) error {
	defer r.cancel()
	return gatewayErr("query row", r.row.Scan(dest...))
}
