package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// Postgres persists custodians and ledger entries in PostgreSQL.
// Use NewPostgres for autocommit access and NewPostgresTx inside a
// transaction started by PostgresTxRunner.
type Postgres struct {
	q querier
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{q: db} }

func NewPostgresTx(tx *sql.Tx) *Postgres { return &Postgres{q: tx} }

// uniqueViolation is the class 23 code pq reports when an index rejects a
// duplicate row.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *Postgres) CreateCustodian(ctx context.Context, c *Custodian) error {
	var owner any
	if !c.OwnerID.IsNil() {
		owner = uuid.UUID(c.OwnerID)
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO custodians (id, name, kind, owner_id, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(c.ID), c.Name, string(c.Kind), owner, c.Balance, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert custodian: %w", err)
	}
	return nil
}

func (s *Postgres) scanCustodian(row *sql.Row) (*Custodian, error) {
	var c Custodian
	var id uuid.UUID
	var kind string
	var owner sql.Null[uuid.UUID]
	err := row.Scan(&id, &c.Name, &kind, &owner, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan custodian: %w", err)
	}
	c.ID = domain.CustodianID(id)
	c.Kind = domain.CustodianKind(kind)
	if owner.Valid {
		c.OwnerID = domain.ActorID(owner.V)
	}
	return &c, nil
}

const custodianColumns = `id, name, kind, owner_id, balance, created_at`

func (s *Postgres) GetCustodian(ctx context.Context, id domain.CustodianID) (*Custodian, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+custodianColumns+` FROM custodians WHERE id = $1`, uuid.UUID(id))
	return s.scanCustodian(row)
}

func (s *Postgres) FindPersonalCustodian(ctx context.Context, owner domain.ActorID) (*Custodian, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+custodianColumns+` FROM custodians WHERE kind = 'personal' AND owner_id = $1`,
		uuid.UUID(owner))
	return s.scanCustodian(row)
}

func (s *Postgres) ListCustodians(ctx context.Context) ([]*Custodian, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+custodianColumns+` FROM custodians ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list custodians: %w", err)
	}
	defer rows.Close()

	var out []*Custodian
	for rows.Next() {
		var c Custodian
		var id uuid.UUID
		var kind string
		var owner sql.Null[uuid.UUID]
		if err := rows.Scan(&id, &c.Name, &kind, &owner, &c.Balance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custodian: %w", err)
		}
		c.ID = domain.CustodianID(id)
		c.Kind = domain.CustodianKind(kind)
		if owner.Valid {
			c.OwnerID = domain.ActorID(owner.V)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Postgres) AdjustBalance(ctx context.Context, id domain.CustodianID, delta int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE custodians SET balance = balance + $2 WHERE id = $1`, uuid.UUID(id), delta)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const txColumns = `id, custodian_id, quantity, tx_date, label, counterpart_id, counterpart_tx_id, created_at`

func (s *Postgres) AppendTransaction(ctx context.Context, tx *StockTransaction) error {
	var counterpart, counterpartTx any
	if tx.CounterpartID != nil {
		counterpart = uuid.UUID(*tx.CounterpartID)
	}
	if tx.CounterpartTxID != nil {
		counterpartTx = uuid.UUID(*tx.CounterpartTxID)
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO stock_transactions (id, custodian_id, quantity, tx_date, label, counterpart_id, counterpart_tx_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(tx.ID), uuid.UUID(tx.CustodianID), tx.Quantity, tx.Date, tx.Label, counterpart, counterpartTx, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func scanTransaction(scan func(dest ...any) error) (*StockTransaction, error) {
	var t StockTransaction
	var id, custodianID uuid.UUID
	var counterpart, counterpartTx sql.Null[uuid.UUID]
	err := scan(&id, &custodianID, &t.Quantity, &t.Date, &t.Label, &counterpart, &counterpartTx, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.ID = domain.TransactionID(id)
	t.CustodianID = domain.CustodianID(custodianID)
	if counterpart.Valid {
		cid := domain.CustodianID(counterpart.V)
		t.CounterpartID = &cid
	}
	if counterpartTx.Valid {
		tid := domain.TransactionID(counterpartTx.V)
		t.CounterpartTxID = &tid
	}
	return &t, nil
}

func (s *Postgres) GetTransaction(ctx context.Context, id domain.TransactionID) (*StockTransaction, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM stock_transactions WHERE id = $1`, uuid.UUID(id))
	return scanTransaction(row.Scan)
}

func (s *Postgres) DeleteTransaction(ctx context.Context, id domain.TransactionID) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM stock_transactions WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) listTransactions(ctx context.Context, query string, args ...any) ([]*StockTransaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*StockTransaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) ListTransactions(ctx context.Context) ([]*StockTransaction, error) {
	return s.listTransactions(ctx,
		`SELECT `+txColumns+` FROM stock_transactions ORDER BY created_at`)
}

func (s *Postgres) ListByCustodian(ctx context.Context, id domain.CustodianID) ([]*StockTransaction, error) {
	return s.listTransactions(ctx,
		`SELECT `+txColumns+` FROM stock_transactions WHERE custodian_id = $1 ORDER BY created_at`,
		uuid.UUID(id))
}

// PostgresTxRunner implements TxRunner over database/sql transactions.
type PostgresTxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

const defaultTxTimeout = 5 * time.Second

func NewPostgresTxRunner(db *sql.DB) *PostgresTxRunner {
	return &PostgresTxRunner{db: db, timeout: defaultTxTimeout}
}

func (r *PostgresTxRunner) RunInTx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(NewPostgresTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}
