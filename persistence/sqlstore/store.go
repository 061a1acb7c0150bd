// Package sqlstore is a persistence manager keeping transaction outcomes and
// work item payloads in SQLite or MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"msgtx/component"
	"msgtx/log"
	"msgtx/tranid"
	"msgtx/txmanager"
)

// Row states.
const (
	StatePrepared  = "prepared"
	StateCommitted = "committed"
)

var ErrNotPrepared = errors.New("sqlstore: no prepared transaction")

// Store implements txmanager.PersistenceManager and txmanager.InDoubtReader.
type Store struct {
	db          *sql.DB
	dialect     Dialect
	supports1PC bool
	closed      atomic.Bool
}

var (
	_ txmanager.PersistenceManager = (*Store)(nil)
	_ txmanager.InDoubtReader      = (*Store)(nil)
)

// New wraps an already opened database. The schema is not touched.
func New(db *sql.DB, dialect Dialect, supports1PC bool) *Store {
	return &Store{db: db, dialect: dialect, supports1PC: supports1PC}
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Supports1PCOptimisation() bool { return s.supports1PC }

func (s *Store) BeforeCompletion(context.Context, txmanager.PersistentTransaction) error {
	return nil
}

// Prepare writes the transaction row as prepared together with the payload of
// every persistable work item.
func (s *Store) Prepare(ctx context.Context, tx txmanager.PersistentTransaction) error {
	return s.write(ctx, tx, StatePrepared)
}

// Commit writes a committed row directly in one phase, and flips the prepared
// row otherwise.
func (s *Store) Commit(ctx context.Context, tx txmanager.PersistentTransaction, onePhase bool) error {
	if onePhase {
		return s.write(ctx, tx, StateCommitted)
	}
	id := tx.PersistentTranID()
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET state = ?, updated_at = ? WHERE tran_id = ? AND state = ?",
		StateCommitted, time.Now().UnixNano(), id.String(), StatePrepared)
	if err != nil {
		return s.classify("commit", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.classify("commit", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotPrepared, id)
	}
	log.L().Debug("transaction committed", zap.Stringer("tran_id", id))
	return nil
}

// Rollback deletes whatever was written for the transaction.
func (s *Store) Rollback(ctx context.Context, tx txmanager.PersistentTransaction) error {
	id := tx.PersistentTranID().String()
	return s.inTx(ctx, "rollback", func(stx *sql.Tx) error {
		if _, err := stx.ExecContext(ctx, "DELETE FROM work_items WHERE tran_id = ?", id); err != nil {
			return err
		}
		_, err := stx.ExecContext(ctx, "DELETE FROM transactions WHERE tran_id = ?", id)
		return err
	})
}

func (s *Store) AfterCompletion(context.Context, txmanager.PersistentTransaction, bool) error {
	return nil
}

// ReadIndoubtXids lists the transactions left prepared.
func (s *Store) ReadIndoubtXids(ctx context.Context) ([]tranid.PersistentTranID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tran_id FROM transactions WHERE state = ? ORDER BY tran_id", StatePrepared)
	if err != nil {
		return nil, s.classify("read in-doubt", err)
	}
	defer rows.Close()

	var ids []tranid.PersistentTranID
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, s.classify("read in-doubt", err)
		}
		id, err := tranid.Parse(text)
		if err != nil {
			log.L().Warn("skipping unreadable transaction id", zap.String("tran_id", text), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("read in-doubt", err)
	}
	return ids, nil
}

// State returns the stored state of id, or "" when nothing is stored.
func (s *Store) State(ctx context.Context, id tranid.PersistentTranID) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM transactions WHERE tran_id = ?", id.String()).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", s.classify("state", err)
	}
	return state, nil
}

// Payloads returns the stored work item payloads of id in enlistment order.
func (s *Store) Payloads(ctx context.Context, id tranid.PersistentTranID) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM work_items WHERE tran_id = ? ORDER BY seq", id.String())
	if err != nil {
		return nil, s.classify("payloads", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			return nil, s.classify("payloads", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) write(ctx context.Context, tx txmanager.PersistentTransaction, state string) error {
	id := tx.PersistentTranID().String()
	items := tx.WorkList()
	return s.inTx(ctx, state, func(stx *sql.Tx) error {
		if _, err := stx.ExecContext(ctx, "DELETE FROM work_items WHERE tran_id = ?", id); err != nil {
			return err
		}
		if _, err := stx.ExecContext(ctx, "DELETE FROM transactions WHERE tran_id = ?", id); err != nil {
			return err
		}
		if _, err := stx.ExecContext(ctx,
			"INSERT INTO transactions (tran_id, tran_type, state, work_count, updated_at) VALUES (?, ?, ?, ?, ?)",
			id, tx.TransactionType().String(), state, len(items), time.Now().UnixNano()); err != nil {
			return err
		}
		for seq, item := range items {
			p, ok := item.(component.Persistable)
			if !ok {
				continue
			}
			if _, err := stx.ExecContext(ctx,
				"INSERT INTO work_items (tran_id, seq, payload) VALUES (?, ?, ?)",
				id, seq, p.Payload()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	stx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(op, err)
	}
	if err := fn(stx); err != nil {
		if rbErr := stx.Rollback(); rbErr != nil {
			log.L().Warn("rollback of store transaction failed", zap.String("op", op), zap.Error(rbErr))
		}
		return s.classify(op, err)
	}
	if err := stx.Commit(); err != nil {
		return s.classify(op, err)
	}
	return nil
}

// classify marks failures of the connection itself as severe: nothing written
// through it can be trusted to have been undone.
func (s *Store) classify(op string, err error) error {
	err = fmt.Errorf("sqlstore %s: %w", op, err)
	if s.closed.Load() || errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return txmanager.Severe(err)
	}
	return err
}
