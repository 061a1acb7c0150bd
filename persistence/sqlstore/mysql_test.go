package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgtx/component"
	"msgtx/persistence/sqlstore"
	"msgtx/tranid"
	"msgtx/txmanager"
	"msgtx/txtest"
)

func mockStore(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlstore.New(db, sqlstore.MySQL, false), mock
}

func mustID(t *testing.T, gtrid string) tranid.PersistentTranID {
	t.Helper()
	id, err := tranid.New(7, []byte(gtrid), nil)
	require.NoError(t, err)
	return id
}

func TestMySQLDSN(t *testing.T) {
	dsn := sqlstore.MySQLConfig{
		Addr:     "db:3306",
		User:     "msgtx",
		Password: "secret",
		Database: "store",
	}.DSN()
	assert.True(t, strings.HasPrefix(dsn, "msgtx:secret@tcp(db:3306)/store"), dsn)
}

func TestMySQLMigrate(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS transactions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS work_items").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLPrepare(t *testing.T) {
	s, mock := mockStore(t)
	id := mustID(t, "p")
	tx := fakeTx{
		id:    id,
		typ:   txmanager.Global,
		items: []component.WorkItem{&txtest.Message{Body: []byte("m")}, component.NopWorkItem{}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM work_items").WithArgs(id.String()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM transactions").WithArgs(id.String()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(id.String(), "GLOBAL", sqlstore.StatePrepared, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO work_items").WithArgs(id.String(), 0, []byte("m")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Prepare(context.Background(), tx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLPrepareFailureRollsBackStoreTx(t *testing.T) {
	s, mock := mockStore(t)
	id := mustID(t, "f")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM work_items").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Prepare(context.Background(), fakeTx{id: id, typ: txmanager.Global})
	require.Error(t, err)
	assert.False(t, txmanager.IsSevere(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSecondPhase(t *testing.T) {
	s, mock := mockStore(t)
	id := mustID(t, "c")

	mock.ExpectExec("UPDATE transactions SET state").
		WithArgs(sqlstore.StateCommitted, sqlmock.AnyArg(), id.String(), sqlstore.StatePrepared).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Commit(context.Background(), fakeTx{id: id}, false))

	mock.ExpectExec("UPDATE transactions SET state").WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.Commit(context.Background(), fakeTx{id: id}, false)
	assert.ErrorIs(t, err, sqlstore.ErrNotPrepared)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLostConnectionIsSevere(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("UPDATE transactions SET state").WillReturnError(sql.ErrConnDone)

	err := s.Commit(context.Background(), fakeTx{id: mustID(t, "x")}, false)
	require.Error(t, err)
	assert.True(t, txmanager.IsSevere(err))
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestMySQLReadIndoubtXids(t *testing.T) {
	s, mock := mockStore(t)
	a, b := mustID(t, "a"), mustID(t, "b")

	rows := sqlmock.NewRows([]string{"tran_id"}).
		AddRow(a.String()).
		AddRow("garbage").
		AddRow(b.String())
	mock.ExpectQuery("SELECT tran_id FROM transactions").WithArgs(sqlstore.StatePrepared).WillReturnRows(rows)

	ids, err := s.ReadIndoubtXids(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []tranid.PersistentTranID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
