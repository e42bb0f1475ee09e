package pgutils

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, e := tx.Exec("UPDATE accounts SET balance = balance + 1")
		return e
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("domain write failed")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.PanicsWithValue(t, "unpriced kind", func() {
		_ = WithTx(context.Background(), db, func(*sql.Tx) error { panic("unpriced kind") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTx_RetriesSerializationFailure(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conflict := &pgconn.PgError{Code: CodeSerializationFailure}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnError(conflict)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls, retries := 0, 0
	policy := RetryPolicy{Attempts: 3, Backoff: time.Millisecond, OnRetry: func(int, error) { retries++ }}

	err = WithRetryTx(context.Background(), db, policy, func(tx *sql.Tx) error {
		calls++
		_, e := tx.Exec("UPDATE accounts SET balance = balance - 1")
		return e
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTx_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts").WillReturnError(&pgconn.PgError{Code: CodeDeadlockDetected})
		mock.ExpectRollback()
	}

	err = WithRetryTx(context.Background(), db, RetryPolicy{Attempts: 2, Backoff: time.Millisecond}, func(tx *sql.Tx) error {
		_, e := tx.Exec("UPDATE accounts SET balance = balance - 1")
		return e
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetryTx_DoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnError(&pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "ledger_entries_credit_source_key"})
	mock.ExpectRollback()

	err = WithRetryTx(context.Background(), db, DefaultRetryPolicy, func(tx *sql.Tx) error {
		_, e := tx.Exec("INSERT INTO ledger_entries DEFAULT VALUES")
		return e
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, "ledger_entries_credit_source_key"))
	assert.False(t, IsUniqueViolation(err, "nominations_award_profile_key"))
	require.NoError(t, mock.ExpectationsWereMet())
}
