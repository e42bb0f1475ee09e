package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/repos/ledger"
)

const creditSourceKey = "ledger_entries_credit_source_key"

const entryColumns = `id, account_id, kind, amount, balance_after, source_action, source_id, description, created_at`

var _ ledger.Ledger = (*ledgerRepo)(nil)

type ledgerRepo struct{ db *sql.DB }

func New(db *sql.DB) *ledgerRepo {
	return &ledgerRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var e ledger.Entry

	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.BalanceAfter,
		&e.SourceAction, &e.SourceID, &e.Description, &e.CreatedAt)

	return e, err
}

func (r *ledgerRepo) Record(tx *sql.Tx, e ledger.Entry) (ledger.Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	err := tx.QueryRow(`
		INSERT INTO ledger_entries (id, account_id, kind, amount, balance_after, source_action, source_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Kind, e.Amount, e.BalanceAfter, e.SourceAction, e.SourceID, e.Description).
		Scan(&e.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err, creditSourceKey) {
			return ledger.Entry{}, ledger.ErrDuplicateEntry
		}

		return ledger.Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	return e, nil
}

func (r *ledgerRepo) FindCredit(tx *sql.Tx, sourceAction, sourceID string) (ledger.Entry, error) {
	e, err := scanEntry(tx.QueryRow(`
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE source_action = $1
		  AND source_id = $2
		  AND kind IN ('EARNED', 'PURCHASED')
	`, sourceAction, sourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, ledger.ErrEntryNotFound
		}

		return ledger.Entry{}, fmt.Errorf("find credit entry: %w", err)
	}

	return e, nil
}

func (r *ledgerRepo) FindSpend(tx *sql.Tx, accountID, sourceAction, sourceID string) (ledger.Entry, error) {
	e, err := scanEntry(tx.QueryRow(`
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		  AND source_action = $2
		  AND source_id = $3
		  AND kind = 'SPENT'
		ORDER BY created_at DESC
		LIMIT 1
	`, accountID, sourceAction, sourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, ledger.ErrEntryNotFound
		}

		return ledger.Entry{}, fmt.Errorf("find spend entry: %w", err)
	}

	return e, nil
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID string, f ledger.Filter, p ledger.Page) ([]ledger.Entry, int, error) {
	where, args := filterClause(accountID, f)

	var total int

	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM ledger_entries WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	args = append(args, p.Size, p.Offset())
	limit := "$" + strconv.Itoa(len(args)-1)
	offset := "$" + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]ledger.Entry, 0, p.Size)

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ledger entry: %w", err)
		}

		entries = append(entries, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, 0, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, total, nil
}

func filterClause(accountID string, f ledger.Filter) (string, []any) {
	conds := []string{"account_id = $1"}
	args := []any{accountID}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}

	if f.SourceAction != "" {
		add("source_action = $%d", f.SourceAction)
	}

	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}

	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	return strings.Join(conds, " AND "), args
}

const sumQuery = `
	SELECT COALESCE(SUM(amount), 0)
	FROM ledger_entries
	WHERE account_id = $1
`

func (r *ledgerRepo) Sum(ctx context.Context, accountID string) (int64, error) {
	var sum int64

	err := r.db.QueryRowContext(ctx, sumQuery, accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}

	return sum, nil
}

func (r *ledgerRepo) SumTx(tx *sql.Tx, accountID string) (int64, error) {
	var sum int64

	err := tx.QueryRow(sumQuery, accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}

	return sum, nil
}

func (r *ledgerRepo) Totals(ctx context.Context, accountID string, since time.Time) ([]ledger.KindTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, count(*), COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1
		  AND created_at >= $2
		GROUP BY kind
		ORDER BY kind
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("ledger totals: %w", err)
	}
	defer rows.Close()

	var out []ledger.KindTotal

	for rows.Next() {
		var kt ledger.KindTotal

		err := rows.Scan(&kt.Kind, &kt.Count, &kt.Amount)
		if err != nil {
			return nil, fmt.Errorf("scan ledger total: %w", err)
		}

		out = append(out, kt)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate ledger totals: %w", err)
	}

	return out, nil
}
