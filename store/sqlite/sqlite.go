/*
Package sqlite provides a SQLite-backed implementation of core.Repository.

PURPOSE:
  Persists accounts, historic operations, declared ranges, operation links
  and actualization runs in a single SQLite file.

INTERFACES IMPLEMENTED:
  core.AccountStore:  Accounts and operations
  core.ForecastStore: Planned operations and budgets
  core.LinkStore:     Operation links
  core.RunStore:      Scheduled actualization history

KEY TABLES:
  accounts:          Balance reference point per account
  operations:        Historic operations (ids allocated by the caller)
  ranges:            Planned operations and budgets, discriminated by kind
  operation_links:   One row per linked operation (UNIQUE operation_id)
  actualization_runs: One row per scheduled run

STORAGE FORMATS:
  - Amounts are decimal strings plus a currency column, never floats.
  - Dates are YYYY-MM-DD text.
  - Intervals are a start date, a duration, an optional period and an
    optional expiration. A NULL expiration means the range never ends.
  - A NULL approximation ratio means unbounded (budgets).

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode.

USAGE:
  store, err := sqlite.New("./data/forecast.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/budget-forecaster/core"
)

// Store implements core.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ core.Repository = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives as long as its connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		name TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY,
		account_name TEXT NOT NULL REFERENCES accounts(name) ON DELETE CASCADE,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		category TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operations_account_date
		ON operations(account_name, date);

	-- Planned operations and budgets share one id space
	CREATE TABLE IF NOT EXISTS ranges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL CHECK (kind IN ('planned_operation', 'budget')),
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		category TEXT NOT NULL,
		start_date TEXT NOT NULL,
		duration_years INTEGER NOT NULL DEFAULT 0,
		duration_months INTEGER NOT NULL DEFAULT 0,
		duration_days INTEGER NOT NULL DEFAULT 0,
		periodic INTEGER NOT NULL DEFAULT 0,
		period_years INTEGER NOT NULL DEFAULT 0,
		period_months INTEGER NOT NULL DEFAULT 0,
		period_days INTEGER NOT NULL DEFAULT 0,
		expiration_date TEXT,
		description_hints TEXT NOT NULL DEFAULT '[]',
		approximation_days INTEGER NOT NULL DEFAULT 0,
		approximation_ratio REAL
	);

	CREATE INDEX IF NOT EXISTS idx_ranges_kind ON ranges(kind);

	-- No foreign keys: links to deleted ranges or operations stay inert
	CREATE TABLE IF NOT EXISTS operation_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id INTEGER NOT NULL UNIQUE,
		target_kind TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		iteration_date TEXT NOT NULL,
		manual INTEGER NOT NULL DEFAULT 0,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_operation_links_target
		ON operation_links(target_kind, target_id);

	CREATE TABLE IF NOT EXISTS actualization_runs (
		id TEXT PRIMARY KEY,
		account_name TEXT NOT NULL,
		balance_date TEXT NOT NULL,
		ran_at TEXT NOT NULL,
		planned_count INTEGER NOT NULL,
		budget_count INTEGER NOT NULL,
		links_created INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actualization_runs_ran_at
		ON actualization_runs(ran_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS (core.AccountStore interface)
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, account core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (name, balance, currency, balance_date) VALUES (?, ?, ?, ?)`,
		account.Name, account.Balance.Value.String(), account.Balance.Currency, account.BalanceDate.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", core.ErrAccountExists, account.Name)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	if err := insertOperations(ctx, tx, account.Name, account.Operations); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetAccount(ctx context.Context, name string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccount(ctx, name)
}

func (s *Store) getAccount(ctx context.Context, name string) (core.Account, error) {
	var (
		acc         core.Account
		balance     string
		currency    string
		balanceDate string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, balance, currency, balance_date FROM accounts WHERE name = ?`, name,
	).Scan(&acc.Name, &balance, &currency, &balanceDate)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, name)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	if acc.Balance, err = core.ParseAmount(balance, currency); err != nil {
		return core.Account{}, err
	}
	if acc.BalanceDate, err = core.ParseDate(balanceDate); err != nil {
		return core.Account{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, amount, currency, category, date
		FROM operations WHERE account_name = ? ORDER BY date, id`, name)
	if err != nil {
		return core.Account{}, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return core.Account{}, err
		}
		acc.Operations = append(acc.Operations, op)
	}
	return acc, rows.Err()
}

func (s *Store) ListAccounts(ctx context.Context) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	accounts := make([]core.Account, 0, len(names))
	for _, name := range names {
		acc, err := s.getAccount(ctx, name)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func (s *Store) UpdateBalance(ctx context.Context, name string, balance core.Amount, at core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, currency = ?, balance_date = ? WHERE name = ?`,
		balance.Value.String(), balance.Currency, at.String(), name,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %s", core.ErrAccountNotFound, name))
}

func (s *Store) AddOperations(ctx context.Context, account string, ops []core.HistoricOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE name = ?`, account).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, account)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertOperations(ctx, tx, account, ops); err != nil {
		return err
	}
	return tx.Commit()
}

func insertOperations(ctx context.Context, tx *sql.Tx, account string, ops []core.HistoricOperation) error {
	for _, op := range ops {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO operations (id, account_name, description, amount, currency, category, date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			op.ID, account, op.Description, op.Amount.Value.String(), op.Amount.Currency,
			string(op.Category), op.Date.String(),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: %d", core.ErrDuplicateOperation, op.ID)
			}
			return fmt.Errorf("failed to insert operation %d: %w", op.ID, err)
		}
	}
	return nil
}

func (s *Store) UpdateOperation(ctx context.Context, account string, op core.HistoricOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE operations SET description = ?, amount = ?, currency = ?, category = ?, date = ?
		WHERE id = ? AND account_name = ?`,
		op.Description, op.Amount.Value.String(), op.Amount.Currency, string(op.Category), op.Date.String(),
		op.ID, account,
	)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %d", core.ErrOperationNotFound, op.ID))
}

func (s *Store) MaxOperationID(ctx context.Context) (core.OperationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM operations`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read max operation id: %w", err)
	}
	return core.OperationID(id.Int64), nil
}

func scanOperation(rows *sql.Rows) (core.HistoricOperation, error) {
	var (
		op       core.HistoricOperation
		amount   string
		currency string
		category string
		date     string
	)
	if err := rows.Scan(&op.ID, &op.Description, &amount, &currency, &category, &date); err != nil {
		return op, fmt.Errorf("failed to scan operation: %w", err)
	}
	var err error
	if op.Amount, err = core.ParseAmount(amount, currency); err != nil {
		return op, err
	}
	if op.Date, err = core.ParseDate(date); err != nil {
		return op, err
	}
	op.Category = core.Category(category)
	return op, nil
}

// =============================================================================
// RANGES (core.ForecastStore interface)
// =============================================================================

const rangeColumns = `id, kind, description, amount, currency, category, start_date,
	duration_years, duration_months, duration_days,
	periodic, period_years, period_months, period_days, expiration_date,
	description_hints, approximation_days, approximation_ratio`

type rangeRow struct {
	id   core.RangeID
	kind core.RangeKind
	rng  core.OperationRange
}

func (s *Store) AddPlannedOperation(ctx context.Context, p core.PlannedOperation) (core.PlannedOperation, error) {
	id, err := s.insertRange(ctx, core.KindPlannedOperation, p.OperationRange)
	if err != nil {
		return core.PlannedOperation{}, err
	}
	p.ID = id
	return p, nil
}

func (s *Store) UpdatePlannedOperation(ctx context.Context, p core.PlannedOperation) error {
	return s.updateRange(ctx, core.KindPlannedOperation, p.ID, p.OperationRange)
}

func (s *Store) DeletePlannedOperation(ctx context.Context, id core.RangeID) error {
	return s.deleteRange(ctx, core.KindPlannedOperation, id)
}

func (s *Store) GetPlannedOperation(ctx context.Context, id core.RangeID) (core.PlannedOperation, error) {
	row, err := s.getRange(ctx, core.KindPlannedOperation, id)
	if err != nil {
		return core.PlannedOperation{}, err
	}
	return core.PlannedOperation{ID: row.id, OperationRange: row.rng}, nil
}

func (s *Store) AddBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	id, err := s.insertRange(ctx, core.KindBudget, b.OperationRange)
	if err != nil {
		return core.Budget{}, err
	}
	b.ID = id
	return b, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b core.Budget) error {
	return s.updateRange(ctx, core.KindBudget, b.ID, b.OperationRange)
}

func (s *Store) DeleteBudget(ctx context.Context, id core.RangeID) error {
	return s.deleteRange(ctx, core.KindBudget, id)
}

func (s *Store) GetBudget(ctx context.Context, id core.RangeID) (core.Budget, error) {
	row, err := s.getRange(ctx, core.KindBudget, id)
	if err != nil {
		return core.Budget{}, err
	}
	return core.Budget{ID: row.id, OperationRange: row.rng}, nil
}

func (s *Store) Forecast(ctx context.Context) (core.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+rangeColumns+` FROM ranges ORDER BY id`)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("failed to query ranges: %w", err)
	}
	defer rows.Close()

	var f core.Forecast
	for rows.Next() {
		row, err := scanRange(rows)
		if err != nil {
			return core.Forecast{}, err
		}
		switch row.kind {
		case core.KindPlannedOperation:
			f.PlannedOperations = append(f.PlannedOperations, core.PlannedOperation{ID: row.id, OperationRange: row.rng})
		case core.KindBudget:
			f.Budgets = append(f.Budgets, core.Budget{ID: row.id, OperationRange: row.rng})
		}
	}
	return f, rows.Err()
}

func (s *Store) insertRange(ctx context.Context, kind core.RangeKind, r core.OperationRange) (core.RangeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := rangeArgs(r)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ranges (kind, description, amount, currency, category, start_date,
			duration_years, duration_months, duration_days,
			periodic, period_years, period_months, period_days, expiration_date,
			description_hints, approximation_days, approximation_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{string(kind)}, args...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return core.RangeID(id), nil
}

func (s *Store) updateRange(ctx context.Context, kind core.RangeKind, id core.RangeID, r core.OperationRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := rangeArgs(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ranges SET description = ?, amount = ?, currency = ?, category = ?, start_date = ?,
			duration_years = ?, duration_months = ?, duration_days = ?,
			periodic = ?, period_years = ?, period_months = ?, period_days = ?, expiration_date = ?,
			description_hints = ?, approximation_days = ?, approximation_ratio = ?
		WHERE id = ? AND kind = ?`,
		append(args, id, string(kind))...,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	return expectRow(res, fmt.Errorf("%w: %s %d", core.ErrRangeNotFound, kind, id))
}

func (s *Store) deleteRange(ctx context.Context, kind core.RangeKind, id core.RangeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM ranges WHERE id = ? AND kind = ?`, id, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return expectRow(res, fmt.Errorf("%w: %s %d", core.ErrRangeNotFound, kind, id))
}

func (s *Store) getRange(ctx context.Context, kind core.RangeKind, id core.RangeID) (rangeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+rangeColumns+` FROM ranges WHERE id = ? AND kind = ?`, id, string(kind))
	if err != nil {
		return rangeRow{}, fmt.Errorf("failed to query %s: %w", kind, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return rangeRow{}, err
		}
		return rangeRow{}, fmt.Errorf("%w: %s %d", core.ErrRangeNotFound, kind, id)
	}
	return scanRange(rows)
}

// rangeArgs encodes every column after kind, in insert order.
func rangeArgs(r core.OperationRange) ([]any, error) {
	hints := r.Matcher.DescriptionHints
	if hints == nil {
		hints = []string{}
	}
	hintsJSON, err := json.Marshal(hints)
	if err != nil {
		return nil, fmt.Errorf("failed to encode description hints: %w", err)
	}
	var ratio sql.NullFloat64
	if !math.IsInf(r.Matcher.ApproximationAmountRatio, 1) {
		ratio = sql.NullFloat64{Float64: r.Matcher.ApproximationAmountRatio, Valid: true}
	}

	duration := core.OccurrenceDuration(r.Interval)
	var (
		periodic   bool
		period     core.Delta
		expiration sql.NullString
	)
	if p, ok := r.Interval.(core.PeriodicSpan); ok {
		periodic, period = true, p.Period()
		if !p.IsUnbounded() {
			expiration = sql.NullString{String: p.Expiration().String(), Valid: true}
		}
	}

	return []any{
		r.Description, r.Amount.Value.String(), r.Amount.Currency, string(r.Category),
		r.Interval.InitialDate().String(),
		duration.Years, duration.Months, duration.Days,
		periodic, period.Years, period.Months, period.Days, expiration,
		string(hintsJSON), r.Matcher.ApproximationDays, ratio,
	}, nil
}

func scanRange(rows *sql.Rows) (rangeRow, error) {
	var (
		row                rangeRow
		kind, amount       string
		currency, category string
		startDate          string
		duration, period   core.Delta
		periodic           bool
		expiration         sql.NullString
		hintsJSON          string
		ratio              sql.NullFloat64
	)
	err := rows.Scan(
		&row.id, &kind, &row.rng.Description, &amount, &currency, &category, &startDate,
		&duration.Years, &duration.Months, &duration.Days,
		&periodic, &period.Years, &period.Months, &period.Days, &expiration,
		&hintsJSON, &row.rng.Matcher.ApproximationDays, &ratio,
	)
	if err != nil {
		return row, fmt.Errorf("failed to scan range: %w", err)
	}
	row.kind = core.RangeKind(kind)
	row.rng.Category = core.Category(category)
	if row.rng.Amount, err = core.ParseAmount(amount, currency); err != nil {
		return row, err
	}
	if err := json.Unmarshal([]byte(hintsJSON), &row.rng.Matcher.DescriptionHints); err != nil {
		return row, fmt.Errorf("failed to decode description hints: %w", err)
	}
	if len(row.rng.Matcher.DescriptionHints) == 0 {
		row.rng.Matcher.DescriptionHints = nil
	}
	row.rng.Matcher.ApproximationAmountRatio = math.Inf(1)
	if ratio.Valid {
		row.rng.Matcher.ApproximationAmountRatio = ratio.Float64
	}

	start, err := core.ParseDate(startDate)
	if err != nil {
		return row, err
	}
	span, err := core.NewSpan(start, duration)
	if err != nil {
		return row, err
	}
	row.rng.Interval = span
	if periodic {
		var until core.Date
		if expiration.Valid {
			if until, err = core.ParseDate(expiration.String); err != nil {
				return row, err
			}
		}
		if row.rng.Interval, err = core.NewPeriodicSpan(span, period, until); err != nil {
			return row, err
		}
	}
	return row, nil
}

// =============================================================================
// LINKS (core.LinkStore interface)
// =============================================================================

const linkColumns = `id, operation_id, target_kind, target_id, iteration_date, manual, notes`

func (s *Store) CreateLink(ctx context.Context, link core.OperationLink) (core.OperationLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLink(ctx, `INSERT`, link)
}

func (s *Store) UpsertLink(ctx context.Context, link core.OperationLink) (core.OperationLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLink(ctx, `INSERT OR REPLACE`, link)
}

func (s *Store) insertLink(ctx context.Context, verb string, link core.OperationLink) (core.OperationLink, error) {
	res, err := s.db.ExecContext(ctx, verb+` INTO operation_links
		(operation_id, target_kind, target_id, iteration_date, manual, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		link.OperationID, string(link.TargetKind), link.TargetID, link.IterationDate.String(),
		link.Manual, nullString(link.Notes),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.OperationLink{}, fmt.Errorf("%w: operation %d", core.ErrDuplicateLink, link.OperationID)
		}
		return core.OperationLink{}, fmt.Errorf("failed to save link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.OperationLink{}, err
	}
	link.ID = core.LinkID(id)
	return link, nil
}

func (s *Store) DeleteLink(ctx context.Context, operationID core.OperationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM operation_links WHERE operation_id = ?`, operationID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: operation %d", core.ErrLinkNotFound, operationID))
}

func (s *Store) GetLink(ctx context.Context, operationID core.OperationID) (core.OperationLink, error) {
	links, err := s.queryLinks(ctx, `SELECT `+linkColumns+` FROM operation_links WHERE operation_id = ?`, operationID)
	if err != nil {
		return core.OperationLink{}, err
	}
	if len(links) == 0 {
		return core.OperationLink{}, fmt.Errorf("%w: operation %d", core.ErrLinkNotFound, operationID)
	}
	return links[0], nil
}

func (s *Store) ListLinks(ctx context.Context) ([]core.OperationLink, error) {
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM operation_links ORDER BY id`)
}

func (s *Store) LinksForTarget(ctx context.Context, kind core.RangeKind, id core.RangeID) ([]core.OperationLink, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM operation_links WHERE target_kind = ? AND target_id = ? ORDER BY id`,
		string(kind), id)
}

func (s *Store) DeleteAutomaticLinks(ctx context.Context, kind core.RangeKind, id core.RangeID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM operation_links WHERE target_kind = ? AND target_id = ? AND manual = 0`,
		string(kind), id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete automatic links: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) MoveLinks(ctx context.Context, kind core.RangeKind, from, to core.RangeID, since core.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE operation_links SET target_id = ?
		 WHERE target_kind = ? AND target_id = ? AND iteration_date >= ?`,
		to, string(kind), from, since.String())
	if err != nil {
		return 0, fmt.Errorf("failed to move links: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteLinksForTarget(ctx context.Context, kind core.RangeKind, id core.RangeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM operation_links WHERE target_kind = ? AND target_id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to delete links: %w", err)
	}
	return nil
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]core.OperationLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []core.OperationLink
	for rows.Next() {
		var (
			l         core.OperationLink
			kind      string
			iteration string
			notes     sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.OperationID, &kind, &l.TargetID, &iteration, &l.Manual, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		l.TargetKind = core.RangeKind(kind)
		l.Notes = notes.String
		if l.IterationDate, err = core.ParseDate(iteration); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// =============================================================================
// ACTUALIZATION RUNS (core.RunStore interface)
// =============================================================================

// Fixed width so ran_at sorts chronologically as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (s *Store) RecordRun(ctx context.Context, run core.ActualizationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actualization_runs
		(id, account_name, balance_date, ran_at, planned_count, budget_count, links_created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Account, run.BalanceDate.String(), run.RanAt.UTC().Format(runTimeLayout),
		run.PlannedOperations, run.Budgets, run.LinksCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]core.ActualizationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_name, balance_date, ran_at, planned_count, budget_count, links_created
		FROM actualization_runs ORDER BY ran_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []core.ActualizationRun
	for rows.Next() {
		var (
			r           core.ActualizationRun
			balanceDate string
			ranAt       string
		)
		if err := rows.Scan(&r.ID, &r.Account, &balanceDate, &ranAt, &r.PlannedOperations, &r.Budgets, &r.LinksCreated); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.BalanceDate, err = core.ParseDate(balanceDate); err != nil {
			return nil, err
		}
		if r.RanAt, err = time.Parse(runTimeLayout, ranAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
