/*
Package sqlite provides a SQLite-backed implementation of the budget storage interfaces.

PURPOSE:
  Implements budget.TxStore (budgets, revenue sources, expense lines),
  budget.CenterDirectory and budget.TemplateStore on one SQLite database.

KEY TABLES:
  budgets:            Aggregate headers, unique code, optimistic version
  revenue_sources:    Child rows, replaced wholesale
  expense_lines:      Child rows, replaced wholesale or edited one by one
  activity_templates: Usage counts for input suggestions
  centers:            Directory rows used for code minting

MONEY:
  Decimals are stored as TEXT (decimal.Decimal.String) and summed in Go,
  never as REAL.

CONCURRENCY:
  One connection and a mutex serialize access. WithTx holds the mutex for
  the whole callback and hands it a store bound to the sql.Tx, so the
  read-validate-write sequence of an engine operation is one transaction.
  UpdateBudget additionally checks the stored version.

MIGRATION:
  Schema lives in migrations/*.sql, embedded and applied with golang-migrate
  on New().

USAGE:
  store, err := sqlite.New("./data/paa.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := budget.NewEngine(store, store, store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/paa-engine/budget"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat keeps nine fractional digits so stored timestamps sort as text.
// Reads use time.RFC3339Nano, which also accepts rows written without them.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

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

func (s *Store) migrate() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m is not closed: its driver owns s.db and would close it.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// =============================================================================
// BUDGET STORE (budget.Store interface)
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements budget.Store over either the pool or a transaction.
type queries struct {
	q querier
}

func (s *Store) locked() (*queries, func()) {
	s.mu.Lock()
	return &queries{q: s.db}, s.mu.Unlock
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(budget.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) CreateBudget(ctx context.Context, b *budget.Budget) error {
	q, unlock := s.locked()
	defer unlock()
	return q.CreateBudget(ctx, b)
}

func (s *Store) GetBudget(ctx context.Context, id string) (*budget.Budget, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.GetBudget(ctx, id)
}

func (s *Store) UpdateBudget(ctx context.Context, b *budget.Budget) error {
	q, unlock := s.locked()
	defer unlock()
	return q.UpdateBudget(ctx, b)
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	q, unlock := s.locked()
	defer unlock()
	return q.DeleteBudget(ctx, id)
}

func (s *Store) ListBudgets(ctx context.Context, filter budget.BudgetFilter) ([]budget.Budget, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.ListBudgets(ctx, filter)
}

func (s *Store) MaxCodeSequence(ctx context.Context, prefix string) (int, error) {
	q, unlock := s.locked()
	defer unlock()
	return q.MaxCodeSequence(ctx, prefix)
}

func (s *Store) ReplaceRevenue(ctx context.Context, budgetID string, sources []budget.RevenueSource) error {
	q, unlock := s.locked()
	defer unlock()
	return q.ReplaceRevenue(ctx, budgetID, sources)
}

func (s *Store) ReplaceExpenseLines(ctx context.Context, budgetID string, lines []budget.ExpenseLine) error {
	q, unlock := s.locked()
	defer unlock()
	return q.ReplaceExpenseLines(ctx, budgetID, lines)
}

func (s *Store) AddExpenseLine(ctx context.Context, line budget.ExpenseLine) error {
	q, unlock := s.locked()
	defer unlock()
	return q.AddExpenseLine(ctx, line)
}

func (s *Store) DeleteExpenseLine(ctx context.Context, budgetID, lineID string) error {
	q, unlock := s.locked()
	defer unlock()
	return q.DeleteExpenseLine(ctx, budgetID, lineID)
}

const budgetColumns = `
	id, code, name, description, fiscal_year, kind, status, center_id, created_by,
	validated_by, validated_at, validated_amount, declared_total, version,
	created_at, updated_at`

func (q *queries) CreateBudget(ctx context.Context, b *budget.Budget) error {
	query := `
		INSERT INTO budgets (` + budgetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	validatedBy, validatedAt, validatedAmount := approvalColumns(b)
	_, err := q.q.ExecContext(ctx, query,
		b.ID, b.Code, b.Name, b.Description, b.FiscalYear, string(b.Kind), string(b.Status),
		b.CenterID, b.CreatedBy,
		validatedBy, validatedAt, validatedAmount,
		b.DeclaredTotal.String(),
		b.CreatedAt.UTC().Format(timeFormat),
		b.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return budget.ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert budget: %w", err)
	}

	b.Version = 1
	return nil
}

func (q *queries) GetBudget(ctx context.Context, id string) (*budget.Budget, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query budget: %w", err)
	}
	budgets, err := scanBudgets(rows)
	if err != nil {
		return nil, err
	}
	if len(budgets) == 0 {
		return nil, nil
	}
	b := &budgets[0]

	if b.Revenue, err = q.loadRevenue(ctx, id); err != nil {
		return nil, err
	}
	if b.Lines, err = q.loadLines(ctx, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (q *queries) UpdateBudget(ctx context.Context, b *budget.Budget) error {
	query := `
		UPDATE budgets SET
			name = ?, description = ?, fiscal_year = ?, kind = ?, status = ?,
			validated_by = ?, validated_at = ?, validated_amount = ?,
			declared_total = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	validatedBy, validatedAt, validatedAmount := approvalColumns(b)
	res, err := q.q.ExecContext(ctx, query,
		b.Name, b.Description, b.FiscalYear, string(b.Kind), string(b.Status),
		validatedBy, validatedAt, validatedAmount,
		b.DeclaredTotal.String(),
		b.UpdatedAt.UTC().Format(timeFormat),
		b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return budget.ErrConcurrentModification
	}

	b.Version++
	return nil
}

func (q *queries) DeleteBudget(ctx context.Context, id string) error {
	for _, stmt := range []string{
		"DELETE FROM expense_lines WHERE budget_id = ?",
		"DELETE FROM revenue_sources WHERE budget_id = ?",
		"DELETE FROM budgets WHERE id = ?",
	} {
		if _, err := q.q.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete budget: %w", err)
		}
	}
	return nil
}

func (q *queries) ListBudgets(ctx context.Context, f budget.BudgetFilter) ([]budget.Budget, error) {
	var (
		where []string
		args  []any
	)
	if f.CenterID != "" {
		where = append(where, "center_id = ?")
		args = append(args, f.CenterID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.FiscalYear != 0 {
		where = append(where, "fiscal_year = ?")
		args = append(args, f.FiscalYear)
	}
	if f.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, f.CreatedBy)
	}

	query := `SELECT ` + budgetColumns + ` FROM budgets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, code DESC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	return scanBudgets(rows)
}

// MaxCodeSequence compares the prefix with SUBSTR rather than LIKE so the
// prefix needs no escaping. Suffixes that are not numbers cast to 0.
func (q *queries) MaxCodeSequence(ctx context.Context, prefix string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTR(code, ?) AS INTEGER)), 0)
		FROM budgets
		WHERE SUBSTR(code, 1, ?) = ?
	`, len(prefix)+1, len(prefix), prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read highest code sequence: %w", err)
	}
	return n, nil
}

func (q *queries) ReplaceRevenue(ctx context.Context, budgetID string, sources []budget.RevenueSource) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM revenue_sources WHERE budget_id = ?", budgetID); err != nil {
		return fmt.Errorf("failed to clear revenue sources: %w", err)
	}

	query := `
		INSERT INTO revenue_sources (id, budget_id, position, funding_type, nature, amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for i, src := range sources {
		if _, err := q.q.ExecContext(ctx, query,
			src.ID, budgetID, i, string(src.FundingType), src.Nature, src.Amount.String(),
		); err != nil {
			return fmt.Errorf("failed to insert revenue source: %w", err)
		}
	}
	return nil
}

func (q *queries) ReplaceExpenseLines(ctx context.Context, budgetID string, lines []budget.ExpenseLine) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM expense_lines WHERE budget_id = ?", budgetID); err != nil {
		return fmt.Errorf("failed to clear expense lines: %w", err)
	}
	for i, l := range lines {
		l.BudgetID = budgetID
		if err := q.insertLine(ctx, l, i); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) AddExpenseLine(ctx context.Context, line budget.ExpenseLine) error {
	var next int
	err := q.q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM expense_lines WHERE budget_id = ?",
		line.BudgetID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to find line position: %w", err)
	}
	return q.insertLine(ctx, line, next)
}

func (q *queries) insertLine(ctx context.Context, l budget.ExpenseLine, position int) error {
	query := `
		INSERT INTO expense_lines
		(id, budget_id, position, key_activity, means_type, quantity, frequency, unit_cost,
		 computed_amount, nomenclature_code, nomenclature_label, financing_category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.q.ExecContext(ctx, query,
		l.ID, l.BudgetID, position, l.KeyActivity, l.MeansType,
		l.Quantity.String(), l.Frequency.String(), l.UnitCost.String(),
		l.Amount().String(),
		l.NomenclatureCode, l.NomenclatureLabel, string(l.FinancingCategory),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense line: %w", err)
	}
	return nil
}

func (q *queries) DeleteExpenseLine(ctx context.Context, budgetID, lineID string) error {
	_, err := q.q.ExecContext(ctx,
		"DELETE FROM expense_lines WHERE budget_id = ? AND id = ?",
		budgetID, lineID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete expense line: %w", err)
	}
	return nil
}

func (q *queries) loadRevenue(ctx context.Context, budgetID string) ([]budget.RevenueSource, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, budget_id, funding_type, nature, amount
		FROM revenue_sources WHERE budget_id = ? ORDER BY position ASC
	`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue sources: %w", err)
	}
	defer rows.Close()

	sources := []budget.RevenueSource{}
	for rows.Next() {
		var (
			src     budget.RevenueSource
			funding string
			amount  string
		)
		if err := rows.Scan(&src.ID, &src.BudgetID, &funding, &src.Nature, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan revenue source: %w", err)
		}
		src.FundingType = budget.FundingType(funding)
		if src.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (q *queries) loadLines(ctx context.Context, budgetID string) ([]budget.ExpenseLine, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, budget_id, key_activity, means_type, quantity, frequency, unit_cost,
		       computed_amount, nomenclature_code, nomenclature_label, financing_category
		FROM expense_lines WHERE budget_id = ? ORDER BY position ASC
	`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expense lines: %w", err)
	}
	defer rows.Close()

	lines := []budget.ExpenseLine{}
	for rows.Next() {
		var (
			l                                   budget.ExpenseLine
			quantity, frequency, cost, computed string
			category                            string
		)
		err := rows.Scan(&l.ID, &l.BudgetID, &l.KeyActivity, &l.MeansType,
			&quantity, &frequency, &cost, &computed,
			&l.NomenclatureCode, &l.NomenclatureLabel, &category)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense line: %w", err)
		}
		l.FinancingCategory = budget.FinancingCategory(category)
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&l.Quantity, quantity},
			{&l.Frequency, frequency},
			{&l.UnitCost, cost},
			{&l.ComputedAmount, computed},
		} {
			if *f.dst, err = parseDecimal(f.src); err != nil {
				return nil, err
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanBudgets(rows *sql.Rows) ([]budget.Budget, error) {
	defer rows.Close()

	var budgets []budget.Budget
	for rows.Next() {
		var (
			b                        budget.Budget
			kind, status             string
			validatedBy, validatedAt sql.NullString
			validatedAmount          sql.NullString
			declaredTotal            string
			createdAt, updatedAt     string
		)
		err := rows.Scan(
			&b.ID, &b.Code, &b.Name, &b.Description, &b.FiscalYear, &kind, &status,
			&b.CenterID, &b.CreatedBy,
			&validatedBy, &validatedAt, &validatedAmount,
			&declaredTotal, &b.Version, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}

		b.Kind = budget.Kind(kind)
		b.Status = budget.Status(status)
		if b.DeclaredTotal, err = parseDecimal(declaredTotal); err != nil {
			return nil, err
		}
		if validatedBy.Valid {
			by := validatedBy.String
			b.ValidatedBy = &by
		}
		if validatedAt.Valid {
			at, err := time.Parse(time.RFC3339Nano, validatedAt.String)
			if err != nil {
				return nil, fmt.Errorf("invalid validated_at %q: %w", validatedAt.String, err)
			}
			b.ValidatedAt = &at
		}
		if validatedAmount.Valid {
			amount, err := parseDecimal(validatedAmount.String)
			if err != nil {
				return nil, err
			}
			b.ValidatedAmount = &amount
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// =============================================================================
// CENTER DIRECTORY (budget.CenterDirectory interface)
// =============================================================================

// SaveCenter inserts or updates a directory row.
func (s *Store) SaveCenter(ctx context.Context, c budget.Center) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO centers (id, code, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name
	`
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query, c.ID, c.Code, c.Name, c.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save center: %w", err)
	}
	return nil
}

func (s *Store) GetCenter(ctx context.Context, id string) (*budget.Center, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		c         budget.Center
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, created_at FROM centers WHERE id = ?", id,
	).Scan(&c.ID, &c.Code, &c.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get center: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

func (s *Store) ListCenters(ctx context.Context) ([]budget.Center, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, code, name, created_at FROM centers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list centers: %w", err)
	}
	defer rows.Close()

	var centers []budget.Center
	for rows.Next() {
		var (
			c         budget.Center
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan center: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

// =============================================================================
// ACTIVITY TEMPLATES (budget.TemplateStore interface)
// =============================================================================

func (s *Store) RecordUsage(ctx context.Context, centerID string, line budget.ExpenseLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO activity_templates
		(center_id, key_activity, means_type, key_activity_lc, means_type_lc,
		 nomenclature_code, nomenclature_label, financing_category, usage_count, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(center_id, key_activity, means_type) DO UPDATE SET
			usage_count = activity_templates.usage_count + 1,
			key_activity_lc = excluded.key_activity_lc,
			means_type_lc = excluded.means_type_lc,
			last_used_at = excluded.last_used_at
	`
	_, err := s.db.ExecContext(ctx, query,
		centerID, line.KeyActivity, line.MeansType,
		strings.ToLower(line.KeyActivity), strings.ToLower(line.MeansType),
		line.NomenclatureCode, line.NomenclatureLabel, string(line.FinancingCategory),
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to record template usage: %w", err)
	}
	return nil
}

func (s *Store) Suggest(ctx context.Context, centerID, query string, limit int) ([]budget.ActivityTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlQuery := `
		SELECT center_id, key_activity, means_type, nomenclature_code, nomenclature_label,
		       financing_category, usage_count, last_used_at
		FROM activity_templates
		WHERE center_id = ?
		  AND (? = '' OR key_activity_lc LIKE ? ESCAPE '\' OR means_type_lc LIKE ? ESCAPE '\')
		ORDER BY usage_count DESC, key_activity ASC, means_type ASC
		LIMIT ?
	`
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	if limit <= 0 {
		limit = budget.SuggestLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, centerID, query, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var out []budget.ActivityTemplate
	for rows.Next() {
		var (
			t        budget.ActivityTemplate
			category string
			lastUsed string
		)
		err := rows.Scan(&t.CenterID, &t.KeyActivity, &t.MeansType,
			&t.NomenclatureCode, &t.NomenclatureLabel, &category, &t.UsageCount, &lastUsed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		t.FinancingCategory = budget.FinancingCategory(category)
		t.LastUsedAt, _ = time.Parse(time.RFC3339Nano, lastUsed)
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"activity_templates", "expense_lines", "revenue_sources", "budgets", "centers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func approvalColumns(b *budget.Budget) (by, at, amount sql.NullString) {
	if b.ValidatedBy != nil {
		by = sql.NullString{String: *b.ValidatedBy, Valid: true}
	}
	if b.ValidatedAt != nil {
		at = sql.NullString{String: b.ValidatedAt.UTC().Format(timeFormat), Valid: true}
	}
	if b.ValidatedAmount != nil {
		amount = sql.NullString{String: b.ValidatedAmount.String(), Valid: true}
	}
	return by, at, amount
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored decimal %q: %w", s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var (
	_ budget.TxStore         = (*Store)(nil)
	_ budget.CenterDirectory = (*Store)(nil)
	_ budget.TemplateStore   = (*Store)(nil)
)
