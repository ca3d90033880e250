/*
store.go - Persistence interfaces for budgets and their children

PURPOSE:
  Defines the boundary between the engine and durable storage. The engine
  never holds state between calls; every operation runs its
  read-validate-write sequence inside one WithTx call.

KEY INTERFACES:
  Store:           Budget headers plus whole-collection child writes
  TxStore:         Store with per-aggregate transactions
  CenterDirectory: Read-only lookup into the organizational directory
  TemplateStore:   Activity template usage and suggestions

CHILD COLLECTIONS:
  ReplaceRevenue and ReplaceExpenseLines delete every stored child of the
  budget and insert the supplied ones. After a replace, stored children equal
  the last supplied collection. AddExpenseLine/DeleteExpenseLine serve the
  incremental editing path.

OPTIMISTIC VERSIONING:
  UpdateBudget only succeeds when the stored version equals b.Version, then
  increments both. A mismatch returns ErrConcurrentModification.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - budget/store/memory.go: In-memory (tests)
*/
package budget

import "context"

type BudgetFilter struct {
	CenterID   string
	Status     Status
	FiscalYear int
	CreatedBy  string
}

type Store interface {
	// CreateBudget inserts the header. Returns ErrDuplicateCode when the code
	// is already taken.
	CreateBudget(ctx context.Context, b *Budget) error

	// GetBudget returns the header with both child collections, or nil if absent.
	GetBudget(ctx context.Context, id string) (*Budget, error)

	// UpdateBudget writes the header fields, guarded by b.Version.
	UpdateBudget(ctx context.Context, b *Budget) error

	// DeleteBudget removes the header and its children.
	DeleteBudget(ctx context.Context, id string) error

	// ListBudgets returns headers only, newest first.
	ListBudgets(ctx context.Context, filter BudgetFilter) ([]Budget, error)

	// MaxCodeSequence returns the highest numeric suffix among stored codes
	// starting with prefix, or 0 when there are none.
	MaxCodeSequence(ctx context.Context, prefix string) (int, error)

	ReplaceRevenue(ctx context.Context, budgetID string, sources []RevenueSource) error
	ReplaceExpenseLines(ctx context.Context, budgetID string, lines []ExpenseLine) error
	AddExpenseLine(ctx context.Context, line ExpenseLine) error
	DeleteExpenseLine(ctx context.Context, budgetID, lineID string) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// CenterDirectory resolves health centers. Returns nil if absent.
type CenterDirectory interface {
	GetCenter(ctx context.Context, id string) (*Center, error)
}
