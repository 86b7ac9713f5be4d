/*
store.go - Persistence interfaces for accounts, forecasts and links

PURPOSE:
  Defines the interface between the forecasting logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  AccountStore:  Accounts and their historic operations
  ForecastStore: Planned operations and budgets
  LinkStore:     Operation links (one per operation)
  RunStore:      History of scheduled actualization runs
  Repository:    All of the above

IDS:
  Operation ids are allocated by the caller (OperationFactory) so they stay
  stable across imports. Range and link ids are allocated by the store on
  insert; the returned value carries the new id.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - core/store/memory.go: In-memory for testing

SEE ALSO:
  - links.go: LinkService on top of LinkStore
  - api/handlers.go: HTTP handlers on top of Repository
*/
package core

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type AccountStore interface {
	// CreateAccount fails if the name is taken.
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, name string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	// UpdateBalance moves the balance reference point of an account.
	UpdateBalance(ctx context.Context, name string, balance Amount, at Date) error

	AddOperations(ctx context.Context, account string, ops []HistoricOperation) error
	UpdateOperation(ctx context.Context, account string, op HistoricOperation) error
	// MaxOperationID returns the highest operation id across all accounts.
	MaxOperationID(ctx context.Context) (OperationID, error)
}

type ForecastStore interface {
	AddPlannedOperation(ctx context.Context, p PlannedOperation) (PlannedOperation, error)
	UpdatePlannedOperation(ctx context.Context, p PlannedOperation) error
	DeletePlannedOperation(ctx context.Context, id RangeID) error
	GetPlannedOperation(ctx context.Context, id RangeID) (PlannedOperation, error)

	AddBudget(ctx context.Context, b Budget) (Budget, error)
	UpdateBudget(ctx context.Context, b Budget) error
	DeleteBudget(ctx context.Context, id RangeID) error
	GetBudget(ctx context.Context, id RangeID) (Budget, error)

	// Forecast returns every planned operation and budget ordered by id.
	Forecast(ctx context.Context) (Forecast, error)
}

type LinkStore interface {
	// CreateLink returns ErrDuplicateLink if the operation is already linked.
	CreateLink(ctx context.Context, link OperationLink) (OperationLink, error)
	// UpsertLink replaces the link of the operation, if any.
	UpsertLink(ctx context.Context, link OperationLink) (OperationLink, error)
	DeleteLink(ctx context.Context, operationID OperationID) error
	GetLink(ctx context.Context, operationID OperationID) (OperationLink, error)
	ListLinks(ctx context.Context) ([]OperationLink, error)
	LinksForTarget(ctx context.Context, kind RangeKind, id RangeID) ([]OperationLink, error)
	// DeleteAutomaticLinks removes the non-manual links of a target and
	// returns how many were removed.
	DeleteAutomaticLinks(ctx context.Context, kind RangeKind, id RangeID) (int, error)
	// MoveLinks retargets the links of (kind, from) whose iteration date is
	// on or after since to (kind, to), keeping Manual and Notes. It returns
	// how many were moved. Used when a range is split.
	MoveLinks(ctx context.Context, kind RangeKind, from, to RangeID, since Date) (int, error)
	// DeleteLinksForTarget removes every link of a target, manual included.
	// Used when the target itself is deleted.
	DeleteLinksForTarget(ctx context.Context, kind RangeKind, id RangeID) error
}

// =============================================================================
// ACTUALIZATION RUNS
// =============================================================================

// ActualizationRun records one scheduled reconciliation of an account.
type ActualizationRun struct {
	ID                string
	Account           string
	BalanceDate       Date
	RanAt             time.Time
	PlannedOperations int
	Budgets           int
	LinksCreated      int
}

type RunStore interface {
	RecordRun(ctx context.Context, run ActualizationRun) error
	// ListRuns returns the most recent runs first, at most limit.
	ListRuns(ctx context.Context, limit int) ([]ActualizationRun, error)
}

// Repository is everything the API and scheduler need.
type Repository interface {
	AccountStore
	ForecastStore
	LinkStore
	RunStore
}
