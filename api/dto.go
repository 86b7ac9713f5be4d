/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types in core
  carry no JSON tags; everything the API speaks is declared here or in
  factory.RangeJSON.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Accounts:    AccountDTO, CreateAccountRequest, UpdateBalanceRequest
  Operations:  OperationDTO, CreateOperationRequest, UpdateOperationRequest
  Ranges:      factory.RangeJSON, SplitRequest
  Links:       LinkDTO, ManualLinkRequest, CandidateDTO
  Analysis:    DailyBalanceDTO, CategorySummaryDTO, LateOccurrenceDTO,
               AnticipatedOccurrenceDTO
  Runs:        RunDTO

SEE ALSO:
  - handlers.go: Uses these types
  - factory/ranges.go: RangeJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/factory"
)

// =============================================================================
// ACCOUNTS & OPERATIONS
// =============================================================================

type AccountDTO struct {
	Name        string          `json:"name"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
	BalanceDate string          `json:"balance_date"`
	Operations  []OperationDTO  `json:"operations"`
}

type CreateAccountRequest struct {
	Name        string          `json:"name"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
	BalanceDate string          `json:"balance_date"`
}

type UpdateBalanceRequest struct {
	Balance     decimal.Decimal `json:"balance"`
	BalanceDate string          `json:"balance_date"`
}

type OperationDTO struct {
	ID          core.OperationID `json:"id"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Category    string           `json:"category"`
	Date        string           `json:"date"`
}

type CreateOperationRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Date        string          `json:"date"`
}

// UpdateOperationRequest patches an operation; absent fields are kept.
type UpdateOperationRequest struct {
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Date        *string          `json:"date,omitempty"`
}

// =============================================================================
// RANGES
// =============================================================================

// SplitRequest ends a range before Date and continues it with the optional
// new values.
type SplitRequest struct {
	Date     string           `json:"date"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Period   *core.Delta      `json:"period,omitempty"`
	Duration *core.Delta      `json:"duration,omitempty"`
}

type SplitResponse struct {
	Terminated   factory.RangeJSON `json:"terminated"`
	Continuation factory.RangeJSON `json:"continuation"`
}

// =============================================================================
// LINKS
// =============================================================================

type LinkDTO struct {
	ID            core.LinkID      `json:"id"`
	OperationID   core.OperationID `json:"operation_id"`
	TargetKind    core.RangeKind   `json:"target_kind"`
	TargetID      core.RangeID     `json:"target_id"`
	IterationDate string           `json:"iteration_date"`
	Manual        bool             `json:"manual"`
	Notes         string           `json:"notes,omitempty"`
}

type ManualLinkRequest struct {
	OperationID   core.OperationID `json:"operation_id"`
	TargetKind    core.RangeKind   `json:"target_kind"`
	TargetID      core.RangeID     `json:"target_id"`
	IterationDate string           `json:"iteration_date"`
	Notes         string           `json:"notes,omitempty"`
}

type RefreshLinksResponse struct {
	Created []LinkDTO `json:"created"`
}

type CandidateDTO struct {
	TargetKind    core.RangeKind `json:"target_kind"`
	TargetID      core.RangeID   `json:"target_id"`
	Description   string         `json:"description"`
	IterationDate string         `json:"iteration_date"`
	Score         float64        `json:"score"`
	Matches       bool           `json:"matches"`
}

// =============================================================================
// ANALYSIS
// =============================================================================

type DailyBalanceDTO struct {
	Date    string          `json:"date"`
	Balance decimal.Decimal `json:"balance"`
}

type CategorySummaryDTO struct {
	Month     string          `json:"month"`
	Category  string          `json:"category"`
	Planned   decimal.Decimal `json:"planned"`
	Actual    decimal.Decimal `json:"actual"`
	Projected decimal.Decimal `json:"projected"`
}

type OccurrenceDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type LateOccurrenceDTO struct {
	TargetKind  core.RangeKind  `json:"target_kind"`
	TargetID    core.RangeID    `json:"target_id"`
	Description string          `json:"description"`
	Occurrences []OccurrenceDTO `json:"occurrences"`
}

type AnticipatedOccurrenceDTO struct {
	TargetKind  core.RangeKind `json:"target_kind"`
	TargetID    core.RangeID   `json:"target_id"`
	Description string         `json:"description"`
	Occurrence  OccurrenceDTO  `json:"occurrence"`
	Operation   OperationDTO   `json:"operation"`
}

// =============================================================================
// RUNS & ERRORS
// =============================================================================

type RunDTO struct {
	ID                string `json:"id"`
	Account           string `json:"account"`
	BalanceDate       string `json:"balance_date"`
	RanAt             string `json:"ran_at"`
	PlannedOperations int    `json:"planned_operations"`
	Budgets           int    `json:"budgets"`
	LinksCreated      int    `json:"links_created"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAccountDTO(a core.Account) AccountDTO {
	ops := make([]OperationDTO, len(a.Operations))
	for i, op := range a.Operations {
		ops[i] = toOperationDTO(op)
	}
	return AccountDTO{
		Name:        a.Name,
		Balance:     a.Balance.Value,
		Currency:    a.Balance.Currency,
		BalanceDate: a.BalanceDate.String(),
		Operations:  ops,
	}
}

func toOperationDTO(op core.HistoricOperation) OperationDTO {
	return OperationDTO{
		ID:          op.ID,
		Description: op.Description,
		Amount:      op.Amount.Value,
		Currency:    op.Amount.Currency,
		Category:    string(op.Category),
		Date:        op.Date.String(),
	}
}

func toLinkDTO(l core.OperationLink) LinkDTO {
	return LinkDTO{
		ID:            l.ID,
		OperationID:   l.OperationID,
		TargetKind:    l.TargetKind,
		TargetID:      l.TargetID,
		IterationDate: l.IterationDate.String(),
		Manual:        l.Manual,
		Notes:         l.Notes,
	}
}

func toLinkDTOs(links []core.OperationLink) []LinkDTO {
	out := make([]LinkDTO, len(links))
	for i, l := range links {
		out[i] = toLinkDTO(l)
	}
	return out
}

func toOccurrenceDTO(s core.Span) OccurrenceDTO {
	return OccurrenceDTO{Start: s.InitialDate().String(), End: s.LastDate().String()}
}

func toRunDTO(r core.ActualizationRun) RunDTO {
	return RunDTO{
		ID:                r.ID,
		Account:           r.Account,
		BalanceDate:       r.BalanceDate.String(),
		RanAt:             r.RanAt.UTC().Format(time.RFC3339),
		PlannedOperations: r.PlannedOperations,
		Budgets:           r.Budgets,
		LinksCreated:      r.LinksCreated,
	}
}
