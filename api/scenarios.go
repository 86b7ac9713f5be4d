/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate an empty database with a
  realistic household: one checking account, three months of history and
  a forecast (salary, rent, groceries). Each scenario places the balance
  date so that a specific reconciliation behavior shows up.

AVAILABLE SCENARIOS:
  household:    Everything paid on time, balance date mid-month
  late-rent:    This month's rent is missing and still within tolerance
  early-rent:   Next month's rent was already paid at the end of this one

HOW SCENARIOS WORK:
  1. Refuse unless the database has no account and no range
  2. Build the account history relative to the current month
  3. Create the planned operations and budgets via the range factory
  4. Link the history heuristically, as the scheduler would

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "late-rent"}

ADDING NEW SCENARIOS:
  1. Add to 'scenarios' slice with ID, name, description
  2. Add a case to buildScenario adjusting the household

SEE ALSO:
  - handlers.go: Range and link handlers used to inspect the result
  - factory/ranges.go: Range JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "household",
		Name:        "Household",
		Description: "Salary, rent and groceries paid on time; balance date on the 15th",
	},
	{
		ID:          "late-rent",
		Name:        "Late Rent",
		Description: "Rent not yet paid on the 4th; actualization postpones it to the next day",
	},
	{
		ID:          "early-rent",
		Name:        "Early Rent",
		Description: "Next month's rent paid on the 28th; the forecast skips that occurrence",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into an empty database.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !slices.ContainsFunc(scenarios, func(s ScenarioDTO) bool { return s.ID == req.ScenarioID }) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	empty, err := h.isEmpty(ctx)
	if err != nil {
		writeDomainError(w, r, "Failed to inspect database", err)
		return
	}
	if !empty {
		writeError(w, http.StatusConflict, "Scenarios load into an empty database only", nil)
		return
	}

	data, err := h.buildScenario(req.ScenarioID, core.DateOf(h.Scheduler.Now()))
	if err != nil {
		writeDomainError(w, r, "Failed to build scenario", err)
		return
	}
	created, err := h.persistScenario(ctx, data)
	if err != nil {
		writeDomainError(w, r, "Failed to load scenario", err)
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"scenario":      req.ScenarioID,
		"balance_date":  data.account.BalanceDate,
		"links_created": created,
	}).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) isEmpty(ctx context.Context) (bool, error) {
	accounts, err := h.Repo.ListAccounts(ctx)
	if err != nil {
		return false, err
	}
	forecast, err := h.Repo.Forecast(ctx)
	if err != nil {
		return false, err
	}
	return len(accounts) == 0 && len(forecast.Ranges()) == 0, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type scenarioData struct {
	account core.Account
	planned []core.PlannedOperation
	budgets []core.Budget
}

// buildScenario lays out the household over the two previous months and
// the current one.
func (h *Handler) buildScenario(id string, today core.Date) (scenarioData, error) {
	currency := h.RangeFactory.DefaultCurrency
	m0 := core.StartOfMonth(today.Year(), today.Month())
	first := m0.Add(core.Months(-2))
	rentOp := func(d core.Date) core.HistoricOperation {
		return core.HistoricOperation{
			Description: "VIR LANDLORD APT 4",
			Amount:      core.Amount{Value: decimal.NewFromInt(-950), Currency: currency},
			Category:    core.CategoryRent,
			Date:        d,
		}
	}

	var balanceDate core.Date
	switch id {
	case "household":
		balanceDate = m0.AddDays(14)
	case "late-rent":
		balanceDate = m0.AddDays(3)
	case "early-rent":
		balanceDate = m0.AddDays(27)
	default:
		return scenarioData{}, fmt.Errorf("%w: unknown scenario %q", core.ErrInvalidRange, id)
	}

	var history []core.HistoricOperation
	for k := range 3 {
		month := first.Add(core.Months(k))
		if !(id == "late-rent" && month.Equal(m0)) {
			history = append(history, rentOp(month))
		}
		history = append(history,
			groceryOp(month.AddDays(3), "-62.40", currency),
			groceryOp(month.AddDays(10), "-85.10", currency),
			groceryOp(month.AddDays(17), "-47.90", currency),
			core.HistoricOperation{
				Description: "ACME PAYROLL",
				Amount:      core.Amount{Value: decimal.NewFromInt(2800), Currency: currency},
				Category:    core.CategorySalary,
				Date:        month.AddDays(24),
			},
		)
	}
	if id == "early-rent" {
		history = append(history, rentOp(balanceDate))
	}

	// Ids are allocated in date order so the account reads naturally.
	history = slices.DeleteFunc(history, func(op core.HistoricOperation) bool { return op.Date.After(balanceDate) })
	core.SortOperations(history)
	ops := core.NewOperationFactory(0)
	for i, op := range history {
		history[i] = ops.Create(op.Description, op.Amount, op.Category, op.Date)
	}

	monthly := core.Months(1)
	salary, err := h.RangeFactory.PlannedOperation(factory.RangeJSON{
		Description: "Salary",
		Amount:      decimal.NewFromInt(2800),
		Category:    string(core.CategorySalary),
		StartDate:   first.AddDays(24).String(),
		Period:      &monthly,
		Matcher:     &factory.MatcherJSON{DescriptionHints: []string{"ACME"}},
	})
	if err != nil {
		return scenarioData{}, err
	}
	rent, err := h.RangeFactory.PlannedOperation(factory.RangeJSON{
		Description: "Rent",
		Amount:      decimal.NewFromInt(-950),
		Category:    string(core.CategoryRent),
		StartDate:   first.String(),
		Period:      &monthly,
		Matcher:     &factory.MatcherJSON{DescriptionHints: []string{"LANDLORD"}},
	})
	if err != nil {
		return scenarioData{}, err
	}
	insurance, err := h.RangeFactory.PlannedOperation(factory.RangeJSON{
		Description: "Car insurance",
		Amount:      decimal.NewFromInt(-480),
		Category:    string(core.CategoryTransport),
		StartDate:   m0.Add(core.Months(1)).AddDays(9).String(),
	})
	if err != nil {
		return scenarioData{}, err
	}
	groceries, err := h.RangeFactory.Budget(factory.RangeJSON{
		Description: "Groceries",
		Amount:      decimal.NewFromInt(-400),
		Category:    string(core.CategoryGroceries),
		StartDate:   first.String(),
		Period:      &monthly,
	})
	if err != nil {
		return scenarioData{}, err
	}

	return scenarioData{
		account: core.Account{
			Name:        "checking",
			Balance:     core.Amount{Value: decimal.NewFromInt(2450), Currency: currency},
			BalanceDate: balanceDate,
			Operations:  history,
		},
		planned: []core.PlannedOperation{salary, rent, insurance},
		budgets: []core.Budget{groceries},
	}, nil
}

func groceryOp(d core.Date, amount, currency string) core.HistoricOperation {
	return core.HistoricOperation{
		Description: "CB SUPERMARCHE",
		Amount:      core.Amount{Value: decimal.RequireFromString(amount), Currency: currency},
		Category:    core.CategoryGroceries,
		Date:        d,
	}
}

// persistScenario stores the data and links the history. It returns the
// number of links created.
func (h *Handler) persistScenario(ctx context.Context, data scenarioData) (int, error) {
	if err := h.Repo.CreateAccount(ctx, data.account); err != nil {
		return 0, err
	}
	var ranges []core.DeclaredRange
	for _, p := range data.planned {
		saved, err := h.Repo.AddPlannedOperation(ctx, p)
		if err != nil {
			return 0, err
		}
		ranges = append(ranges, saved)
	}
	for _, b := range data.budgets {
		saved, err := h.Repo.AddBudget(ctx, b)
		if err != nil {
			return 0, err
		}
		ranges = append(ranges, saved)
	}
	created, err := h.Links.CreateHeuristicLinks(ctx, data.account.Operations, ranges)
	return len(created), err
}
