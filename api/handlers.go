/*
handlers.go - HTTP API handlers for the budget forecaster

PURPOSE:
  Exposes accounts, the forecast and the reconciliation engine via REST.
  Handles HTTP request/response and JSON, and delegates to core.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                         List accounts
    POST   /api/accounts                         Create account
    GET    /api/accounts/{name}                  Account with operations
    PUT    /api/accounts/{name}/balance          Move the balance reference
    POST   /api/accounts/{name}/operations       Record an operation
    PUT    /api/accounts/{name}/operations/{id}  Patch an operation
    POST   /api/accounts/{name}/categorize       Categorize from planned operations

  Forecasting (per account):
    GET    /api/accounts/{name}/forecast             Actualized forecast
    GET    /api/accounts/{name}/projection?date=     Account as of date
    GET    /api/accounts/{name}/balance-evolution?start=&end=
    GET    /api/accounts/{name}/summary?from=&to=
    GET    /api/accounts/{name}/late?date=
    GET    /api/accounts/{name}/anticipated?date=

  Links:
    GET    /api/links                                        List links
    POST   /api/accounts/{name}/links                        Manual link
    POST   /api/accounts/{name}/links/refresh                Heuristic links
    GET    /api/accounts/{name}/operations/{id}/candidates   Ranked targets
    DELETE /api/links/{operation_id}                         Unlink

  Ranges (planned-operations and budgets share the same shape):
    GET/POST        /api/{kind}
    GET/PUT/DELETE  /api/{kind}/{id}
    POST            /api/{kind}/{id}/split

  Runs:
    GET    /api/runs?limit=      Actualization history
    POST   /api/actualize        Run the scheduled job now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate account, operation or link)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Periodic actualization
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/factory"
	"github.com/warp/budget-forecaster/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo         core.Repository
	Links        *core.LinkService
	RangeFactory *factory.RangeFactory
	Scheduler    *ActualizationScheduler
	Logger       logrus.FieldLogger

	// serializes operation id allocation
	opMu sync.Mutex
}

// NewHandler creates a handler and its scheduler over repo.
func NewHandler(repo core.Repository, logger logrus.FieldLogger, defaultCurrency string) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	links := core.NewLinkService(repo, logger)
	return &Handler{
		Repo:         repo,
		Links:        links,
		RangeFactory: factory.NewRangeFactory(defaultCurrency),
		Scheduler:    NewActualizationScheduler(repo, links, logger),
		Logger:       logger,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Repo.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list accounts", err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns a single account with its operations.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acc))
}

// CreateAccount creates an account with no operations.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	balanceDate, err := core.ParseDate(req.BalanceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid balance_date format (use YYYY-MM-DD)", err)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.RangeFactory.DefaultCurrency
	}
	acc := core.Account{
		Name:        req.Name,
		Balance:     core.Amount{Value: req.Balance, Currency: currency},
		BalanceDate: balanceDate,
	}
	if err := h.Repo.CreateAccount(r.Context(), acc); err != nil {
		writeDomainError(w, r, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acc))
}

// UpdateBalance moves the balance reference point.
func (h *Handler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	var req UpdateBalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at, err := core.ParseDate(req.BalanceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid balance_date format (use YYYY-MM-DD)", err)
		return
	}
	balance := core.Amount{Value: req.Balance, Currency: acc.Currency()}
	if err := h.Repo.UpdateBalance(r.Context(), acc.Name, balance, at); err != nil {
		writeDomainError(w, r, "Failed to update balance", err)
		return
	}
	acc.Balance, acc.BalanceDate = balance, at
	writeJSON(w, http.StatusOK, toAccountDTO(acc))
}

// =============================================================================
// OPERATION HANDLERS
// =============================================================================

// CreateOperation records an operation with the next free id.
func (h *Handler) CreateOperation(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	var req CreateOperationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()
	last, err := h.Repo.MaxOperationID(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to allocate operation id", err)
		return
	}
	op := core.NewOperationFactory(last).Create(
		req.Description,
		core.Amount{Value: req.Amount, Currency: acc.Currency()},
		core.Category(req.Category),
		date,
	)
	if err := h.Repo.AddOperations(r.Context(), acc.Name, []core.HistoricOperation{op}); err != nil {
		writeDomainError(w, r, "Failed to add operation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOperationDTO(op))
}

// UpdateOperation patches an operation. Its link, if any, is kept.
func (h *Handler) UpdateOperation(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	op, ok := h.loadOperation(w, r, acc)
	if !ok {
		return
	}
	var req UpdateOperationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var patch core.OperationPatch
	patch.Description = req.Description
	if req.Amount != nil {
		patch.Amount = &core.Amount{Value: *req.Amount, Currency: acc.Currency()}
	}
	if req.Category != nil {
		c := core.Category(*req.Category)
		patch.Category = &c
	}
	if req.Date != nil {
		d, err := core.ParseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		patch.Date = &d
	}

	updated := op.Replace(patch)
	if err := h.Repo.UpdateOperation(r.Context(), acc.Name, updated); err != nil {
		writeDomainError(w, r, "Failed to update operation", err)
		return
	}
	writeJSON(w, http.StatusOK, toOperationDTO(updated))
}

// Categorize assigns categories from matching planned operations and
// returns the operations whose category changed.
func (h *Handler) Categorize(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	forecast, err := h.Repo.Forecast(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to load forecast", err)
		return
	}

	categorized := core.CategorizeOperations(acc.Operations, forecast.PlannedOperations)
	changed := []OperationDTO{}
	for i, op := range categorized {
		if op.Category == acc.Operations[i].Category {
			continue
		}
		if err := h.Repo.UpdateOperation(r.Context(), acc.Name, op); err != nil {
			writeDomainError(w, r, "Failed to update operation", err)
			return
		}
		changed = append(changed, toOperationDTO(op))
	}
	writeJSON(w, http.StatusOK, changed)
}

// =============================================================================
// FORECAST HANDLERS
// =============================================================================

// GetActualizedForecast returns the forecast reconciled against the
// account's history as of its balance date.
func (h *Handler) GetActualizedForecast(w http.ResponseWriter, r *http.Request) {
	acc, forecast, links, ok := h.loadState(w, r)
	if !ok {
		return
	}
	actualized, err := core.NewReconciler(acc, links, logging.FromContext(r.Context())).Reconcile(forecast)
	if err != nil {
		writeDomainError(w, r, "Failed to actualize forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ForecastToJSON(actualized))
}

// GetProjection returns the account as of ?date=, projected from the
// actualized forecast when the date is after the balance date.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	acc, forecast, links, ok := h.loadState(w, r)
	if !ok {
		return
	}
	target, ok := dateQuery(w, r, "date", acc.BalanceDate)
	if !ok || !windowWithinLimit(w, acc.BalanceDate, target, target) {
		return
	}
	actualized, err := core.Actualize(acc, forecast, links)
	if err != nil {
		writeDomainError(w, r, "Failed to actualize forecast", err)
		return
	}
	last, err := h.Repo.MaxOperationID(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to read operation ids", err)
		return
	}
	projected, _, err := core.ProjectAccount(acc, actualized, target, core.IDSequence{Last: last})
	if err != nil {
		writeDomainError(w, r, "Failed to project account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(projected))
}

// GetBalanceEvolution returns one balance per day in [start, end].
func (h *Handler) GetBalanceEvolution(w http.ResponseWriter, r *http.Request) {
	acc, forecast, links, ok := h.loadState(w, r)
	if !ok {
		return
	}
	start, ok := dateQuery(w, r, "start", acc.BalanceDate.AddDays(-30))
	if !ok {
		return
	}
	end, ok := dateQuery(w, r, "end", acc.BalanceDate.AddDays(90))
	if !ok || !windowWithinLimit(w, acc.BalanceDate, start, end) {
		return
	}
	evolution, err := core.BalanceEvolution(acc, forecast, links, start, end)
	if err != nil {
		writeDomainError(w, r, "Failed to compute balance evolution", err)
		return
	}
	dtos := make([]DailyBalanceDTO, len(evolution))
	for i, b := range evolution {
		dtos[i] = DailyBalanceDTO{Date: b.Date.String(), Balance: b.Balance.Value}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary returns planned vs actual per category and month.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	acc, forecast, links, ok := h.loadState(w, r)
	if !ok {
		return
	}
	bd := acc.BalanceDate
	from, ok := dateQuery(w, r, "from", core.StartOfMonth(bd.Year(), bd.Month()))
	if !ok {
		return
	}
	to, ok := dateQuery(w, r, "to", core.EndOfMonth(bd.Year(), bd.Month()))
	if !ok || !windowWithinLimit(w, bd, from, to) {
		return
	}
	summary, err := core.MonthlySummary(acc, forecast, links, from, to)
	if err != nil {
		writeDomainError(w, r, "Failed to compute summary", err)
		return
	}
	dtos := make([]CategorySummaryDTO, len(summary))
	for i, s := range summary {
		dtos[i] = CategorySummaryDTO{
			Month:     s.Month.String()[:7],
			Category:  string(s.Category),
			Planned:   s.Planned.Value,
			Actual:    s.Actual.Value,
			Projected: s.Projected.Value,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLateOccurrences lists, per range, occurrences before ?date= that no
// operation realized.
func (h *Handler) GetLateOccurrences(w http.ResponseWriter, r *http.Request) {
	acc, forecast, links, ok := h.loadState(w, r)
	if !ok {
		return
	}
	current, ok := dateQuery(w, r, "date", acc.BalanceDate)
	if !ok {
		return
	}
	ix := core.NewLinkIndex(links)
	out := []LateOccurrenceDTO{}
	for _, rng := range forecast.Ranges() {
		late := ix.MatcherFor(rng).LateOccurrences(current, acc.Operations)
		if len(late) == 0 {
			continue
		}
		dto := LateOccurrenceDTO{
			TargetKind:  rng.Kind(),
			TargetID:    rng.RangeID(),
			Description: rng.Range().Description,
		}
		for _, occ := range late {
			dto.Occurrences = append(dto.Occurrences, toOccurrenceDTO(occ))
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAnticipatedOccurrences lists future occurrences already realized by
// an operation dated on or before ?date=.
func (h *Handler) GetAnticipatedOccurrences(w http.ResponseWriter, r *http.Request) {
	acc, forecast, links, ok := h.loadState(w, r)
	if !ok {
		return
	}
	current, ok := dateQuery(w, r, "date", acc.BalanceDate)
	if !ok {
		return
	}
	ix := core.NewLinkIndex(links)
	out := []AnticipatedOccurrenceDTO{}
	for _, rng := range forecast.Ranges() {
		for _, a := range ix.MatcherFor(rng).AnticipatedOccurrences(current, acc.Operations) {
			out = append(out, AnticipatedOccurrenceDTO{
				TargetKind:  rng.Kind(),
				TargetID:    rng.RangeID(),
				Description: rng.Range().Description,
				Occurrence:  toOccurrenceDTO(a.Occurrence),
				Operation:   toOperationDTO(a.Operation),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// LINK HANDLERS
// =============================================================================

// ListLinks returns every link.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.Repo.ListLinks(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list links", err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkDTOs(links))
}

// RefreshLinks links the account's unlinked operations heuristically.
func (h *Handler) RefreshLinks(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	forecast, err := h.Repo.Forecast(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to load forecast", err)
		return
	}
	created, err := h.Links.CreateHeuristicLinks(r.Context(), acc.Operations, forecast.Ranges())
	if err != nil {
		writeDomainError(w, r, "Failed to create links", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshLinksResponse{Created: toLinkDTOs(created)})
}

// CreateManualLink links an operation to a chosen occurrence, replacing
// any existing link.
func (h *Handler) CreateManualLink(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	var req ManualLinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	op, found := acc.Operation(req.OperationID)
	if !found {
		writeError(w, http.StatusNotFound, "Operation not found", nil)
		return
	}
	iteration, err := core.ParseDate(req.IterationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid iteration_date format (use YYYY-MM-DD)", err)
		return
	}
	target, err := h.getRange(r.Context(), req.TargetKind, req.TargetID)
	if err != nil {
		writeDomainError(w, r, "Failed to load target", err)
		return
	}
	link, err := h.Links.LinkManually(r.Context(), op, target, iteration, req.Notes)
	if err != nil {
		writeDomainError(w, r, "Failed to link operation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkDTO(link))
}

// DeleteLink unlinks an operation.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "operation_id")
	if !ok {
		return
	}
	if err := h.Repo.DeleteLink(r.Context(), core.OperationID(id)); err != nil {
		writeDomainError(w, r, "Failed to delete link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCandidates ranks the ranges an operation could be linked to.
func (h *Handler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	acc, forecast, links, ok := h.loadState(w, r)
	if !ok {
		return
	}
	op, ok := h.loadOperation(w, r, acc)
	if !ok {
		return
	}
	candidates := core.RankTargets(op, forecast.Ranges(), core.NewLinkIndex(links))
	dtos := make([]CandidateDTO, len(candidates))
	for i, c := range candidates {
		dtos[i] = CandidateDTO{
			TargetKind:    c.TargetKind,
			TargetID:      c.TargetID,
			Description:   c.Description,
			IterationDate: c.IterationDate.String(),
			Score:         c.Score,
			Matches:       c.Matches,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RANGE HANDLERS
// =============================================================================

// ListRanges returns the planned operations or budgets.
func (h *Handler) ListRanges(kind core.RangeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forecast, err := h.Repo.Forecast(r.Context())
		if err != nil {
			writeDomainError(w, r, "Failed to load forecast", err)
			return
		}
		out := []factory.RangeJSON{}
		for _, rng := range forecast.Ranges() {
			if rng.Kind() == kind {
				out = append(out, factory.ToJSON(rng))
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GetRange returns one range.
func (h *Handler) GetRange(kind core.RangeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		rng, err := h.getRange(r.Context(), kind, core.RangeID(id))
		if err != nil {
			writeDomainError(w, r, "Failed to get range", err)
			return
		}
		writeJSON(w, http.StatusOK, factory.ToJSON(rng))
	}
}

// CreateRange stores a new range and links existing operations to it.
func (h *Handler) CreateRange(kind core.RangeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req factory.RangeJSON
		if !decodeBody(w, r, &req) {
			return
		}
		rng, err := h.buildRange(kind, req)
		if err != nil {
			writeDomainError(w, r, "Invalid range", err)
			return
		}
		saved, err := h.addRange(r.Context(), rng)
		if err != nil {
			writeDomainError(w, r, "Failed to create range", err)
			return
		}
		if err := h.relink(r.Context(), saved); err != nil {
			writeDomainError(w, r, "Failed to link operations", err)
			return
		}
		writeJSON(w, http.StatusCreated, factory.ToJSON(saved))
	}
}

// UpdateRange replaces a range and recalculates its automatic links.
func (h *Handler) UpdateRange(kind core.RangeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req factory.RangeJSON
		if !decodeBody(w, r, &req) {
			return
		}
		rng, err := h.buildRange(kind, req)
		if err != nil {
			writeDomainError(w, r, "Invalid range", err)
			return
		}
		rng = withRangeID(rng, core.RangeID(id))
		if err := h.updateRange(r.Context(), rng); err != nil {
			writeDomainError(w, r, "Failed to update range", err)
			return
		}
		if err := h.relink(r.Context(), rng); err != nil {
			writeDomainError(w, r, "Failed to link operations", err)
			return
		}
		writeJSON(w, http.StatusOK, factory.ToJSON(rng))
	}
}

// DeleteRange removes a range and every link to it.
func (h *Handler) DeleteRange(kind core.RangeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		ctx := r.Context()
		var err error
		switch kind {
		case core.KindPlannedOperation:
			err = h.Repo.DeletePlannedOperation(ctx, core.RangeID(id))
		default:
			err = h.Repo.DeleteBudget(ctx, core.RangeID(id))
		}
		if err != nil {
			writeDomainError(w, r, "Failed to delete range", err)
			return
		}
		if err := h.Repo.DeleteLinksForTarget(ctx, kind, core.RangeID(id)); err != nil {
			writeDomainError(w, r, "Failed to delete links", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SplitRange terminates a periodic range before the requested date and
// stores its continuation as a new range.
func (h *Handler) SplitRange(kind core.RangeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req SplitRequest
		if !decodeBody(w, r, &req) {
			return
		}
		at, err := core.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		ctx := r.Context()
		current, err := h.getRange(ctx, kind, core.RangeID(id))
		if err != nil {
			writeDomainError(w, r, "Failed to get range", err)
			return
		}
		var newAmount *core.Amount
		if req.Amount != nil {
			newAmount = &core.Amount{Value: *req.Amount, Currency: current.Range().Amount.Currency}
		}

		var terminated, continuation core.DeclaredRange
		switch c := current.(type) {
		case core.PlannedOperation:
			if req.Duration != nil {
				writeError(w, http.StatusBadRequest, "planned operations have no duration", nil)
				return
			}
			terminated, continuation, err = splitPlanned(c, at, newAmount, req.Period)
		case core.Budget:
			terminated, continuation, err = splitBudget(c, at, newAmount, req.Period, req.Duration)
		}
		if err != nil {
			writeDomainError(w, r, "Failed to split range", err)
			return
		}

		if err := h.updateRange(ctx, terminated); err != nil {
			writeDomainError(w, r, "Failed to update range", err)
			return
		}
		if continuation, err = h.addRange(ctx, continuation); err != nil {
			writeDomainError(w, r, "Failed to create continuation", err)
			return
		}
		// Links to iterations the terminated range no longer covers follow
		// the continuation, manual ones included.
		moved, err := h.Repo.MoveLinks(ctx, kind, terminated.RangeID(), continuation.RangeID(), at)
		if err != nil {
			writeDomainError(w, r, "Failed to move links", err)
			return
		}
		logging.FromContext(ctx).WithField("links_moved", moved).Debug("range split")
		for _, rng := range []core.DeclaredRange{terminated, continuation} {
			if err := h.relink(ctx, rng); err != nil {
				writeDomainError(w, r, "Failed to link operations", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, SplitResponse{
			Terminated:   factory.ToJSON(terminated),
			Continuation: factory.ToJSON(continuation),
		})
	}
}

func splitPlanned(p core.PlannedOperation, at core.Date, amount *core.Amount, period *core.Delta) (core.DeclaredRange, core.DeclaredRange, error) {
	t, c, err := p.SplitAt(at, amount, period)
	return t, c, err
}

func splitBudget(b core.Budget, at core.Date, amount *core.Amount, period, duration *core.Delta) (core.DeclaredRange, core.DeclaredRange, error) {
	t, c, err := b.SplitAt(at, amount, period, duration)
	return t, c, err
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns the most recent actualization runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	runs, err := h.Repo.ListRuns(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerActualization runs the scheduled job synchronously.
func (h *Handler) TriggerActualization(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		writeDomainError(w, r, "Actualization failed", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadAccount(w http.ResponseWriter, r *http.Request) (core.Account, bool) {
	acc, err := h.Repo.GetAccount(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, "Failed to get account", err)
		return core.Account{}, false
	}
	return acc, true
}

func (h *Handler) loadOperation(w http.ResponseWriter, r *http.Request, acc core.Account) (core.HistoricOperation, bool) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return core.HistoricOperation{}, false
	}
	op, found := acc.Operation(core.OperationID(id))
	if !found {
		writeError(w, http.StatusNotFound, "Operation not found", nil)
		return core.HistoricOperation{}, false
	}
	return op, true
}

// loadState reads the account, the forecast and every link.
func (h *Handler) loadState(w http.ResponseWriter, r *http.Request) (core.Account, core.Forecast, []core.OperationLink, bool) {
	acc, ok := h.loadAccount(w, r)
	if !ok {
		return core.Account{}, core.Forecast{}, nil, false
	}
	forecast, err := h.Repo.Forecast(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to load forecast", err)
		return core.Account{}, core.Forecast{}, nil, false
	}
	links, err := h.Repo.ListLinks(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list links", err)
		return core.Account{}, core.Forecast{}, nil, false
	}
	return acc, forecast, links, true
}

func (h *Handler) buildRange(kind core.RangeKind, req factory.RangeJSON) (core.DeclaredRange, error) {
	switch kind {
	case core.KindPlannedOperation:
		return h.RangeFactory.PlannedOperation(req)
	default:
		return h.RangeFactory.Budget(req)
	}
}

func (h *Handler) getRange(ctx context.Context, kind core.RangeKind, id core.RangeID) (core.DeclaredRange, error) {
	switch kind {
	case core.KindPlannedOperation:
		return h.Repo.GetPlannedOperation(ctx, id)
	case core.KindBudget:
		return h.Repo.GetBudget(ctx, id)
	default:
		return nil, fmt.Errorf("%w: unknown range kind %q", core.ErrInvalidRange, kind)
	}
}

func (h *Handler) addRange(ctx context.Context, rng core.DeclaredRange) (core.DeclaredRange, error) {
	switch v := rng.(type) {
	case core.PlannedOperation:
		return h.Repo.AddPlannedOperation(ctx, v)
	case core.Budget:
		return h.Repo.AddBudget(ctx, v)
	}
	return nil, core.ErrInvalidRange
}

func (h *Handler) updateRange(ctx context.Context, rng core.DeclaredRange) error {
	switch v := rng.(type) {
	case core.PlannedOperation:
		return h.Repo.UpdatePlannedOperation(ctx, v)
	case core.Budget:
		return h.Repo.UpdateBudget(ctx, v)
	}
	return core.ErrInvalidRange
}

func withRangeID(rng core.DeclaredRange, id core.RangeID) core.DeclaredRange {
	switch v := rng.(type) {
	case core.PlannedOperation:
		v.ID = id
		return v
	case core.Budget:
		v.ID = id
		return v
	}
	return rng
}

// relink recalculates the automatic links of rng over every account.
func (h *Handler) relink(ctx context.Context, rng core.DeclaredRange) error {
	accounts, err := h.Repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	var ops []core.HistoricOperation
	for _, acc := range accounts {
		ops = append(ops, acc.Operations...)
	}
	_, err = h.Links.RecalculateLinksForTarget(ctx, rng, ops)
	return err
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+key, err)
		return 0, false
	}
	return id, true
}

// dateQuery reads a YYYY-MM-DD query parameter, or def when absent.
func dateQuery(w http.ResponseWriter, r *http.Request, key string, def core.Date) (core.Date, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	d, err := core.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+key+" format (use YYYY-MM-DD)", err)
		return core.Date{}, false
	}
	return d, true
}

// maxWindowDays bounds how far a report walks from the balance date.
const maxWindowDays = 10 * 366

// windowWithinLimit rejects windows that, stretched to include the balance
// date, span more than maxWindowDays.
func windowWithinLimit(w http.ResponseWriter, balanceDate, start, end core.Date) bool {
	lo, hi := core.MinDate(start, balanceDate), core.MaxDate(end, balanceDate)
	if lo.DaysUntil(hi) > maxWindowDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Date window exceeds %d days", maxWindowDays), nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps core errors to a status. Internal errors are
// logged on the request entry.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case core.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case core.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case core.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		logging.FromContext(r.Context()).WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
