// Package store provides an in-memory core.Repository.
package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/warp/budget-forecaster/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*core.Account
	planned  map[core.RangeID]core.PlannedOperation
	budgets  map[core.RangeID]core.Budget
	links    map[core.OperationID]core.OperationLink
	runs     []core.ActualizationRun

	nextRangeID core.RangeID
	nextLinkID  core.LinkID
}

var _ core.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*core.Account),
		planned:  make(map[core.RangeID]core.PlannedOperation),
		budgets:  make(map[core.RangeID]core.Budget),
		links:    make(map[core.OperationID]core.OperationLink),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, account core.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.Name]; ok {
		return fmt.Errorf("%w: %s", core.ErrAccountExists, account.Name)
	}
	acc := account
	acc.Operations = slices.Clone(account.Operations)
	m.accounts[account.Name] = &acc
	return nil
}

func (m *Memory) GetAccount(_ context.Context, name string) (core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[name]
	if !ok {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, name)
	}
	out := *acc
	out.Operations = slices.Clone(acc.Operations)
	return out, nil
}

func (m *Memory) ListAccounts(ctx context.Context) ([]core.Account, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.accounts))
	for name := range m.accounts {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	out := make([]core.Account, 0, len(names))
	for _, name := range names {
		acc, err := m.GetAccount(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func (m *Memory) UpdateBalance(_ context.Context, name string, balance core.Amount, at core.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[name]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, name)
	}
	acc.Balance = balance
	acc.BalanceDate = at
	return nil
}

func (m *Memory) AddOperations(_ context.Context, account string, ops []core.HistoricOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, account)
	}
	seen := make(map[core.OperationID]bool)
	for _, a := range m.accounts {
		for _, op := range a.Operations {
			seen[op.ID] = true
		}
	}
	for _, op := range ops {
		if seen[op.ID] {
			return fmt.Errorf("%w: %d", core.ErrDuplicateOperation, op.ID)
		}
		seen[op.ID] = true
	}
	acc.Operations = append(acc.Operations, ops...)
	core.SortOperations(acc.Operations)
	return nil
}

func (m *Memory) UpdateOperation(_ context.Context, account string, op core.HistoricOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, account)
	}
	for i := range acc.Operations {
		if acc.Operations[i].ID == op.ID {
			acc.Operations[i] = op
			core.SortOperations(acc.Operations)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", core.ErrOperationNotFound, op.ID)
}

func (m *Memory) MaxOperationID(_ context.Context) (core.OperationID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var maxID core.OperationID
	for _, acc := range m.accounts {
		maxID = max(maxID, core.SequenceAfter(acc.Operations).Last)
	}
	return maxID, nil
}

// =============================================================================
// FORECAST
// =============================================================================

func (m *Memory) AddPlannedOperation(_ context.Context, p core.PlannedOperation) (core.PlannedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRangeID++
	p.ID = m.nextRangeID
	m.planned[p.ID] = p
	return p, nil
}

func (m *Memory) UpdatePlannedOperation(_ context.Context, p core.PlannedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.planned[p.ID]; !ok {
		return fmt.Errorf("%w: planned operation %d", core.ErrRangeNotFound, p.ID)
	}
	m.planned[p.ID] = p
	return nil
}

func (m *Memory) DeletePlannedOperation(_ context.Context, id core.RangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.planned[id]; !ok {
		return fmt.Errorf("%w: planned operation %d", core.ErrRangeNotFound, id)
	}
	delete(m.planned, id)
	return nil
}

func (m *Memory) GetPlannedOperation(_ context.Context, id core.RangeID) (core.PlannedOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.planned[id]
	if !ok {
		return core.PlannedOperation{}, fmt.Errorf("%w: planned operation %d", core.ErrRangeNotFound, id)
	}
	return p, nil
}

func (m *Memory) AddBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRangeID++
	b.ID = m.nextRangeID
	m.budgets[b.ID] = b
	return b, nil
}

func (m *Memory) UpdateBudget(_ context.Context, b core.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.budgets[b.ID]; !ok {
		return fmt.Errorf("%w: budget %d", core.ErrRangeNotFound, b.ID)
	}
	m.budgets[b.ID] = b
	return nil
}

func (m *Memory) DeleteBudget(_ context.Context, id core.RangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.budgets[id]; !ok {
		return fmt.Errorf("%w: budget %d", core.ErrRangeNotFound, id)
	}
	delete(m.budgets, id)
	return nil
}

func (m *Memory) GetBudget(_ context.Context, id core.RangeID) (core.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("%w: budget %d", core.ErrRangeNotFound, id)
	}
	return b, nil
}

func (m *Memory) Forecast(_ context.Context) (core.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var f core.Forecast
	for _, p := range m.planned {
		f.PlannedOperations = append(f.PlannedOperations, p)
	}
	for _, b := range m.budgets {
		f.Budgets = append(f.Budgets, b)
	}
	sort.Slice(f.PlannedOperations, func(i, j int) bool { return f.PlannedOperations[i].ID < f.PlannedOperations[j].ID })
	sort.Slice(f.Budgets, func(i, j int) bool { return f.Budgets[i].ID < f.Budgets[j].ID })
	return f, nil
}

// =============================================================================
// LINKS
// =============================================================================

func (m *Memory) CreateLink(_ context.Context, link core.OperationLink) (core.OperationLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.OperationID]; ok {
		return core.OperationLink{}, fmt.Errorf("%w: operation %d", core.ErrDuplicateLink, link.OperationID)
	}
	return m.putLinkLocked(link), nil
}

func (m *Memory) UpsertLink(_ context.Context, link core.OperationLink) (core.OperationLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLinkLocked(link), nil
}

func (m *Memory) putLinkLocked(link core.OperationLink) core.OperationLink {
	m.nextLinkID++
	link.ID = m.nextLinkID
	m.links[link.OperationID] = link
	return link
}

func (m *Memory) DeleteLink(_ context.Context, operationID core.OperationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[operationID]; !ok {
		return fmt.Errorf("%w: operation %d", core.ErrLinkNotFound, operationID)
	}
	delete(m.links, operationID)
	return nil
}

func (m *Memory) GetLink(_ context.Context, operationID core.OperationID) (core.OperationLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[operationID]
	if !ok {
		return core.OperationLink{}, fmt.Errorf("%w: operation %d", core.ErrLinkNotFound, operationID)
	}
	return l, nil
}

func (m *Memory) ListLinks(_ context.Context) ([]core.OperationLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLinksLocked(func(core.OperationLink) bool { return true }), nil
}

func (m *Memory) LinksForTarget(_ context.Context, kind core.RangeKind, id core.RangeID) ([]core.OperationLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLinksLocked(func(l core.OperationLink) bool {
		return l.TargetKind == kind && l.TargetID == id
	}), nil
}

func (m *Memory) sortedLinksLocked(keep func(core.OperationLink) bool) []core.OperationLink {
	var out []core.OperationLink
	for _, l := range m.links {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) DeleteAutomaticLinks(_ context.Context, kind core.RangeKind, id core.RangeID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for opID, l := range m.links {
		if l.TargetKind == kind && l.TargetID == id && !l.Manual {
			delete(m.links, opID)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) MoveLinks(_ context.Context, kind core.RangeKind, from, to core.RangeID, since core.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := 0
	for opID, l := range m.links {
		if l.TargetKind == kind && l.TargetID == from && !l.IterationDate.Before(since) {
			l.TargetID = to
			m.links[opID] = l
			moved++
		}
	}
	return moved, nil
}

func (m *Memory) DeleteLinksForTarget(_ context.Context, kind core.RangeKind, id core.RangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for opID, l := range m.links {
		if l.TargetKind == kind && l.TargetID == id {
			delete(m.links, opID)
		}
	}
	return nil
}

// =============================================================================
// RUNS
// =============================================================================

func (m *Memory) RecordRun(_ context.Context, run core.ActualizationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]core.ActualizationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.ActualizationRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}
