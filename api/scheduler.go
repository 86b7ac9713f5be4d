/*
scheduler.go - Automated actualization scheduler

PURPOSE:
  Periodically links new operations to the forecast and actualizes it for
  every account, recording one ActualizationRun per account so the UI can
  show when the forecast was last brought up to date.

DESIGN:
  - robfig/cron drives the schedule (standard 5-field spec or @every/@hourly)
  - Each tick walks all accounts; a failing account is logged and skipped
  - Runs are identified by a UUID and stored through core.RunStore

USAGE:
  scheduler := NewActualizationScheduler(repo, links, logger)
  scheduler.Start("@hourly")
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerActualization endpoint (manual run)
  - core/reconcile.go: Reconciler
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/warp/budget-forecaster/core"
)

// ActualizationScheduler runs the actualization job on a cron schedule.
type ActualizationScheduler struct {
	Repo   core.Repository
	Links  *core.LinkService
	Logger logrus.FieldLogger
	// Now is replaced in tests.
	Now func() time.Time

	cron *cron.Cron
	mu   sync.Mutex
	// serializes runs so a manual trigger never overlaps a tick
	runMu sync.Mutex
}

func NewActualizationScheduler(repo core.Repository, links *core.LinkService, logger logrus.FieldLogger) *ActualizationScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ActualizationScheduler{
		Repo:   repo,
		Links:  links,
		Logger: logger.WithField("component", "scheduler"),
		Now:    time.Now,
	}
}

// Start schedules the job. An empty spec leaves the scheduler disabled.
func (s *ActualizationScheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == "" {
		s.Logger.Info("scheduler disabled, not starting")
		return nil
	}
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.Logger.WithField("schedule", spec).Info("scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *ActualizationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.Logger.Info("scheduler stopped")
}

// NextRun returns when the job fires next, or zero when stopped.
func (s *ActualizationScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *ActualizationScheduler) tick() {
	if _, err := s.RunNow(context.Background()); err != nil {
		s.Logger.WithError(err).Error("actualization failed")
	}
}

// RunNow actualizes every account and returns the recorded runs. Only a
// failure to list accounts aborts the whole run.
func (s *ActualizationScheduler) RunNow(ctx context.Context) ([]core.ActualizationRun, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	accounts, err := s.Repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	runs := make([]core.ActualizationRun, 0, len(accounts))
	for _, acc := range accounts {
		run, err := s.actualizeAccount(ctx, acc)
		if err != nil {
			s.Logger.WithError(err).WithField("account", acc.Name).Error("error actualizing account")
			continue
		}
		runs = append(runs, run)
	}
	s.Logger.WithField("accounts", len(runs)).Info("actualization completed")
	return runs, nil
}

func (s *ActualizationScheduler) actualizeAccount(ctx context.Context, acc core.Account) (core.ActualizationRun, error) {
	forecast, err := s.Repo.Forecast(ctx)
	if err != nil {
		return core.ActualizationRun{}, fmt.Errorf("load forecast: %w", err)
	}
	created, err := s.Links.CreateHeuristicLinks(ctx, acc.Operations, forecast.Ranges())
	if err != nil {
		return core.ActualizationRun{}, err
	}
	links, err := s.Repo.ListLinks(ctx)
	if err != nil {
		return core.ActualizationRun{}, fmt.Errorf("list links: %w", err)
	}
	actualized, err := core.NewReconciler(acc, links, s.Logger).Reconcile(forecast)
	if err != nil {
		return core.ActualizationRun{}, err
	}

	run := core.ActualizationRun{
		ID:                uuid.NewString(),
		Account:           acc.Name,
		BalanceDate:       acc.BalanceDate,
		RanAt:             s.Now().UTC(),
		PlannedOperations: len(actualized.PlannedOperations),
		Budgets:           len(actualized.Budgets),
		LinksCreated:      len(created),
	}
	if err := s.Repo.RecordRun(ctx, run); err != nil {
		return core.ActualizationRun{}, fmt.Errorf("record run: %w", err)
	}
	s.Logger.WithFields(logrus.Fields{
		"account":       acc.Name,
		"run_id":        run.ID,
		"links_created": run.LinksCreated,
	}).Debug("actualized account")
	return run, nil
}
