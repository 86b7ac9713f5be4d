/*
links.go - Operation links: read-only index and heuristic link service

PURPOSE:
  Links record which occurrence of which range an operation realized.
  LinkIndex is built once per reconciliation pass and shared read-only by
  every matcher. LinkService creates automatic links from matcher scores
  and persists them through a LinkStore.

INVARIANTS:
  - At most one link per operation (stores reject duplicates).
  - Manual links are never removed by heuristic recalculation.
  - Links to ranges or operations that no longer exist are inert.

SEE ALSO:
  - matcher.go: Match and MatchScore
  - store.go: LinkStore contract
*/
package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// LINK INDEX
// =============================================================================

type targetKey struct {
	kind RangeKind
	id   RangeID
}

// LinkIndex answers link lookups by operation and by target.
type LinkIndex struct {
	byOperation map[OperationID]OperationLink
	byTarget    map[targetKey][]OperationLink
}

// NewLinkIndex indexes links. If an operation appears twice the first
// link wins.
func NewLinkIndex(links []OperationLink) LinkIndex {
	ix := LinkIndex{
		byOperation: make(map[OperationID]OperationLink, len(links)),
		byTarget:    make(map[targetKey][]OperationLink),
	}
	for _, l := range links {
		if _, dup := ix.byOperation[l.OperationID]; dup {
			continue
		}
		ix.byOperation[l.OperationID] = l
		key := targetKey{l.TargetKind, l.TargetID}
		ix.byTarget[key] = append(ix.byTarget[key], l)
	}
	return ix
}

func (ix LinkIndex) Len() int { return len(ix.byOperation) }

func (ix LinkIndex) IsLinked(id OperationID) bool {
	_, ok := ix.byOperation[id]
	return ok
}

func (ix LinkIndex) ForOperation(id OperationID) (OperationLink, bool) {
	l, ok := ix.byOperation[id]
	return l, ok
}

// LinksFor returns the links pointing at a target.
func (ix LinkIndex) LinksFor(kind RangeKind, id RangeID) []OperationLink {
	return ix.byTarget[targetKey{kind, id}]
}

// ForTarget maps linked operation ids to occurrence starts, the shape
// NewMatcher expects.
func (ix LinkIndex) ForTarget(kind RangeKind, id RangeID) map[OperationID]Date {
	links := ix.byTarget[targetKey{kind, id}]
	out := make(map[OperationID]Date, len(links))
	for _, l := range links {
		out[l.OperationID] = l.IterationDate
	}
	return out
}

// MatcherFor builds a matcher for r preloaded with its links.
func (ix LinkIndex) MatcherFor(r DeclaredRange) *Matcher {
	return NewMatcher(r, ix.ForTarget(r.Kind(), r.RangeID()))
}

// =============================================================================
// HEURISTIC LINKING (pure)
// =============================================================================

// Candidate is a scored pairing of an operation with one occurrence.
type Candidate struct {
	TargetKind    RangeKind
	TargetID      RangeID
	Description   string
	IterationDate Date
	Score         float64
	Matches       bool
}

// RankTargets scores op against the occurrence of each persisted range
// nearest to its date, best first. Matches tells whether the heuristic
// would link them.
func RankTargets(op HistoricOperation, ranges []DeclaredRange, ix LinkIndex) []Candidate {
	var out []Candidate
	for _, r := range ranges {
		if r.RangeID() == 0 {
			continue
		}
		m := ix.MatcherFor(r)
		iteration, ok := nearestOccurrence(r.Range().Interval, op.Date)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			TargetKind:    r.Kind(),
			TargetID:      r.RangeID(),
			Description:   r.Range().Description,
			IterationDate: iteration,
			Score:         m.Score(op, iteration),
			Matches:       m.Match(op),
		})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out
}

// nearestOccurrence returns the start of the occurrence containing d, or
// the closest of the previous and next ones.
func nearestOccurrence(iv Interval, d Date) (Date, bool) {
	if occ, ok := iv.CurrentOccurrence(d, 0, 0); ok {
		return occ.InitialDate(), true
	}
	prev, hasPrev := iv.LastOccurrence(d)
	next, hasNext := iv.NextOccurrence(d)
	switch {
	case hasPrev && hasNext:
		if prev.LastDate().DaysUntil(d) <= d.DaysUntil(next.InitialDate()) {
			return prev.InitialDate(), true
		}
		return next.InitialDate(), true
	case hasPrev:
		return prev.InitialDate(), true
	case hasNext:
		return next.InitialDate(), true
	}
	return Date{}, false
}

// SuggestLinks proposes one automatic link for every unlinked operation
// that matches at least one persisted range, choosing the highest score.
// Ties go to the earlier range in ranges.
func SuggestLinks(ops []HistoricOperation, ranges []DeclaredRange, ix LinkIndex) []OperationLink {
	matchers := make([]*Matcher, 0, len(ranges))
	for _, r := range ranges {
		if r.RangeID() != 0 {
			matchers = append(matchers, ix.MatcherFor(r))
		}
	}

	sorted := slices.Clone(ops)
	SortOperations(sorted)

	var out []OperationLink
	for _, op := range sorted {
		if ix.IsLinked(op.ID) {
			continue
		}
		var (
			best      *Matcher
			bestScore float64
			bestIter  Date
		)
		for _, m := range matchers {
			if !m.Match(op) {
				continue
			}
			approx := m.approxDays()
			occ, ok := m.rng.Interval.CurrentOccurrence(op.Date, approx, approx)
			if !ok {
				continue
			}
			if score := m.Score(op, occ.InitialDate()); best == nil || score > bestScore {
				best, bestScore, bestIter = m, score, occ.InitialDate()
			}
		}
		if best == nil {
			continue
		}
		out = append(out, OperationLink{
			OperationID:   op.ID,
			TargetKind:    best.kind,
			TargetID:      best.id,
			IterationDate: bestIter,
		})
	}
	return out
}

// =============================================================================
// LINK SERVICE (persistent)
// =============================================================================

// LinkService creates and maintains links in a LinkStore.
type LinkService struct {
	Store  LinkStore
	Logger logrus.FieldLogger
}

func NewLinkService(store LinkStore, logger logrus.FieldLogger) *LinkService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LinkService{Store: store, Logger: logger}
}

func (s *LinkService) index(ctx context.Context) (LinkIndex, error) {
	links, err := s.Store.ListLinks(ctx)
	if err != nil {
		return LinkIndex{}, fmt.Errorf("list links: %w", err)
	}
	return NewLinkIndex(links), nil
}

// CreateHeuristicLinks links every unlinked operation to its best
// matching range and returns the created links.
func (s *LinkService) CreateHeuristicLinks(ctx context.Context, ops []HistoricOperation, ranges []DeclaredRange) ([]OperationLink, error) {
	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, SuggestLinks(ops, ranges, ix))
}

// RecalculateLinksForTarget drops the automatic links of target and links
// the now-unlinked operations against it again. Manual links and links to
// other ranges are left untouched.
func (s *LinkService) RecalculateLinksForTarget(ctx context.Context, target DeclaredRange, ops []HistoricOperation) ([]OperationLink, error) {
	if target.RangeID() == 0 {
		return nil, fmt.Errorf("%w: range is not persisted", ErrInvalidRange)
	}
	removed, err := s.Store.DeleteAutomaticLinks(ctx, target.Kind(), target.RangeID())
	if err != nil {
		return nil, fmt.Errorf("delete automatic links: %w", err)
	}
	s.Logger.WithFields(logrus.Fields{
		"target_kind": target.Kind(),
		"target_id":   target.RangeID(),
		"removed":     removed,
	}).Debug("recalculating links")

	ix, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, SuggestLinks(ops, []DeclaredRange{target}, ix))
}

// LinkManually replaces any existing link of op with a manual one. The
// iteration must be an occurrence start of target.
func (s *LinkService) LinkManually(ctx context.Context, op HistoricOperation, target DeclaredRange, iteration Date, notes string) (OperationLink, error) {
	if target.RangeID() == 0 {
		return OperationLink{}, fmt.Errorf("%w: range is not persisted", ErrInvalidRange)
	}
	if !HasOccurrenceOn(target.Range().Interval, iteration) {
		return OperationLink{}, &IterationError{TargetKind: target.Kind(), TargetID: target.RangeID(), Date: iteration}
	}
	link := OperationLink{
		OperationID:   op.ID,
		TargetKind:    target.Kind(),
		TargetID:      target.RangeID(),
		IterationDate: iteration,
		Manual:        true,
		Notes:         notes,
	}
	saved, err := s.Store.UpsertLink(ctx, link)
	if err != nil {
		return OperationLink{}, fmt.Errorf("save manual link: %w", err)
	}
	return saved, nil
}

func (s *LinkService) persist(ctx context.Context, links []OperationLink) ([]OperationLink, error) {
	created := make([]OperationLink, 0, len(links))
	for _, l := range links {
		saved, err := s.Store.CreateLink(ctx, l)
		if err != nil {
			return created, fmt.Errorf("create link for operation %d: %w", l.OperationID, err)
		}
		created = append(created, saved)
	}
	if len(created) > 0 {
		s.Logger.WithField("count", len(created)).Debug("created heuristic links")
	}
	return created, nil
}
