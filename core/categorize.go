package core

// CategorizeOperations returns ops with categories taken from the first
// planned operation whose description hints, amount and dates all match.
// Planned operations without hints never categorize anything. Operations
// that match nothing are returned unchanged.
func CategorizeOperations(ops []HistoricOperation, planned []PlannedOperation) []HistoricOperation {
	matchers := make([]*Matcher, len(planned))
	for i, p := range planned {
		matchers[i] = NewMatcher(p, nil)
	}

	out := make([]HistoricOperation, len(ops))
	for i, op := range ops {
		out[i] = op
		for _, m := range matchers {
			if m.MatchDescription(op) && m.MatchAmount(op) && m.MatchDateRange(op) {
				category := m.rng.Category
				out[i] = op.Replace(OperationPatch{Category: &category})
				break
			}
		}
	}
	return out
}
