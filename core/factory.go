package core

// =============================================================================
// OPERATION IDS
// =============================================================================

// IDSequence hands out strictly increasing operation ids. It is a value:
// callers pass it in and keep the advanced sequence that comes back.
type IDSequence struct {
	Last OperationID
}

// SequenceAfter starts a sequence above every id in ops.
func SequenceAfter(ops []HistoricOperation) IDSequence {
	var seq IDSequence
	for _, op := range ops {
		if op.ID > seq.Last {
			seq.Last = op.ID
		}
	}
	return seq
}

func (s IDSequence) Next() (OperationID, IDSequence) {
	s.Last++
	return s.Last, s
}

// OperationFactory creates historic operations with fresh ids. It is not
// safe for concurrent use; the API serializes creation per request.
type OperationFactory struct {
	seq IDSequence
}

func NewOperationFactory(last OperationID) *OperationFactory {
	return &OperationFactory{seq: IDSequence{Last: last}}
}

func (f *OperationFactory) Create(description string, amount Amount, category Category, date Date) HistoricOperation {
	var id OperationID
	id, f.seq = f.seq.Next()
	if category == "" {
		category = CategoryUncategorized
	}
	return HistoricOperation{
		ID:          id,
		Description: description,
		Amount:      amount,
		Category:    category,
		Date:        date,
	}
}

func (f *OperationFactory) LastID() OperationID { return f.seq.Last }
