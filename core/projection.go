/*
projection.go - Account state at an arbitrary date

PURPOSE:
  Answers "what does the account look like on date T?" from the snapshot
  at the balance date and a (non-actualized) forecast.

RULES:
  Past (T < balance date):
    Drop every operation dated in (T, balance date] and subtract it from
    the balance. Exact, nothing is synthesized.

  Future (T > balance date):
    Every occurrence of every range contributes one synthetic operation
    per calendar day in (balance date, T]. A multi-day occurrence spreads
    its amount evenly over its days; single-day ranges put the whole
    amount on their day.

  Present (T == balance date):
    Identity.

IDS:
  Synthetic operations take ids from an IDSequence passed in by the
  caller. The advanced sequence is returned so a caller chaining
  projections can keep allocating above it.

INVARIANT:
  Projecting to T1 then from T1 to T2 gives the same balance and the same
  operations (ignoring synthetic ids) as projecting straight to T2, for
  dates on the same side of the balance date.

EXAMPLE:
  projected, err := core.Projector{Account: acc, Forecast: fc}.At(endOfYear)

SEE ALSO:
  - reconcile.go: Actualizes the forecast before projection
  - analysis.go: Daily balances built on projection
*/
package core

import (
	"slices"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROJECTOR
// =============================================================================

type Projector struct {
	Account  Account
	Forecast Forecast
}

// At projects the account to target, allocating synthetic ids above the
// account's highest operation id.
func (p Projector) At(target Date) (Account, error) {
	projected, _, err := ProjectAccount(p.Account, p.Forecast, target, SequenceAfter(p.Account.Operations))
	return projected, err
}

// ProjectAccount returns the account as of target and the advanced id
// sequence. The input account is not modified.
func ProjectAccount(account Account, forecast Forecast, target Date, seq IDSequence) (Account, IDSequence, error) {
	switch target.Compare(account.BalanceDate) {
	case -1:
		projected, err := projectPast(account, target)
		return projected, seq, err
	case 1:
		return projectFuture(account, forecast, target, seq)
	default:
		account.Operations = slices.Clone(account.Operations)
		return account, seq, nil
	}
}

func projectPast(account Account, target Date) (Account, error) {
	balance := account.Balance
	kept := make([]HistoricOperation, 0, len(account.Operations))
	for _, op := range account.Operations {
		if op.Date.After(target) && !op.Date.After(account.BalanceDate) {
			var err error
			if balance, err = balance.Sub(op.Amount); err != nil {
				return Account{}, err
			}
			continue
		}
		kept = append(kept, op)
	}
	account.Balance = balance
	account.BalanceDate = target
	account.Operations = kept
	return account, nil
}

func projectFuture(account Account, forecast Forecast, target Date, seq IDSequence) (Account, IDSequence, error) {
	balance := account.Balance
	ops := slices.Clone(account.Operations)
	from := account.BalanceDate.AddDays(1)

	for _, r := range forecast.Ranges() {
		rng := r.Range()
		if err := balance.sameCurrency(rng.Amount); err != nil {
			return Account{}, seq, err
		}
		for occ := range rng.Interval.OccurrencesFrom(account.BalanceDate) {
			if occ.IsFuture(target) {
				break
			}
			if occ.IsExpired(from) {
				continue
			}
			perDay, lastDay := dailyShares(rng.Amount, occ.TotalDays())
			last := MinDate(occ.LastDate(), target)
			for d := MaxDate(occ.InitialDate(), from); !d.After(last); d = d.AddDays(1) {
				amount := perDay
				if d.Equal(occ.LastDate()) {
					amount = lastDay
				}
				var id OperationID
				id, seq = seq.Next()
				ops = append(ops, HistoricOperation{
					ID:          id,
					Description: rng.Description,
					Amount:      amount,
					Category:    rng.Category,
					Date:        d,
				})
				balance.Value = balance.Value.Add(amount.Value)
			}
		}
	}

	account.Balance = balance
	account.BalanceDate = target
	account.Operations = ops
	return account, seq, nil
}

// centPlaces is the precision of projected amounts.
const centPlaces = 2

// dailyShares spreads total over days rounded to the cent. The last day
// takes the rounding remainder so an occurrence sums exactly to total.
func dailyShares(total Amount, days int) (perDay, lastDay Amount) {
	n := decimal.NewFromInt(int64(days))
	share := total.Value.DivRound(n, centPlaces)
	rest := total.Value.Sub(share.Mul(n.Sub(decimal.NewFromInt(1))))
	return Amount{Value: share, Currency: total.Currency}, Amount{Value: rest, Currency: total.Currency}
}
