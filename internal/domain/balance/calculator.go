package balance

import (
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/burn"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

// Summarize folds a user's earning records into the totals the calculator needs.
func Summarize(records []earning.Record) Totals {
	t := Totals{
		TotalEarnedAllTime: decimal.Zero,
		UnpaidRaw:          decimal.Zero,
		BySource:           make(map[earning.Source]decimal.Decimal, len(earning.AllSources)),
	}
	for _, src := range earning.AllSources {
		t.BySource[src] = decimal.Zero
	}

	for _, rec := range records {
		t.TotalEarnedAllTime = t.TotalEarnedAllTime.Add(rec.Amount)

		if rec.Paid && rec.PaidAt != nil {
			if t.LastPaidAt == nil || rec.PaidAt.After(*t.LastPaidAt) {
				paidAt := *rec.PaidAt
				t.LastPaidAt = &paidAt
			}
		}

		if rec.Counts() {
			t.UnpaidRaw = t.UnpaidRaw.Add(rec.Amount)
			t.BySource[rec.Source] = t.BySource[rec.Source].Add(rec.Amount)
			t.UnpaidRecordIDs = append(t.UnpaidRecordIDs, rec.ID)
		}
	}
	return t
}

// SumBurns adds up burns in the counting allowlist.
func SumBurns(records []burn.Record) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		if !counts(rec.BurnType) {
			continue
		}
		total = total.Add(rec.Amount)
	}
	return total
}

// Spendable is max(0, unpaid - burned - decayed), never above unpaid.
func Spendable(unpaidRaw, burned, decayed decimal.Decimal) decimal.Decimal {
	if !unpaidRaw.IsPositive() {
		return decimal.Zero
	}
	return ledger.Clamp(unpaidRaw.Sub(burned).Sub(decayed), decimal.Zero, unpaidRaw)
}

func counts(t burn.Type) bool {
	for _, s := range burn.SpendableTypes {
		if s == t {
			return true
		}
	}
	return false
}
