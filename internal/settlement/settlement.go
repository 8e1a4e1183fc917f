// Package settlement computes who owes whom for shared household expenses.
//
// Only the two-party case is defined: shared expenses are split 50/50 between
// exactly two payers. With any other number of payers no debts are produced.
package settlement

import (
	"sort"

	"gastos/internal/core"
)

// Debt says From owes To the given Amount.
type Debt struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Amount core.Money `json:"amount"`
}

// Contribution is what one user paid towards shared expenses.
type Contribution struct {
	UserID string     `json:"userId"`
	Total  core.Money `json:"total"`
}

// Summary carries the numbers behind a settlement for display.
type Summary struct {
	Contributions []Contribution `json:"contributions"`
	Total         core.Money     `json:"total"`
	Half          core.Money     `json:"half"`
	Debts         []Debt         `json:"debts"`
	// Settleable is false when the shared set does not have exactly two payers.
	Settleable bool `json:"settleable"`
}

// Compute returns the debts that equalize shared expense contributions.
func Compute(txns []core.Transaction) []Debt {
	return Summarize(txns).Debts
}

// Summarize filters shared expense records, totals them per user and, when
// exactly two users paid, derives the debts. Amounts are never rounded here.
func Summarize(txns []core.Transaction) Summary {
	totals := map[string]core.Money{}
	for _, t := range txns {
		if !t.Shared || core.ViewOf(t.Category) != core.ViewExpense {
			continue
		}
		totals[t.UserID] = totals[t.UserID].Add(t.Amount)
	}

	s := Summary{Total: core.Zero, Half: core.Zero, Debts: []Debt{}, Contributions: []Contribution{}}
	for user, total := range totals {
		s.Contributions = append(s.Contributions, Contribution{UserID: user, Total: total})
		s.Total = s.Total.Add(total)
	}
	sort.Slice(s.Contributions, func(i, j int) bool { return s.Contributions[i].UserID < s.Contributions[j].UserID })

	if len(s.Contributions) != 2 {
		return s
	}
	s.Settleable = true
	s.Half = s.Total.Half()

	a, b := s.Contributions[0], s.Contributions[1]
	if a.Total.GreaterThan(s.Half) {
		s.Debts = append(s.Debts, Debt{From: a.UserID, To: b.UserID, Amount: a.Total.Sub(s.Half)})
	}
	if b.Total.GreaterThan(s.Half) {
		s.Debts = append(s.Debts, Debt{From: b.UserID, To: a.UserID, Amount: b.Total.Sub(s.Half)})
	}
	return s
}
