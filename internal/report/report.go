// Package report aggregates a month of transactions into totals per
// category, per user and per day.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

var ErrNotInReport = errors.New("transaction not in report")

type (
	CategorySummary struct {
		Category string     `json:"category"`
		Total    core.Money `json:"total"`
		Count    int        `json:"count"`
	}

	UserTotal struct {
		UserID string     `json:"userId"`
		Total  core.Money `json:"total"`
		Count  int        `json:"count"`
	}

	DayTotal struct {
		Date  core.Date  `json:"date"`
		Total core.Money `json:"total"`
	}

	// Report is the monthly aggregation. Every derived field is a pure
	// function of Expenses, so recomputing from the same records always
	// yields the same report.
	Report struct {
		UserID      string             `json:"userId"`
		Month       string             `json:"month"`
		Period      core.Period        `json:"-"`
		TotalAmount core.Money         `json:"totalAmount"`
		Average     core.Money         `json:"average"`
		Categories  []CategorySummary  `json:"categories"`
		ByUser      []UserTotal        `json:"byUser"`
		Daily       []DayTotal         `json:"daily"`
		Expenses    []core.Transaction `json:"expenses"`
	}
)

// Aggregate builds a report from records already fetched for the period.
// The input slice is not modified.
func Aggregate(userID string, period core.Period, txns []core.Transaction) Report {
	records := make([]core.Transaction, len(txns))
	copy(records, txns)
	ledger.SortNewestFirst(records)

	r := Report{
		UserID:      userID,
		Month:       period.String(),
		Period:      period,
		TotalAmount: core.Zero,
		Average:     core.Zero,
		Categories:  []CategorySummary{},
		ByUser:      []UserTotal{},
		Daily:       []DayTotal{},
		Expenses:    records,
	}

	byCategory := map[string]*CategorySummary{}
	byUser := map[string]*UserTotal{}
	byDay := map[string]*DayTotal{}

	for _, t := range records {
		r.TotalAmount = r.TotalAmount.Add(t.Amount)

		cs, ok := byCategory[t.Category]
		if !ok {
			cs = &CategorySummary{Category: t.Category, Total: core.Zero}
			byCategory[t.Category] = cs
		}
		cs.Total = cs.Total.Add(t.Amount)
		cs.Count++

		ut, ok := byUser[t.UserID]
		if !ok {
			ut = &UserTotal{UserID: t.UserID, Total: core.Zero}
			byUser[t.UserID] = ut
		}
		ut.Total = ut.Total.Add(t.Amount)
		ut.Count++

		key := t.Date.String()
		dt, ok := byDay[key]
		if !ok {
			dt = &DayTotal{Date: t.Date, Total: core.Zero}
			byDay[key] = dt
		}
		dt.Total = dt.Total.Add(t.Amount)
	}

	for _, cs := range byCategory {
		r.Categories = append(r.Categories, *cs)
	}
	sort.Slice(r.Categories, func(i, j int) bool {
		a, b := r.Categories[i], r.Categories[j]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})

	for _, ut := range byUser {
		r.ByUser = append(r.ByUser, *ut)
	}
	sort.Slice(r.ByUser, func(i, j int) bool { return r.ByUser[i].UserID < r.ByUser[j].UserID })

	for _, dt := range byDay {
		r.Daily = append(r.Daily, *dt)
	}
	sort.Slice(r.Daily, func(i, j int) bool { return r.Daily[i].Date.Before(r.Daily[j].Date.Time) })

	r.Average = r.TotalAmount.DivInt(len(records))
	return r
}

// Count is the number of records in the report.
func (r Report) Count() int { return len(r.Expenses) }

// Find returns the record with the given id.
func (r Report) Find(id string) (core.Transaction, bool) {
	for _, t := range r.Expenses {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

// ApplyPatch recomputes the report locally after editing one record. A record
// whose new date leaves the period is dropped from the result, matching what a
// fresh fetch would return.
func (r Report) ApplyPatch(id string, p core.Patch) (Report, error) {
	if err := p.Validate(); err != nil {
		return r, err
	}
	current, ok := r.Find(id)
	if !ok {
		return r, fmt.Errorf("%w: %s", ErrNotInReport, id)
	}
	updated := p.Apply(current)
	if err := updated.Validate(); err != nil {
		return r, err
	}
	return r.Replace(updated), nil
}

// Replace swaps in a record returned by the store and recomputes.
func (r Report) Replace(updated core.Transaction) Report {
	records := make([]core.Transaction, 0, len(r.Expenses))
	for _, t := range r.Expenses {
		if t.ID == updated.ID {
			if !r.Period.IsZero() && !r.Period.Contains(updated.Date) {
				continue
			}
			t = updated
		}
		records = append(records, t)
	}
	return Aggregate(r.UserID, r.Period, records)
}

// Remove recomputes the report without the given record.
func (r Report) Remove(id string) Report {
	records := make([]core.Transaction, 0, len(r.Expenses))
	for _, t := range r.Expenses {
		if t.ID != id {
			records = append(records, t)
		}
	}
	return Aggregate(r.UserID, r.Period, records)
}

// IncomeView keeps income categories, leaving out index-fund transfers.
func (r Report) IncomeView() Report {
	return r.filter(func(t core.Transaction) bool { return core.ViewOf(t.Category) == core.ViewIncome })
}

// ExpenseView keeps expense categories.
func (r Report) ExpenseView() Report {
	return r.filter(func(t core.Transaction) bool { return core.ViewOf(t.Category) == core.ViewExpense })
}

// Balance is income minus expenses; transfers are ignored.
func (r Report) Balance() core.Money {
	return r.IncomeView().TotalAmount.Sub(r.ExpenseView().TotalAmount)
}

func (r Report) filter(keep func(core.Transaction) bool) Report {
	var records []core.Transaction
	for _, t := range r.Expenses {
		if keep(t) {
			records = append(records, t)
		}
	}
	return Aggregate(r.UserID, r.Period, records)
}

// Builder fetches a period from the store and aggregates it.
type Builder struct {
	lister ledger.Lister
}

func NewBuilder(lister ledger.Lister) *Builder {
	return &Builder{lister: lister}
}

// Build returns the report for one user, or every user when userID is
// ledger.AllUsers or empty.
func (b *Builder) Build(ctx context.Context, userID string, period core.Period) (Report, error) {
	if userID == "" {
		userID = ledger.AllUsers
	}
	txns, err := b.lister.List(ctx, ledger.Filter{UserID: userID, Period: period})
	if err != nil {
		return Report{}, fmt.Errorf("list %s for %s: %w", period, userID, err)
	}

	r := Aggregate(userID, period, txns)
	log.FromContext(ctx).WithComponent(log.ComponentReport).DebugContext(ctx, "Report built",
		log.FieldUserID, userID,
		log.FieldPeriod, period.String(),
		log.FieldCount, r.Count(),
		log.FieldAmount, r.TotalAmount.String())
	return r, nil
}
