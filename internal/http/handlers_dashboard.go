package http

import (
	"net/http"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/report"
	"gastos/internal/settlement"
)

// recentLimit is how many of the latest records the dashboard lists.
const recentLimit = 10

type dashboardPage struct {
	Title      string
	User       *auth.User
	Period     core.Period
	Today      string
	Categories []string
	Expenses   report.Report
	Income     report.Report
	Balance    core.Money
	Max        core.Money
	Recent     []core.Transaction
	Settlement settlement.Summary
}

func (s *Server) period(r *http.Request) core.Period {
	return ParsePeriodParam(r.URL.Query(), s.now())
}

// handleDashboard shows the signed-in user's month at a glance, the shared
// balance of the household and the quick-add form.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := auth.UserFrom(ctx)
	period := s.period(r)

	rep, err := s.ledger.Report(ctx, u.ID, period)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return
	}
	summary, err := s.ledger.Settlement(ctx, period)
	if err != nil {
		writeError(w, r, log.OpSettle, err)
		return
	}

	expenses := rep.ExpenseView()
	recent := rep.Expenses
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	s.render(w, r, http.StatusOK, "dashboard.html", dashboardPage{
		Title:      "Resumen",
		User:       u,
		Period:     period,
		Today:      core.DateOf(s.now()).String(),
		Categories: core.Categories(),
		Expenses:   expenses,
		Income:     rep.IncomeView(),
		Balance:    rep.Balance(),
		Max:        maxCategory(expenses),
		Recent:     recent,
		Settlement: summary,
	})
}
