package http

import (
	"bytes"
	"net/http"
	"net/url"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/export"
	"gastos/internal/log"
	"gastos/internal/report"
	"gastos/internal/settlement"
)

// Report views. "all" keeps transfers such as index funds; the others follow
// core.ViewOf.
const (
	viewAll     = "all"
	viewExpense = "expense"
	viewIncome  = "income"
)

// reportQuery is the state of the report page selectors.
type reportQuery struct {
	Period core.Period
	User   string
	View   string
}

func (s *Server) reportQuery(r *http.Request) reportQuery {
	q := r.URL.Query()
	view := q.Get("view")
	switch view {
	case viewAll, viewIncome:
	default:
		view = viewExpense
	}
	return reportQuery{
		Period: ParsePeriodParam(q, s.now()),
		User:   ParseUserParam(q, auth.UserFrom(r.Context()).ID),
		View:   view,
	}
}

// Encode renders the selectors as a query string, for links and hx-* urls.
func (q reportQuery) Encode() string {
	v := url.Values{}
	v.Set("month", q.Period.String())
	v.Set("user", q.User)
	v.Set("view", q.View)
	return v.Encode()
}

// With returns a copy pointing at another period.
func (q reportQuery) With(p core.Period) reportQuery {
	q.Period = p
	return q
}

func (q reportQuery) apply(r report.Report) report.Report {
	switch q.View {
	case viewIncome:
		return r.IncomeView()
	case viewExpense:
		return r.ExpenseView()
	}
	return r
}

type reportPage struct {
	Title      string
	User       *auth.User
	Query      reportQuery
	Users      []string
	Categories []string
	Report     report.Report
	Income     core.Money
	Expense    core.Money
	Balance    core.Money
	Max        core.Money
	Settlement settlement.Summary
}

func (s *Server) reportPage(r *http.Request, q reportQuery, full report.Report) reportPage {
	shown := q.apply(full)
	return reportPage{
		Title:      "Informe " + q.Period.Label(),
		User:       auth.UserFrom(r.Context()),
		Query:      q,
		Users:      s.householdUsers(r.Context()),
		Categories: core.Categories(),
		Report:     shown,
		Income:     full.IncomeView().TotalAmount,
		Expense:    full.ExpenseView().TotalAmount,
		Balance:    full.Balance(),
		Max:        maxCategory(shown),
	}
}

// handleReport renders the month report page, or only its body for htmx
// selector changes.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := s.reportQuery(r)
	full, err := s.ledger.Report(ctx, q.User, q.Period)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return
	}

	if isHTMX(r) && r.Header.Get("HX-Target") == "report-body" {
		s.writeReportBody(w, r, q, full, nil)
		return
	}

	page := s.reportPage(r, q, full)
	summary, err := s.ledger.Settlement(ctx, q.Period)
	if err != nil {
		writeError(w, r, log.OpSettle, err)
		return
	}
	page.Settlement = summary
	s.render(w, r, http.StatusOK, "report.html", page)
}

// writeReportBody renders the report_body partial for an already aggregated
// report. decorate adds triggers to the response.
func (s *Server) writeReportBody(w http.ResponseWriter, r *http.Request, q reportQuery, full report.Report, decorate func(*HTMXResponseBuilder)) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, q.apply(full))
		return
	}
	html, err := s.renderPartial("report_body", s.reportPage(r, q, full))
	if err != nil {
		writeError(w, r, log.OpRender, err)
		return
	}
	b := NewHTMXResponse().BodyBytes(html)
	if decorate != nil {
		decorate(b)
	}
	b.Write(w)
}

// handleReportJSON serves the aggregation for charts and scripts.
func (s *Server) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	q := s.reportQuery(r)
	full, err := s.ledger.Report(r.Context(), q.User, q.Period)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, q.apply(full))
}

// handleExport downloads the month as CSV. The file is built in memory so a
// failure can still become a proper error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := s.reportQuery(r)
	var buf bytes.Buffer
	if err := s.ledger.Export(r.Context(), &buf, q.User, q.Period); err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(q.Period)+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type settlementPartial struct {
	Period     core.Period
	Settlement settlement.Summary
}

// handleSettlement renders the settlement box, reloaded by htmx after edits.
func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	period := s.period(r)
	summary, err := s.ledger.Settlement(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpSettle, err)
		return
	}
	html, err := s.renderPartial("settlement_box", settlementPartial{Period: period, Settlement: summary})
	if err != nil {
		writeError(w, r, log.OpRender, err)
		return
	}
	NewHTMXResponse().BodyBytes(html).Write(w)
}

func (s *Server) handleSettlementJSON(w http.ResponseWriter, r *http.Request) {
	period := s.period(r)
	summary, err := s.ledger.Settlement(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpSettle, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":      period.String(),
		"settlement": summary,
	})
}
