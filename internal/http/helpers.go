package http

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/report"
	"gastos/internal/settlement"
)

// templateFuncs are available to every page and partial.
var templateFuncs = template.FuncMap{
	"money":    func(m core.Money) string { return m.Display() },
	"amount":   func(m core.Money) string { return m.StringFixed() },
	"date":     func(d core.Date) string { return d.String() },
	"view":     func(c string) string { return string(core.ViewOf(c)) },
	"siNo":     func(b bool) string { return map[bool]string{true: "Sí", false: "No"}[b] },
	"barWidth": barWidth,
	"bars": func(r report.Report) map[string]any {
		return map[string]any{"Report": r, "Max": maxCategory(r)}
	},
	"settlementBox": func(p core.Period, s settlement.Summary) settlementPartial {
		return settlementPartial{Period: p, Settlement: s}
	},
}

// barWidth scales part against max into a 2..100 percent bar so that small
// non-zero values stay visible.
func barWidth(part, max core.Money) int {
	if max.IsZero() || part.IsZero() || part.IsNegative() {
		return 0
	}
	pct := int(part.Decimal().Mul(decimal.NewFromInt(100)).Div(max.Decimal()).Round(0).IntPart())
	switch {
	case pct < 2:
		return 2
	case pct > 100:
		return 100
	}
	return pct
}

// maxCategory is the largest category total, used to scale bars.
func maxCategory(r report.Report) core.Money {
	out := core.Zero
	for _, c := range r.Categories {
		if c.Total.GreaterThan(out) {
			out = c.Total
		}
	}
	return out
}

// render executes a named template into a buffer first so a failing template
// never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.LogError(r.Context(), "Template execution failed", err, log.ErrorTypeInternal,
			log.ComponentTemplate, log.OpRender, log.NewFields().WithComponent(log.ComponentTemplate))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderPartial returns a rendered block for use with HTMXResponseBuilder.
func (s *Server) renderPartial(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if s.templates == nil {
		return nil, errTemplatesMissing
	}
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the mapped status, logging only failures the user
// cannot fix.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg, expected := classifyError(err)
	if !expected {
		log.LogError(r.Context(), "Request failed", err, log.ErrorTypeInternal, log.ComponentHTTP, op, nil)
	}
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	ErrorResponse(status, msg).Write(w)
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
