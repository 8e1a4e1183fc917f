// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// month selectors, transaction forms and inline-edit bodies sent by htmx as
// either form-encoded or JSON payloads.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gastos/internal/core"
	"gastos/internal/ledger"
)

// maxFormBytes bounds every non-upload request body.
const maxFormBytes = 64 << 10

// ParsePeriodParam reads the month selector. It accepts month=YYYY-MM, or
// year and a numeric month, and falls back to the month containing now.
func ParsePeriodParam(query url.Values, now time.Time) core.Period {
	current := core.CurrentPeriod(now)
	raw := strings.TrimSpace(query.Get("month"))
	if raw == "" {
		return current
	}
	if p, err := core.ParsePeriod(raw); err == nil {
		return p
	}

	m, err := strconv.Atoi(raw)
	if err != nil || m < 1 || m > 12 {
		return current
	}
	p := core.Period{Year: current.Year, Month: time.Month(m)}
	if y, err := strconv.Atoi(strings.TrimSpace(query.Get("year"))); err == nil && y > 0 {
		p.Year = y
	}
	return p
}

// ParseUserParam reads the user selector. "all" and an empty value select
// every user; anything else is normalized like a CSV user cell.
func ParseUserParam(query url.Values, fallback string) string {
	raw := strings.TrimSpace(query.Get("user"))
	switch {
	case raw == "":
		return fallback
	case strings.EqualFold(raw, ledger.AllUsers):
		return ledger.AllUsers
	}
	return strings.ToLower(sanitizeInput(raw))
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxFormBytes of the body once and keeps
// it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Has reports whether key was sent at all, even empty.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParsePatch builds a patch from whichever transaction fields the body
// carries. A checkbox is only present when ticked, so forms send
// shared_present alongside it.
func ParsePatch(p *RequestBodyParser) (core.Patch, error) {
	var patch core.Patch
	if p.Has("date") {
		d, err := core.ParseDate(p.Get("date"))
		if err != nil {
			return core.Patch{}, err
		}
		patch.Date = &d
	}
	if p.Has("amount") {
		m, err := core.ParseAmount(p.Get("amount"))
		if err != nil {
			return core.Patch{}, err
		}
		patch.Amount = &m
	}
	if p.Has("category") {
		c, ok := core.NormalizeCategory(p.Get("category"))
		if !ok {
			return core.Patch{}, fmt.Errorf("%w: %q", core.ErrUnknownCategory, p.Get("category"))
		}
		patch.Category = &c
	}
	if p.Has("description") {
		d := p.Get("description")
		patch.Description = &d
	}
	if p.Has("shared") || p.Has("shared_present") {
		shared, err := parseCheckbox(p.Get("shared"))
		if err != nil {
			return core.Patch{}, err
		}
		patch.Shared = &shared
	}
	return patch, patch.Validate()
}

// parseCheckbox accepts the browser's "on" next to the usual spellings.
func parseCheckbox(v string) (bool, error) {
	if v == "on" {
		return true, nil
	}
	return core.ParseBoolStrict(v)
}

// ParseTransactionForm reads the manual-entry form. An empty category is
// left for the categorizer.
func ParseTransactionForm(form url.Values, userID string, now time.Time) (core.Transaction, error) {
	t := core.Transaction{
		UserID:      userID,
		Description: sanitizeInput(form.Get("description")),
		Shared:      form.Get("shared") == "on" || core.ParseBool(form.Get("shared")),
	}

	if raw := sanitizeInput(form.Get("date")); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			return core.Transaction{}, err
		}
		t.Date = d
	} else {
		t.Date = core.DateOf(now)
	}

	amount, err := core.ParseAmount(form.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	t.Amount = amount

	if raw := sanitizeInput(form.Get("category")); raw != "" {
		c, ok := core.NormalizeCategory(raw)
		if !ok {
			return core.Transaction{}, fmt.Errorf("%w: %q", core.ErrUnknownCategory, raw)
		}
		t.Category = c
	}
	return t, nil
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(w http.ResponseWriter, r *http.Request) *HTMXResponseBuilder {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Formato de solicitud no válido")
	}
	return nil
}

// sanitizeInput removes control characters except tab and newlines, and trims.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}
