package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/ledger"
)

var fixedNow = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func TestParsePeriodParam(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  core.Period
	}{
		{
			name:  "month key",
			query: url.Values{"month": {"2024-11"}},
			want:  core.Period{Year: 2024, Month: time.November},
		},
		{
			name:  "numeric month and year",
			query: url.Values{"month": {"6"}, "year": {"2023"}},
			want:  core.Period{Year: 2023, Month: time.June},
		},
		{
			name:  "numeric month uses current year",
			query: url.Values{"month": {"2"}},
			want:  core.Period{Year: 2025, Month: time.February},
		},
		{
			name:  "empty falls back to current month",
			query: url.Values{},
			want:  core.Period{Year: 2025, Month: time.March},
		},
		{
			name:  "garbage falls back to current month",
			query: url.Values{"month": {"abc"}},
			want:  core.Period{Year: 2025, Month: time.March},
		},
		{
			name:  "out of range month falls back",
			query: url.Values{"month": {"13"}},
			want:  core.Period{Year: 2025, Month: time.March},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePeriodParam(tt.query, fixedNow)
			if got != tt.want {
				t.Errorf("ParsePeriodParam() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseUserParam(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  string
	}{
		{"empty uses fallback", url.Values{}, "ana"},
		{"all in any case", url.Values{"user": {"ALL"}}, ledger.AllUsers},
		{"normalized", url.Values{"user": {"  Luis "}}, "luis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseUserParam(tt.query, "ana"); got != tt.want {
				t.Errorf("ParseUserParam() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestBodyParser_FormAndJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantJSON    bool
		wantAmount  string
		wantHasDesc bool
	}{
		{
			name:        "form encoded",
			body:        "amount=12%2C50&description=",
			wantAmount:  "12,50",
			wantHasDesc: true,
		},
		{
			name:       "json",
			body:       `{"amount": 7.5}`,
			wantJSON:   true,
			wantAmount: "7.5",
		},
		{
			name: "empty body",
			body: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/transactions/1", strings.NewReader(tt.body))
			p := NewRequestBodyParser(req)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON() = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
			if got := p.Get("amount"); got != tt.wantAmount {
				t.Errorf("Get(amount) = %q, want %q", got, tt.wantAmount)
			}
			if p.Has("description") != tt.wantHasDesc {
				t.Errorf("Has(description) = %v, want %v", p.Has("description"), tt.wantHasDesc)
			}
		})
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":`))
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	// A second call returns the same error without reparsing.
	if err := p.Parse(); err == nil {
		t.Fatal("expected cached error")
	}
}

func parsePatchFrom(t *testing.T, body string) (core.Patch, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transactions/1", strings.NewReader(body))
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return ParsePatch(p)
}

func TestParsePatch(t *testing.T) {
	t.Run("single field", func(t *testing.T) {
		patch, err := parsePatchFrom(t, "amount=1.234%2C56")
		if err != nil {
			t.Fatalf("ParsePatch() error = %v", err)
		}
		if patch.Amount == nil || patch.Amount.StringFixed() != "1234.56" {
			t.Errorf("Amount = %v, want 1234.56", patch.Amount)
		}
		if patch.Date != nil || patch.Category != nil || patch.Shared != nil {
			t.Error("untouched fields should stay nil")
		}
	})

	t.Run("category is normalized", func(t *testing.T) {
		patch, err := parsePatchFrom(t, "category=supermercado")
		if err != nil {
			t.Fatalf("ParsePatch() error = %v", err)
		}
		if patch.Category == nil || *patch.Category != "Supermercado" {
			t.Errorf("Category = %v, want Supermercado", patch.Category)
		}
	})

	t.Run("unchecked checkbox", func(t *testing.T) {
		patch, err := parsePatchFrom(t, "shared_present=1")
		if err != nil {
			t.Fatalf("ParsePatch() error = %v", err)
		}
		if patch.Shared == nil || *patch.Shared {
			t.Errorf("Shared = %v, want false", patch.Shared)
		}
	})

	t.Run("checked checkbox", func(t *testing.T) {
		patch, err := parsePatchFrom(t, "shared=on&shared_present=1")
		if err != nil {
			t.Fatalf("ParsePatch() error = %v", err)
		}
		if patch.Shared == nil || !*patch.Shared {
			t.Errorf("Shared = %v, want true", patch.Shared)
		}
	})

	errorCases := []struct {
		name string
		body string
		want error
	}{
		{"bad amount", "amount=abc", core.ErrInvalidAmount},
		{"bad date", "date=31%2F02%2F2024x", core.ErrInvalidDate},
		{"unknown category", "category=Nada", core.ErrUnknownCategory},
		{"bad shared", "shared=quizas", core.ErrInvalidBool},
		{"nothing to change", "", core.ErrEmptyPatch},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePatchFrom(t, tt.body)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParsePatch() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseTransactionForm(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		form := url.Values{"amount": {"12,50"}, "description": {"  Mercadona  "}}
		tx, err := ParseTransactionForm(form, "ana", fixedNow)
		if err != nil {
			t.Fatalf("ParseTransactionForm() error = %v", err)
		}
		if tx.Date.String() != "2025-03-14" {
			t.Errorf("Date = %s, want today", tx.Date)
		}
		if tx.Description != "Mercadona" {
			t.Errorf("Description = %q", tx.Description)
		}
		if tx.Category != "" {
			t.Errorf("Category = %q, want empty for the categorizer", tx.Category)
		}
		if tx.UserID != "ana" || tx.Shared {
			t.Errorf("UserID = %q Shared = %v", tx.UserID, tx.Shared)
		}
	})

	t.Run("all fields", func(t *testing.T) {
		form := url.Values{
			"date":        {"2025-02-01"},
			"amount":      {"40"},
			"description": {"Cena"},
			"category":    {"comer fuera"},
			"shared":      {"on"},
		}
		tx, err := ParseTransactionForm(form, "ana", fixedNow)
		if err != nil {
			t.Fatalf("ParseTransactionForm() error = %v", err)
		}
		if tx.Category != "Comer fuera" || !tx.Shared || tx.Month() != "2025-02" {
			t.Errorf("got %+v", tx)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		if _, err := ParseTransactionForm(url.Values{"amount": {""}}, "ana", fixedNow); !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("missing amount error = %v", err)
		}
		if _, err := ParseTransactionForm(url.Values{"amount": {"1"}, "category": {"???"}}, "ana", fixedNow); !errors.Is(err, core.ErrUnknownCategory) {
			t.Errorf("unknown category error = %v", err)
		}
	})
}

func TestParseFormOrFail(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		body := "description=" + strings.Repeat("x", maxFormBytes+1)
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		resp := ParseFormOrFail(w, req)
		if resp == nil {
			t.Fatal("expected an error response")
		}
		resp.Write(w)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("amount=1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if resp := ParseFormOrFail(httptest.NewRecorder(), req); resp != nil {
			t.Fatal("unexpected error response")
		}
		if req.PostForm.Get("amount") != "1" {
			t.Errorf("amount = %q", req.PostForm.Get("amount"))
		}
	})
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hola  ", "hola"},
		{"a\x00b\x07c", "abc"},
		{"línea\tcon tab", "línea\tcon tab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
