package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/services"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusAccepted).
		BodyHTML("<p>ok</p>").
		Write(w)

	if w.Code != http.StatusAccepted {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("Body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should be absent without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerTransactionUpdated("abc", "2025-03").
		TriggerReportRefresh("2025-03").
		TriggerFormReset().
		TriggerSuccessNotification("Guardado").
		Write(w)

	var triggers map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"transaction:updated", "report:refresh", "form:reset", "show-notification"} {
		if _, ok := triggers[name]; !ok {
			t.Errorf("HX-Trigger missing %q", name)
		}
	}

	var updated map[string]string
	if err := json.Unmarshal(triggers["transaction:updated"], &updated); err != nil {
		t.Fatal(err)
	}
	if updated["id"] != "abc" || updated["month"] != "2025-03" {
		t.Errorf("transaction:updated = %v", updated)
	}

	var note map[string]any
	if err := json.Unmarshal(triggers["show-notification"], &note); err != nil {
		t.Fatal(err)
	}
	if note["type"] != "success" || note["message"] != "Guardado" {
		t.Errorf("show-notification = %v", note)
	}
}

func TestHTMXResponseBuilder_ImportCommitted(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().TriggerImportCommitted(12).Redirect("/report?month=2025-03").Write(w)

	if !strings.Contains(w.Header().Get("HX-Trigger"), `"import:committed":{"count":12}`) {
		t.Errorf("HX-Trigger = %s", w.Header().Get("HX-Trigger"))
	}
	if w.Header().Get("HX-Redirect") != "/report?month=2025-03" {
		t.Errorf("HX-Redirect = %q", w.Header().Get("HX-Redirect"))
	}
}

func TestErrorResponse_EscapesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	BadRequestError(`<script>alert("x")</script>`).Write(w)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status code = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "<script>") {
		t.Errorf("message was not escaped: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `role="alert"`) {
		t.Errorf("missing alert role: %s", w.Body.String())
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name string
		b    *HTMXResponseBuilder
		want int
	}{
		{"unprocessable", UnprocessableEntityError("x"), http.StatusUnprocessableEntity},
		{"internal", InternalServerError("x"), http.StatusInternalServerError},
		{"not found", NotFoundError("x"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.b.Write(w)
			if w.Code != tt.want {
				t.Errorf("Status code = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantExpected bool
	}{
		{"wrapped amount", fmt.Errorf("row 3: %w", core.ErrInvalidAmount), http.StatusUnprocessableEntity, true},
		{"category", core.ErrUnknownCategory, http.StatusUnprocessableEntity, true},
		{"too large", services.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, true},
		{"expired import", services.ErrImportNotFound, http.StatusNotFound, true},
		{"missing record", ledger.ErrNotFound, http.StatusNotFound, true},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, true},
		{"duplicate user", auth.ErrUserExists, http.StatusConflict, true},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, expected := ErrorFor(tt.err)
			w := httptest.NewRecorder()
			b.Write(w)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if expected != tt.wantExpected {
				t.Errorf("expected = %v, want %v", expected, tt.wantExpected)
			}
			if strings.Contains(w.Body.String(), "disk on fire") {
				t.Error("unexpected errors must not leak into the response")
			}
		})
	}
}
