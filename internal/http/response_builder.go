// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing HTMX responses.
// It provides a type-safe, fluent API for building HX-Trigger headers and
// consistent response formatting.

package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/ingest"
	"gastos/internal/ledger"
	"gastos/internal/report"
	"gastos/internal/services"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
// It encapsulates the construction of HX-Trigger headers and response bodies.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerTransactionCreated tells listeners a record landed in month.
func (b *HTMXResponseBuilder) TriggerTransactionCreated(month string) *HTMXResponseBuilder {
	return b.Trigger("transaction:created", map[string]string{"month": month})
}

// TriggerTransactionUpdated tells listeners a record changed.
func (b *HTMXResponseBuilder) TriggerTransactionUpdated(id, month string) *HTMXResponseBuilder {
	return b.Trigger("transaction:updated", map[string]string{"id": id, "month": month})
}

// TriggerTransactionDeleted tells listeners a record is gone.
func (b *HTMXResponseBuilder) TriggerTransactionDeleted(id, month string) *HTMXResponseBuilder {
	return b.Trigger("transaction:deleted", map[string]string{"id": id, "month": month})
}

// TriggerImportCommitted reports how many rows an import wrote.
func (b *HTMXResponseBuilder) TriggerImportCommitted(count int) *HTMXResponseBuilder {
	return b.Trigger("import:committed", map[string]int{"count": count})
}

// TriggerReportRefresh asks the report and settlement panels to reload.
func (b *HTMXResponseBuilder) TriggerReportRefresh(month string) *HTMXResponseBuilder {
	return b.Trigger("report:refresh", map[string]string{"month": month})
}

// TriggerFormReset adds the form:reset trigger.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// TriggerNotification adds a show-notification trigger with the specified parameters.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

// TriggerSuccessNotification is a convenience method for success notifications.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// TriggerErrorNotification is a convenience method for error notifications.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// Redirect makes htmx perform a full navigation to url.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// BodyBytes sets an already rendered HTML body.
func (b *HTMXResponseBuilder) BodyBytes(html []byte) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = html
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates a standard error response with HTML formatting.
// The message is HTML-escaped for safety.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	escapedMsg := template.HTMLEscapeString(message)
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error" role="alert">` + escapedMsg + `</div>`)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ErrorFor maps domain errors onto a status and a message safe to show. The
// second result is false for failures the user cannot fix, which callers log.
func ErrorFor(err error) (*HTMXResponseBuilder, bool) {
	status, msg, expected := classifyError(err)
	return ErrorResponse(status, msg), expected
}

func classifyError(err error) (status int, message string, expected bool) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Importe no válido", true
	case errors.Is(err, core.ErrInvalidDate):
		return http.StatusUnprocessableEntity, "Fecha no válida", true
	case errors.Is(err, core.ErrInvalidBool):
		return http.StatusUnprocessableEntity, "Valor de compartido no válido", true
	case errors.Is(err, core.ErrUnknownCategory):
		return http.StatusUnprocessableEntity, "Categoría desconocida", true
	case errors.Is(err, core.ErrEmptyDescription), errors.Is(err, core.ErrDescriptionLong):
		return http.StatusUnprocessableEntity, "Descripción no válida: " + err.Error(), true
	case errors.Is(err, core.ErrEmptyPatch):
		return http.StatusUnprocessableEntity, "No hay cambios que guardar", true
	case errors.Is(err, core.ErrEmptyUser), errors.Is(err, ingest.ErrMissingUser), errors.Is(err, ingest.ErrNoSessionUser):
		return http.StatusUnprocessableEntity, "Falta el usuario", true
	case errors.Is(err, ingest.ErrMissingColumns):
		return http.StatusUnprocessableEntity, err.Error(), true
	case errors.Is(err, ingest.ErrRowIndex), errors.Is(err, ingest.ErrUnknownField):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, ingest.ErrEmptyBatch):
		return http.StatusUnprocessableEntity, "No hay filas válidas que importar", true
	case errors.Is(err, services.ErrEmptyUpload):
		return http.StatusUnprocessableEntity, "El archivo está vacío", true
	case errors.Is(err, services.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "El archivo supera el tamaño máximo", true
	case errors.Is(err, services.ErrImportNotFound):
		return http.StatusNotFound, "La importación ha caducado o no existe", true
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, report.ErrNotInReport):
		return http.StatusNotFound, "Movimiento no encontrado", true
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Email o contraseña incorrectos", true
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict, "Ya existe una cuenta con ese email o nombre", true
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrEmptyName):
		return http.StatusUnprocessableEntity, err.Error(), true
	case errors.Is(err, auth.ErrInvalidSession):
		return http.StatusUnauthorized, "Sesión caducada", true
	}
	return http.StatusInternalServerError, "Error interno, inténtalo de nuevo", false
}
