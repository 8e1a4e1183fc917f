package http

import (
	"html/template"
	"net/http"

	"gastos/internal/auth"
	"gastos/internal/log"
)

// handleCreateTransaction stores a manual entry for the signed-in user.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	u := auth.UserFrom(ctx)

	t, err := ParseTransactionForm(r.PostForm, u.ID, s.now())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	created, err := s.ledger.CreateTransaction(ctx, t)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	switch {
	case wantsJSON(r):
		writeJSON(w, http.StatusCreated, created)
	case isHTMX(r):
		NewHTMXResponse().
			Status(http.StatusCreated).
			TriggerTransactionCreated(created.Month()).
			TriggerFormReset().
			TriggerSuccessNotification("Movimiento guardado").
			BodyHTML(`<div class="success">Guardado: ` +
				template.HTMLEscapeString(created.Description) + ` · ` +
				template.HTMLEscapeString(created.Amount.Display()) + ` · ` +
				template.HTMLEscapeString(created.Category) + `</div>`).
			Write(w)
	default:
		http.Redirect(w, r, "/?month="+created.Month(), http.StatusSeeOther)
	}
}

// inReportContext reports whether the request came from the report page,
// which sends its month selector so the edit can be re-aggregated locally.
func inReportContext(r *http.Request) bool {
	return r.URL.Query().Get("month") != ""
}

// handleUpdateTransaction applies an inline edit. From the report page the
// response is the re-aggregated report body; otherwise the stored record.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("Formato de solicitud no válido").Write(w)
		return
	}
	patch, err := ParsePatch(body)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	if !inReportContext(r) {
		updated, err := s.ledger.UpdateTransaction(ctx, id, patch)
		if err != nil {
			writeError(w, r, log.OpUpdate, err)
			return
		}
		if wantsJSON(r) || body.IsJSON() {
			writeJSON(w, http.StatusOK, updated)
			return
		}
		NewHTMXResponse().
			TriggerTransactionUpdated(updated.ID, updated.Month()).
			TriggerSuccessNotification("Cambios guardados").
			Write(w)
		return
	}

	q := s.reportQuery(r)
	rep, err := s.ledger.Report(ctx, q.User, q.Period)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return
	}
	next, updated, err := s.ledger.ApplyEdit(ctx, rep, id, patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	s.writeReportBody(w, r, q, next, func(b *HTMXResponseBuilder) {
		b.TriggerTransactionUpdated(updated.ID, updated.Month()).
			TriggerReportRefresh(q.Period.String()).
			TriggerSuccessNotification("Cambios guardados")
	})
}

// handleDeleteTransaction removes a record. From the report page the
// response is the report body without it.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if !inReportContext(r) {
		existing, err := s.ledger.Transaction(ctx, id)
		if err != nil {
			writeError(w, r, log.OpDelete, err)
			return
		}
		if err := s.ledger.DeleteTransaction(ctx, id); err != nil {
			writeError(w, r, log.OpDelete, err)
			return
		}
		if wantsJSON(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		NewHTMXResponse().
			TriggerTransactionDeleted(id, existing.Month()).
			TriggerSuccessNotification("Movimiento eliminado").
			Write(w)
		return
	}

	q := s.reportQuery(r)
	rep, err := s.ledger.Report(ctx, q.User, q.Period)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return
	}
	next, err := s.ledger.RemoveFromReport(ctx, rep, id)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	s.writeReportBody(w, r, q, next, func(b *HTMXResponseBuilder) {
		b.TriggerTransactionDeleted(id, q.Period.String()).
			TriggerReportRefresh(q.Period.String()).
			TriggerSuccessNotification("Movimiento eliminado")
	})
}
