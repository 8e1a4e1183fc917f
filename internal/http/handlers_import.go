package http

import (
	"errors"
	"net/http"
	"strconv"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/ingest"
	"gastos/internal/log"
	"gastos/internal/services"
)

// multipartOverhead leaves room for boundaries and the other form fields on
// top of the file itself.
const multipartOverhead = 64 << 10

type importPage struct {
	Title      string
	User       *auth.User
	Categories []string
	Preview    *services.ImportPreview
	Fields     []ingest.Field
	Error      string
	// Shown is how many rows the table lists before "show all".
	Shown   int
	ShowAll bool
}

func (s *Server) importPage(r *http.Request, preview *services.ImportPreview) importPage {
	return importPage{
		Title:      "Importar CSV",
		User:       auth.UserFrom(r.Context()),
		Categories: core.Categories(),
		Preview:    preview,
		Fields:     ingest.EditableFields,
		Shown:      ingest.PreviewRows,
		ShowAll:    r.URL.Query().Get("all") == "1",
	}
}

func (s *Server) handleImportPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "import.html", s.importPage(r, nil))
}

// handleImportUpload parses the uploaded CSV and stages it for review.
func (s *Server) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := auth.UserFrom(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.importFailed(w, r, services.ErrUploadTooLarge)
			return
		}
		BadRequestError("Formulario de subida no válido").Write(w)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		UnprocessableEntityError("Selecciona un archivo CSV").Write(w)
		return
	}
	defer file.Close()
	if header.Size > s.maxUpload {
		s.importFailed(w, r, services.ErrUploadTooLarge)
		return
	}

	log.FromContext(ctx).WithComponent(log.ComponentIngest).InfoContext(ctx, "Upload received",
		log.FieldOperation, log.OpImport,
		"filename", header.Filename,
		"size", header.Size)

	preview, err := s.ledger.StartImport(ctx, u.ID, file)
	if err != nil {
		s.importFailed(w, r, err)
		return
	}
	s.writeImportPreview(w, r, http.StatusCreated, preview, nil)
}

// importFailed re-renders the upload form with the reason, or the bare
// error for htmx and API clients.
func (s *Server) importFailed(w http.ResponseWriter, r *http.Request, err error) {
	if wantsJSON(r) || isHTMX(r) {
		writeError(w, r, log.OpImport, err)
		return
	}
	status, msg, expected := classifyError(err)
	if !expected {
		log.LogError(r.Context(), "Import failed", err, log.ErrorTypeInternal, log.ComponentIngest, log.OpImport, nil)
	}
	page := s.importPage(r, nil)
	page.Error = msg
	s.render(w, r, status, "import.html", page)
}

func (s *Server) writeImportPreview(w http.ResponseWriter, r *http.Request, status int, preview services.ImportPreview, decorate func(*HTMXResponseBuilder)) {
	switch {
	case wantsJSON(r):
		writeJSON(w, status, preview)
	case isHTMX(r):
		html, err := s.renderPartial("import_preview", s.importPage(r, &preview))
		if err != nil {
			writeError(w, r, log.OpRender, err)
			return
		}
		b := NewHTMXResponse().Status(status).BodyBytes(html)
		if decorate != nil {
			decorate(b)
		}
		b.Write(w)
	default:
		http.Redirect(w, r, "/import/"+preview.ID, http.StatusSeeOther)
	}
}

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	preview, err := s.ledger.PendingImport(u.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	if wantsJSON(r) || isHTMX(r) {
		s.writeImportPreview(w, r, http.StatusOK, preview, nil)
		return
	}
	s.render(w, r, http.StatusOK, "import.html", s.importPage(r, &preview))
}

func rowIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || i < 0 {
		return 0, ingest.ErrRowIndex
	}
	return i, nil
}

// handleImportEditRow applies every editable field present in the form to
// one pending row in a single step: one invalid value rejects the whole edit.
func (s *Server) handleImportEditRow(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	index, err := rowIndex(r)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("Formato de solicitud no válido").Write(w)
		return
	}

	values := make(map[ingest.Field]string)
	for _, f := range ingest.EditableFields {
		name := string(f)
		if !body.Has(name) {
			continue
		}
		value := body.Get(name)
		if f == ingest.FieldShared && value == "on" {
			value = "true"
		}
		values[f] = value
	}
	if len(values) == 0 {
		UnprocessableEntityError("No hay cambios que guardar").Write(w)
		return
	}

	preview, err := s.ledger.EditImport(u.ID, r.PathValue("id"), index, values)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	s.writeImportPreview(w, r, http.StatusOK, preview, nil)
}

func (s *Server) handleImportRemoveRow(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	index, err := rowIndex(r)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	preview, err := s.ledger.RemoveImportRow(u.ID, r.PathValue("id"), index)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	s.writeImportPreview(w, r, http.StatusOK, preview, nil)
}

// handleImportCommit writes the staged rows and sends the user to the month
// of the first one.
func (s *Server) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := auth.UserFrom(ctx)
	saved, err := s.ledger.CommitImport(ctx, u.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}

	target := "/report"
	if len(saved) > 0 {
		target += "?month=" + saved[0].Month()
	}
	switch {
	case wantsJSON(r):
		writeJSON(w, http.StatusCreated, map[string]any{"count": len(saved), "transactions": saved})
	case isHTMX(r):
		NewHTMXResponse().
			TriggerImportCommitted(len(saved)).
			TriggerSuccessNotification(strconv.Itoa(len(saved)) + " movimientos importados").
			Redirect(target).
			Write(w)
	default:
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

func (s *Server) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	if !s.ledger.CancelImport(u.ID, r.PathValue("id")) {
		writeError(w, r, log.OpImport, services.ErrImportNotFound)
		return
	}
	switch {
	case wantsJSON(r):
		w.WriteHeader(http.StatusNoContent)
	case isHTMX(r):
		NewHTMXResponse().Redirect("/import").Write(w)
	default:
		http.Redirect(w, r, "/import", http.StatusSeeOther)
	}
}
