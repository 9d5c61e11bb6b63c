package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/export"
)

const (
	exportSheet     = "Items"
	formatCSV       = "csv"
	formatXLSX      = "xlsx"
	formContentType = "application/x-www-form-urlencoded"
)

var (
	errNotFoundRoute     = errors.New("not found")
	errUnsupportedFormat = errors.New("format must be csv or xlsx")
)

func (a *API) handleTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.TableCreateRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.OpenTable(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.TableResponse{Table: view})
}

// handleTableActions routes /api/v1/tables/{id}[/rows[/{rowID}]|/body|/form|/export|/events].
func (a *API) handleTableActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tables/"), "/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		writeError(w, http.StatusNotFound, errNotFoundRoute)
		return
	}
	tableID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleTable(w, r, tableID)
	case len(parts) == 2 && parts[1] == "rows":
		a.handleRows(w, r, tableID)
	case len(parts) == 3 && parts[1] == "rows":
		a.handleRow(w, r, tableID, parts[2])
	case len(parts) == 2 && parts[1] == "body":
		a.handleTableBody(w, r, tableID)
	case len(parts) == 2 && parts[1] == "form":
		a.handleTableForm(w, r, tableID)
	case len(parts) == 2 && parts[1] == "export":
		a.handleTableExport(w, r, tableID)
	case len(parts) == 2 && parts[1] == "events":
		a.handleTableEvents(w, r, tableID)
	default:
		writeError(w, http.StatusNotFound, errNotFoundRoute)
	}
}

func (a *API) handleTable(w http.ResponseWriter, r *http.Request, tableID string) {
	switch r.Method {
	case http.MethodGet:
		view, err := a.service.GetTable(r.Context(), tableID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.TableResponse{Table: view})
	case http.MethodDelete:
		if err := a.service.CloseTable(r.Context(), tableID); err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRows(w http.ResponseWriter, r *http.Request, tableID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RowAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.AddRow(r.Context(), tableID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.TableResponse{Table: view})
}

func (a *API) handleRow(w http.ResponseWriter, r *http.Request, tableID string, rowID string) {
	var (
		view domain.TableView
		err  error
	)
	switch r.Method {
	case http.MethodPatch:
		var req domain.RowUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err = a.service.UpdateRow(r.Context(), tableID, rowID, req)
	case http.MethodDelete:
		view, err = a.service.RemoveRow(r.Context(), tableID, rowID)
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TableResponse{Table: view})
}

// handleTableBody serves the rendered <tr> rows for the form's table body.
func (a *API) handleTableBody(w http.ResponseWriter, r *http.Request, tableID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	table, err := a.service.Table(r.Context(), tableID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := table.RenderBody(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleTableForm serves the body the browser would post for the table.
func (a *API) handleTableForm(w http.ResponseWriter, r *http.Request, tableID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	table, err := a.service.Table(r.Context(), tableID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", formContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(table.FormValues().Encode()))
}

func (a *API) handleTableExport(w http.ResponseWriter, r *http.Request, tableID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = formatCSV
	}
	if format != formatCSV && format != formatXLSX {
		writeError(w, http.StatusBadRequest, errUnsupportedFormat)
		return
	}

	table, err := a.service.Table(r.Context(), tableID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	filename := query.Get("filename")
	switch format {
	case formatXLSX:
		err = export.ServeXLSX(w, filename, exportSheet, table)
	default:
		err = export.ServeCSV(w, filename, table)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.metrics.Exported(format)
}
