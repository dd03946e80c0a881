package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"expense-insights/internal/export"
	"expense-insights/internal/log"
	"expense-insights/internal/models"
)

const maxImportBytes = 5 << 20

// Export downloads the user's full expense set as CSV.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	expenses, err := h.store.ListExpenses(r.Context(), user.ID)
	if err != nil {
		serverError(w, r, "list expenses failed", err)
		return
	}

	filename := fmt.Sprintf("expenses-%s.csv", h.today().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.WriteCSV(w, expenses); err != nil {
		log.FromContext(r.Context()).Warn("write csv failed", log.FieldError, err)
	}
}

// Import stores the valid rows of an uploaded CSV file in one transaction and
// reports how many were rejected.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	logger := log.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A CSV file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	rows, err := export.ReadCSV(file)
	if err != nil {
		http.Error(w, "Could not read CSV: "+err.Error(), http.StatusBadRequest)
		return
	}

	var valid []models.Expense
	rejected := 0
	for _, row := range rows {
		e, err := row.Expense(user.ID)
		if err != nil {
			logger.Debug("import row rejected", log.FieldError, err)
			rejected++
			continue
		}
		valid = append(valid, e)
	}
	imported := len(valid)
	if imported > 0 {
		if err := h.store.ImportExpenses(r.Context(), valid); err != nil {
			logger.Error("import failed", "rows", imported, log.FieldError, err)
			http.Error(w, "Import failed, no expenses were imported", http.StatusInternalServerError)
			return
		}
	}
	logger.Info("csv imported", "imported", imported, "rejected", rejected)

	notice := strconv.Itoa(imported) + " imported, " + strconv.Itoa(rejected) + " rejected"
	redirect(w, r, "/history?notice="+url.QueryEscape(notice))
}
