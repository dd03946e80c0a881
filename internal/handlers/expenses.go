package handlers

import (
	"errors"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"

	"expense-insights/internal/log"
	"expense-insights/internal/models"
	"expense-insights/internal/storage"

	"github.com/go-chi/chi/v5"
)

// CategoryDef is a suggested category and its chart color.
type CategoryDef struct {
	Name  string
	Color string
}

var categories = []CategoryDef{
	{"Food", "#60a5fa"},
	{"Transport", "#a78bfa"},
	{"Shopping", "#f472b6"},
	{"Bills", "#fbbf24"},
	{"Entertainment", "#34d399"},
	{"Health", "#fb7185"},
	{"Housing", "#818cf8"},
	{"Other", "#94a3b8"},
}

var fallbackColors = []string{"#22d3ee", "#f97316", "#a3e635", "#e879f9", "#facc15"}

// categoryColor returns the suggested color for known categories and a
// stable color picked by name for the rest.
func categoryColor(category string) string {
	for _, c := range categories {
		if strings.EqualFold(c.Name, category) {
			return c.Color
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(category)))
	return fallbackColors[h.Sum32()%uint32(len(fallbackColors))]
}

// ExpenseItem represents an expense in a list view.
type ExpenseItem struct {
	models.Expense
	Color string
}

func expenseItems(expenses []models.Expense) []ExpenseItem {
	items := make([]ExpenseItem, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, ExpenseItem{Expense: e, Color: categoryColor(e.Category)})
	}
	return items
}

// HistoryViewModel is the data passed to the history view template.
type HistoryViewModel struct {
	Layout
	Search  string
	Page    int
	Items   []ExpenseItem
	HasNext bool
	Notice  string
}

// History renders one page of the user's expenses, newest first, filtered by ?search=.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	page = min(page, models.MaxPage)
	filter := models.ExpenseFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     page,
		PageSize: models.HistoryPageSize,
	}

	result, err := h.store.SearchExpenses(r.Context(), user.ID, filter)
	if err != nil {
		serverError(w, r, "search expenses failed", err)
		return
	}

	h.render(w, r, http.StatusOK, "history.html", HistoryViewModel{
		Layout:  Layout{Title: "History", User: user, Active: "history"},
		Search:  filter.Search,
		Page:    page,
		Items:   expenseItems(result.Items),
		HasNext: result.HasNext,
		Notice:  q.Get("notice"),
	})
}

// FormViewModel is the data passed to the create/edit form template. Fields
// hold the raw submitted text so a rejected form is shown as typed.
type FormViewModel struct {
	Layout
	ID          int64
	Date        string
	Category    string
	Amount      string
	Description string
	IsEdit      bool
	Error       string
	Categories  []CategoryDef
}

func (vm FormViewModel) Action() string {
	if vm.IsEdit {
		return "/expenses/" + strconv.FormatInt(vm.ID, 10) + "/edit"
	}
	return "/expenses/new"
}

// CreateExpenseForm renders the form to create a new expense.
func (h *Handlers) CreateExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "form.html", FormViewModel{
		Layout:     Layout{Title: "Add expense", User: GetUserFromContext(r), Active: "new"},
		Date:       h.today().Format(models.DateLayout),
		Categories: categories,
	})
}

// EditExpenseForm renders the form to edit an existing expense.
func (h *Handlers) EditExpenseForm(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	e, err := h.store.GetExpense(r.Context(), user.ID, id)
	if err != nil {
		h.expenseLookupError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "form.html", FormViewModel{
		Layout:      Layout{Title: "Edit expense", User: user, Active: "history"},
		ID:          e.ID,
		Date:        e.DateString(),
		Category:    e.Category,
		Amount:      e.AmountString(),
		Description: e.Description,
		IsEdit:      true,
		Categories:  categories,
	})
}

// CreateExpense handles the creation of a new expense.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	e, ok := h.parseExpenseForm(w, r, user, 0)
	if !ok {
		return
	}
	if err := h.store.CreateExpense(r.Context(), &e); err != nil {
		serverError(w, r, "create expense failed", err)
		return
	}
	log.FromContext(r.Context()).Info("expense created", "expense_id", e.ID, "category", e.Category, "amount", e.AmountString())
	redirect(w, r, "/history")
}

// UpdateExpense handles the update of an existing expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	e, ok := h.parseExpenseForm(w, r, user, id)
	if !ok {
		return
	}
	e.ID = id
	res, err := h.store.UpdateExpense(r.Context(), user.ID, &e)
	if err != nil {
		serverError(w, r, "update expense failed", err)
		return
	}
	if !h.mutationOK(w, r, res) {
		return
	}
	redirect(w, r, "/history")
}

// DeleteExpense removes an owned expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	res, err := h.store.DeleteExpense(r.Context(), user.ID, id)
	if err != nil {
		serverError(w, r, "delete expense failed", err)
		return
	}
	if !h.mutationOK(w, r, res) {
		return
	}
	log.FromContext(r.Context()).Info("expense deleted", "expense_id", id)
	redirect(w, r, "/history")
}

// parseExpenseForm validates the submitted form. On failure it re-renders the
// form with 422 and returns ok=false.
func (h *Handlers) parseExpenseForm(w http.ResponseWriter, r *http.Request, user *models.User, id int64) (models.Expense, bool) {
	vm := FormViewModel{
		Layout:     Layout{Title: "Add expense", User: user, Active: "new"},
		ID:         id,
		IsEdit:     id != 0,
		Categories: categories,
	}
	if vm.IsEdit {
		vm.Title, vm.Active = "Edit expense", "history"
	}
	if err := r.ParseForm(); err != nil {
		vm.Error = "Invalid form submission"
		h.render(w, r, http.StatusBadRequest, "form.html", vm)
		return models.Expense{}, false
	}
	vm.Date = r.FormValue("date")
	vm.Category = r.FormValue("category")
	vm.Amount = r.FormValue("amount")
	vm.Description = r.FormValue("description")

	e, err := models.NewExpense(user.ID, vm.Date, vm.Category, vm.Amount, vm.Description)
	if err != nil {
		vm.Error = formError(err)
		h.render(w, r, http.StatusUnprocessableEntity, "form.html", vm)
		return models.Expense{}, false
	}
	return e, true
}

func formError(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		return "Amount must be a number of zero or more"
	case errors.Is(err, models.ErrInvalidDate):
		return "Date must look like 2025-01-31"
	case errors.Is(err, models.ErrEmptyCategory):
		return "Category is required"
	case errors.Is(err, models.ErrDescriptionTooLong):
		return "Description must be 200 characters or fewer"
	default:
		return "Invalid expense"
	}
}

func expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handlers) expenseLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "Expense not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrForbidden):
		log.FromContext(r.Context()).Warn("foreign expense access denied")
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		serverError(w, r, "get expense failed", err)
	}
}

func (h *Handlers) mutationOK(w http.ResponseWriter, r *http.Request, res models.MutationResult) bool {
	switch res {
	case models.MutationApplied:
		return true
	case models.MutationForbidden:
		log.FromContext(r.Context()).Warn("foreign expense mutation denied")
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		http.Error(w, "Expense not found", http.StatusNotFound)
	}
	return false
}
