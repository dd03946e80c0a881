package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"expense-insights/internal/insight"
	"expense-insights/internal/log"
	"expense-insights/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// CategoryBar is one row of the category chart.
type CategoryBar struct {
	Name    string
	Amount  decimal.Decimal
	Percent decimal.Decimal
	Width   string
	Color   string
}

// MonthBar is one column of the monthly chart.
type MonthBar struct {
	Month  string
	Amount decimal.Decimal
	Height string
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Layout
	Snapshot   insight.Snapshot
	Categories []CategoryBar
	Months     []MonthBar
	Recent     []ExpenseItem
}

// InsightsViewModel is the data passed to the insights template.
type InsightsViewModel struct {
	Layout
	Snapshot insight.Snapshot
	Months   []MonthBar
}

func (h *Handlers) snapshot(ctx context.Context, userID int64) (insight.Snapshot, error) {
	expenses, err := h.store.ListExpenses(ctx, userID)
	if err != nil {
		return insight.Snapshot{}, err
	}
	return insight.Analyze(insight.FromExpenses(expenses)), nil
}

// Dashboard renders totals, the category and monthly charts and the latest expenses.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	var snap insight.Snapshot
	var recent *models.ExpensePage
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		snap, err = h.snapshot(ctx, user.ID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = h.store.SearchExpenses(ctx, user.ID, models.ExpenseFilter{Page: 1, PageSize: models.HistoryPageSize})
		return err
	})
	if err := g.Wait(); err != nil {
		serverError(w, r, "load dashboard failed", err)
		return
	}

	h.render(w, r, http.StatusOK, "dashboard.html", DashboardViewModel{
		Layout:     Layout{Title: "Dashboard", User: user, Active: "dashboard"},
		Snapshot:   snap,
		Categories: categoryBars(snap.Categories),
		Months:     monthBars(snap.Monthly),
		Recent:     expenseItems(recent.Items),
	})
}

// Insights renders the concentration message, the prediction and the personality.
func (h *Handlers) Insights(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	snap, err := h.snapshot(r.Context(), user.ID)
	if err != nil {
		serverError(w, r, "load insights failed", err)
		return
	}
	log.FromContext(r.Context()).Debug("insights computed",
		"records", snap.Records, "level", string(snap.Level), "personality", snap.Personality.Label)

	h.render(w, r, http.StatusOK, "insights.html", InsightsViewModel{
		Layout:   Layout{Title: "Insights", User: user, Active: "insights"},
		Snapshot: snap,
		Months:   monthBars(snap.Monthly),
	})
}

// MonthJSON is one point of the monthly series.
type MonthJSON struct {
	Month  string `json:"month"`
	Amount string `json:"amount"`
}

// InsightsResponse is the JSON form of a snapshot. Undefined statistics are
// rendered as insight.NotAvailable.
type InsightsResponse struct {
	Total          string            `json:"total"`
	TopCategory    string            `json:"top_category"`
	TopCategoryPct string            `json:"top_category_pct"`
	CategorySums   map[string]string `json:"category_sums"`
	MonthlySeries  []MonthJSON       `json:"monthly_series"`
	PredictedNext  string            `json:"predicted_next"`
	Message        string            `json:"message"`
	Level          string            `json:"level"`
	Personality    string            `json:"personality"`
	Skipped        int               `json:"skipped"`
}

// NewInsightsResponse converts a snapshot for the JSON API.
func NewInsightsResponse(s insight.Snapshot) InsightsResponse {
	resp := InsightsResponse{
		Total:          s.Total.StringFixed(2),
		TopCategory:    s.TopCategory,
		TopCategoryPct: s.TopShareLabel(),
		CategorySums:   make(map[string]string, len(s.CategorySums)),
		MonthlySeries:  make([]MonthJSON, 0, len(s.Monthly)),
		PredictedNext:  s.PredictedNextLabel(),
		Message:        s.Message,
		Level:          string(s.Level),
		Personality:    s.Personality.Label,
		Skipped:        s.Skipped,
	}
	for name, sum := range s.CategorySums {
		resp.CategorySums[name] = sum.StringFixed(2)
	}
	for _, m := range s.Monthly {
		resp.MonthlySeries = append(resp.MonthlySeries, MonthJSON{Month: m.Month, Amount: m.Amount.StringFixed(2)})
	}
	return resp
}

// APIInsights serves the current user's snapshot as JSON.
func (h *Handlers) APIInsights(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	snap, err := h.snapshot(r.Context(), user.ID)
	if err != nil {
		serverError(w, r, "load insights failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(NewInsightsResponse(snap)); err != nil {
		log.FromContext(r.Context()).Warn("encode insights failed", log.FieldError, err)
	}
}

func categoryBars(shares []insight.CategoryShare) []CategoryBar {
	bars := make([]CategoryBar, 0, len(shares))
	for _, s := range shares {
		bars = append(bars, CategoryBar{
			Name:    s.Category,
			Amount:  s.Amount,
			Percent: s.Percent,
			Width:   s.Percent.StringFixed(2) + "%",
			Color:   categoryColor(s.Category),
		})
	}
	return bars
}

// monthBars scales each month against the largest one.
func monthBars(months []insight.MonthAmount) []MonthBar {
	peak := decimal.Zero
	for _, m := range months {
		peak = decimal.Max(peak, m.Amount)
	}
	bars := make([]MonthBar, 0, len(months))
	for _, m := range months {
		height := decimal.Zero
		if peak.IsPositive() {
			height = m.Amount.Mul(decimal.NewFromInt(100)).Div(peak)
		}
		bars = append(bars, MonthBar{Month: m.Month, Amount: m.Amount, Height: height.StringFixed(2) + "%"})
	}
	return bars
}
