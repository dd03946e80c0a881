package handlers

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"expense-insights/internal/log"
	"expense-insights/internal/models"
	"expense-insights/internal/storage"

	"github.com/shopspring/decimal"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// DefaultSessionDuration is how long sessions last unless configured otherwise.
	DefaultSessionDuration = 30 * 24 * time.Hour
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store           storage.Store
	templateDir     string
	secureCookie    bool
	sessionDuration time.Duration
	today           func() time.Time
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithSessionDuration sets the lifetime of new and renewed sessions.
func WithSessionDuration(d time.Duration) Option {
	return func(h *Handlers) {
		if d > 0 {
			h.sessionDuration = d
		}
	}
}

// WithClock replaces the clock that supplies today's date for new-expense
// forms and export file names.
func WithClock(today func() time.Time) Option {
	return func(h *Handlers) { h.today = today }
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store storage.Store, templateDir string, secureCookie bool, opts ...Option) *Handlers {
	h := &Handlers{
		store:           store,
		templateDir:     templateDir,
		secureCookie:    secureCookie,
		sessionDuration: DefaultSessionDuration,
		today:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

func withUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// SecurityHeaders sets conservative browser security headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "same-origin")
		hdr.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'")
		next.ServeHTTP(w, r)
	})
}

// Layout is embedded in every view model; base.html reads it.
type Layout struct {
	Title  string
	User   *models.User
	Active string
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"pct":   func(d decimal.Decimal) string { return d.StringFixed(2) },
	"add":   func(a, b int) int { return a + b },
	"sub":   func(a, b int) int { return a - b },
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	logger := log.FromContext(r.Context())

	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFiles(
		filepath.Join(h.templateDir, "base.html"),
		filepath.Join(h.templateDir, viewName),
	)
	if err != nil {
		logger.Error("template parse failed", "view", viewName, log.FieldError, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	// Boosted navigation swaps the whole body, so it gets the full page.
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" && r.Header.Get("HX-Boosted") != "true" {
		target = "content"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, target, data); err != nil {
		logger.Error("template execution failed", "view", viewName, log.FieldError, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// serverError logs err with the request's logger and replies 500.
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log.FromContext(r.Context()).Error(msg, log.FieldError, err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// redirect navigates to path, through HX-Location for htmx requests.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Location", `{"path":"`+path+`", "target":"#content"}`)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
