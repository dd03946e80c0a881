package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"expense-insights/internal/auth"
	"expense-insights/internal/log"
	"expense-insights/internal/storage"
)

const maxUsernameLength = 50

// AuthMiddleware wraps handlers to require authentication.
// Sessions roll: past the halfway point of their lifetime they are renewed.
// Requests under /api/ get 401 instead of a redirect to /login.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			h.unauthorized(w, r)
			return
		}

		sessionInfo, err := h.store.ValidateSessionWithInfo(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				log.FromContext(r.Context()).Error("session lookup failed", log.FieldError, err)
			}
			h.clearSessionCookie(w)
			h.unauthorized(w, r)
			return
		}

		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < h.sessionDuration/2 {
			if err := h.store.RenewSession(r.Context(), cookie.Value, now.Add(h.sessionDuration)); err == nil {
				h.setSessionCookie(w, cookie.Value)
			} else {
				log.FromContext(r.Context()).Warn("session renewal failed", log.FieldError, err)
			}
		}

		logger := log.FromContext(r.Context()).With(log.FieldUserID, sessionInfo.User.ID)
		ctx := log.WithContext(withUser(r.Context(), sessionInfo.User), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) unauthorized(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// AuthViewModel holds data for the login and signup pages.
type AuthViewModel struct {
	Layout
	Username string
	Error    string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.hasValidSession(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", AuthViewModel{Layout: Layout{Title: "Log in"}})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	vm := AuthViewModel{Layout: Layout{Title: "Log in"}}
	if err := r.ParseForm(); err != nil {
		vm.Error = "Invalid form submission"
		h.render(w, r, http.StatusBadRequest, "login.html", vm)
		return
	}

	vm.Username = strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if vm.Username == "" || password == "" {
		vm.Error = "Username and password are required"
		h.render(w, r, http.StatusUnprocessableEntity, "login.html", vm)
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), vm.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		serverError(w, r, "user lookup failed", err)
		return
	}
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		vm.Error = "Invalid username or password"
		h.render(w, r, http.StatusUnauthorized, "login.html", vm)
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		serverError(w, r, "session start failed", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignupForm renders the signup page.
func (h *Handlers) SignupForm(w http.ResponseWriter, r *http.Request) {
	if h.hasValidSession(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "signup.html", AuthViewModel{Layout: Layout{Title: "Sign up"}})
}

// Signup creates an account and logs it in.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	vm := AuthViewModel{Layout: Layout{Title: "Sign up"}}
	if err := r.ParseForm(); err != nil {
		vm.Error = "Invalid form submission"
		h.render(w, r, http.StatusBadRequest, "signup.html", vm)
		return
	}

	vm.Username = strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	switch {
	case vm.Username == "" || password == "":
		vm.Error = "Username and password are required"
	case len(vm.Username) > maxUsernameLength:
		vm.Error = "Username is too long"
	case password != r.FormValue("confirm"):
		vm.Error = "Passwords do not match"
	}
	if vm.Error != "" {
		h.render(w, r, http.StatusUnprocessableEntity, "signup.html", vm)
		return
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		vm.Error = "Password must be at least 4 characters"
		h.render(w, r, http.StatusUnprocessableEntity, "signup.html", vm)
		return
	}
	if err != nil {
		serverError(w, r, "password hash failed", err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), vm.Username, hash)
	if errors.Is(err, storage.ErrDuplicateUsername) {
		vm.Error = "That username is already taken"
		h.render(w, r, http.StatusConflict, "signup.html", vm)
		return
	}
	if err != nil {
		serverError(w, r, "user creation failed", err)
		return
	}
	log.FromContext(r.Context()).Info("user signed up", log.FieldUserID, user.ID)

	if err := h.startSession(w, r, user.ID); err != nil {
		serverError(w, r, "session start failed", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			log.FromContext(r.Context()).Warn("session delete failed", log.FieldError, err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handlers) hasValidSession(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	_, err = h.store.ValidateSession(r.Context(), cookie.Value)
	return err == nil
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return err
	}
	if err := h.store.CreateSession(r.Context(), token, userID, time.Now().Add(h.sessionDuration)); err != nil {
		return err
	}
	h.setSessionCookie(w, token)
	return nil
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
