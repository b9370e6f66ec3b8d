package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/auth"
	"github.com/sakif/voteboard/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler binds and unbinds sessions.
type AuthHandler struct {
	users  *service.UserService
	tokens *auth.TokenService
	github *auth.GitHubProvider // nil when GitHub login is not configured
	logger *slog.Logger
}

func NewAuthHandler(users *service.UserService, tokens *auth.TokenService, github *auth.GitHubProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, github: github, logger: logger}
}

// HandleLogin handles POST /login: the form's username is registered if new
// and bound to this browser.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperror.ValidationFailed("username", "invalid form body"))
		return
	}

	user, err := h.users.EnsureUser(r.Context(), r.PostForm.Get("username"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := auth.SetSessionCookie(w, r, h.tokens, user.Username); err != nil {
		h.logger.Error("login: token generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.logger.Info("user logged in", slog.String("username", user.Username))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout unbinds the session; it never fails.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the caller's user record. Mounted behind RequireAuth.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	s := auth.SessionFromContext(r.Context())
	if s == nil {
		writeError(w, apperror.AuthRequired(service.MsgNotLoggedIn))
		return
	}

	user, err := h.users.GetUser(r.Context(), s.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin starts the OAuth flow. The random state goes into a
// short-lived cookie and is checked on the callback (CSRF protection).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the OAuth flow and logs the user in under
// their GitHub login.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	user, err := h.users.EnsureUser(r.Context(), ghUser.Login)
	if err != nil {
		if !errors.Is(err, apperror.ErrValidation) {
			h.logger.Error("auth callback: ensure user failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	if err := auth.SetSessionCookie(w, r, h.tokens, user.Username); err != nil {
		h.logger.Error("auth callback: token generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.logger.Info("user authenticated via GitHub", slog.String("username", user.Username))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
