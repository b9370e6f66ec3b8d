package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/auth"
	"github.com/sakif/voteboard/internal/service"
)

// HelpHandler serves the help queue endpoints.
type HelpHandler struct {
	help   *service.HelpService
	logger *slog.Logger
}

func NewHelpHandler(help *service.HelpService, logger *slog.Logger) *HelpHandler {
	return &HelpHandler{help: help, logger: logger}
}

// HandleFetch returns [{"id": ..., "username": ...}] oldest first.
func (h *HelpHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	entries, err := h.help.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRequest raises a help request for the session's user.
//
// A missing session is answered with 200 and a message rather than 401;
// the page script only reads the message.
func (h *HelpHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	_, err := h.help.RequestHelp(r.Context(), auth.SessionFromContext(r.Context()))
	switch {
	case err == nil:
		writeMessage(w, "Help requested successfully")
	case errors.Is(err, apperror.ErrAuthRequired):
		writeMessage(w, service.MsgNotLoggedIn)
	default:
		writeError(w, err)
	}
}

// HandleDelete removes one entry. The route only matches numeric ids.
func (h *HelpHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// digits only, so this is an id too large to have been issued
		writeError(w, apperror.NotFound("Help request", raw))
		return
	}

	if err := h.help.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Help request deleted successfully")
}

func (h *HelpHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.help.ClearAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "All help requests cleared successfully")
}
