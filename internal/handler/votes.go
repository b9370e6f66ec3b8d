package handler

import (
	"net/http"

	"github.com/sakif/voteboard/internal/service"
)

// VoteHandler serves the tally to polling dashboards.
type VoteHandler struct {
	users *service.UserService
}

func NewVoteHandler(users *service.UserService) *VoteHandler {
	return &VoteHandler{users: users}
}

// HandleCount returns {"0": unvoted, "1": voted}.
func (h *VoteHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	tally, err := h.users.Tally(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}
