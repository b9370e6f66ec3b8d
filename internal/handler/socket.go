package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/model"
	"github.com/sakif/voteboard/internal/realtime"
	"github.com/sakif/voteboard/internal/service"
)

// SocketHandler upgrades /ws and handles inbound frames.
type SocketHandler struct {
	hub     *realtime.Hub
	users   *service.UserService
	origins []string
	logger  *slog.Logger
}

// NewSocketHandler creates the handler. origins lists extra Origin host
// patterns allowed to connect; same-host connections are always allowed.
func NewSocketHandler(hub *realtime.Hub, users *service.UserService, origins []string, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{hub: hub, users: users, origins: origins, logger: logger}
}

func (h *SocketHandler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	// The server's read/write timeouts would otherwise stay armed on the
	// hijacked connection. Recorders in tests do not support this.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept has already written the error response.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	c := realtime.NewClient(h.hub, conn)
	if err := h.hub.Register(ctx, c); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.Unregister(c)

	h.logger.Info("realtime client connected", slog.String("client_id", c.ID))
	go c.WritePump(ctx)

	h.hub.Send(ctx, c, model.Event{Name: model.EventConnect, Data: model.ConnectInfo{ClientID: c.ID}})
	c.ReadPump(ctx, h.dispatch)

	h.logger.Info("realtime client disconnected", slog.String("client_id", c.ID))
}

func (h *SocketHandler) dispatch(ctx context.Context, c *realtime.Client, msg model.InboundMessage) {
	switch msg.Event {
	case model.EventVote:
		h.handleVote(ctx, c, msg.Data)

	case model.EventMessage:
		h.logger.Info("realtime message",
			slog.String("client_id", c.ID),
			slog.String("data", string(msg.Data)),
		)

	default:
		h.sendError(ctx, c, "unknown event "+msg.Event)
	}
}

// handleVote submits the vote and answers the submitter only. The
// update_votes broadcast to everyone comes from the service.
func (h *SocketHandler) handleVote(ctx context.Context, c *realtime.Client, data json.RawMessage) {
	var req model.VoteRequest
	if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.Username) == "" {
		h.sendError(ctx, c, "vote requires a non-empty username")
		return
	}

	res, err := h.users.SubmitVote(ctx, req.Username)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && !errors.Is(err, apperror.ErrInternal) {
			h.sendError(ctx, c, appErr.Message)
			return
		}
		h.sendError(ctx, c, "could not record vote")
		return
	}

	h.hub.Send(ctx, c, model.Event{Name: model.EventVoteResult, Data: res})
}

func (h *SocketHandler) sendError(ctx context.Context, c *realtime.Client, msg string) {
	h.hub.Send(ctx, c, model.Event{Name: model.EventError, Data: model.ErrorInfo{Message: msg}})
}
