package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/auth"
	"github.com/sakif/voteboard/internal/event"
	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
	"github.com/sakif/voteboard/internal/repository"
)

// MsgNotLoggedIn is returned when a help request arrives without a session.
const MsgNotLoggedIn = "User not logged in"

// HelpService manages the shared queue of help requests.
type HelpService struct {
	repo      repository.HelpRepository
	publisher event.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewHelpService(repo repository.HelpRepository, publisher event.Publisher, m *metrics.Metrics, logger *slog.Logger) *HelpService {
	return &HelpService{repo: repo, publisher: publisher, metrics: m, logger: logger}
}

// RequestHelp appends an entry for the session's user. The same user may
// hold several open entries.
func (s *HelpService) RequestHelp(ctx context.Context, session *auth.Session) (*model.HelpEntry, error) {
	if session == nil || session.Username == "" {
		return nil, apperror.AuthRequired(MsgNotLoggedIn)
	}

	entry := &model.HelpEntry{Username: session.Username}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to create help request",
			slog.String("username", session.Username),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal("could not create help request", err)
	}

	s.logger.Info("help requested", slog.Int64("id", entry.ID), slog.String("username", entry.Username))
	s.changed(ctx, model.HelpUpdate{Action: model.HelpRequested, ID: entry.ID, Username: entry.Username}, entry.Username)
	return entry, nil
}

// List returns the open entries in the order they were raised.
func (s *HelpService) List(ctx context.Context) ([]model.HelpEntry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list help requests", slog.String("error", err.Error()))
		return nil, apperror.Internal("could not list help requests", err)
	}
	return entries, nil
}

// Delete removes one entry. Unknown ids, including ones already removed,
// are apperror.ErrNotFound.
func (s *HelpService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("Help request", strconv.FormatInt(id, 10))
		}
		s.logger.Error("failed to delete help request", slog.Int64("id", id), slog.String("error", err.Error()))
		return apperror.Internal("could not delete help request", err)
	}

	s.logger.Info("help request deleted", slog.Int64("id", id))
	s.changed(ctx, model.HelpUpdate{Action: model.HelpDeleted, ID: id}, "")
	return nil
}

// ClearAll empties the queue and reports how many entries were removed.
// Clearing an empty queue is not an error.
func (s *HelpService) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		s.logger.Error("failed to clear help requests", slog.String("error", err.Error()))
		return 0, apperror.Internal("could not clear help requests", err)
	}

	s.logger.Info("help requests cleared", slog.Int64("removed", n))
	s.changed(ctx, model.HelpUpdate{Action: model.HelpCleared, Removed: n}, "")
	return n, nil
}

func (s *HelpService) changed(ctx context.Context, u model.HelpUpdate, key string) {
	s.metrics.HelpChanges.WithLabelValues(string(u.Action)).Inc()
	ev := model.Event{Name: model.EventUpdateHelp, Data: u, Key: key}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", slog.String("event", ev.Name), slog.String("error", err.Error()))
	}
}
