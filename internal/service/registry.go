// Package service holds the business rules. Handlers (HTTP and WebSocket)
// call into it; it talks to storage through the repository interfaces and
// announces state changes through an event.Publisher.
//
//	handler → service → repository (sqlite)
//	             ↘ event.Publisher (hub, redis, kafka)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/event"
	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/model"
	"github.com/sakif/voteboard/internal/repository"
)

const (
	msgVoteCounted    = "Vote submitted successfully"
	msgVoteRegistered = "User registered; vote again to cast it"
	msgAlreadyVoted   = "Vote already submitted"
)

// UserService is the user registry: participants, their one-way vote, and
// the tally over all of them.
type UserService struct {
	users     repository.UserRepository
	publisher event.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// voteOnFirstCall makes SubmitVote for an unknown username create the
	// user and count the vote in one call. Off, the first call only
	// registers the user.
	voteOnFirstCall bool
}

func NewUserService(
	users repository.UserRepository,
	publisher event.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	voteOnFirstCall bool,
) *UserService {
	return &UserService{
		users:           users,
		publisher:       publisher,
		metrics:         m,
		logger:          logger,
		voteOnFirstCall: voteOnFirstCall,
	}
}

// NormalizeUsername trims surrounding whitespace and enforces the length
// limits shared by every entry point.
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if utf8.RuneCountInString(username) > model.MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", model.MaxUsernameLength))
	}
	return username, nil
}

// EnsureUser returns the user named username, creating it unvoted if it does
// not exist yet. Calling it repeatedly never creates a second record.
func (s *UserService) EnsureUser(ctx context.Context, rawUsername string) (*model.User, error) {
	username, err := NormalizeUsername(rawUsername)
	if err != nil {
		return nil, err
	}

	user, _, err := s.ensure(ctx, username)
	return user, err
}

// ensure is EnsureUser on an already normalised name. created reports
// whether this call inserted the row.
func (s *UserService) ensure(ctx context.Context, username string) (user *model.User, created bool, err error) {
	user, err = s.users.GetByUsername(ctx, username)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Error("failed to look up user", slog.String("username", username), slog.String("error", err.Error()))
		return nil, false, apperror.Internal("could not look up user", err)
	}

	user = &model.User{Username: username}
	err = s.users.Create(ctx, user)
	switch {
	case err == nil:
		s.logger.Info("user registered", slog.String("username", username), slog.Int64("id", user.ID))
		return user, true, nil

	case errors.Is(err, apperror.ErrConflict):
		// Someone else created it between our lookup and insert.
		user, err = s.users.GetByUsername(ctx, username)
		if err != nil {
			return nil, false, apperror.Internal("could not look up user", err)
		}
		return user, false, nil

	default:
		s.logger.Error("failed to create user", slog.String("username", username), slog.String("error", err.Error()))
		return nil, false, apperror.Internal("could not create user", err)
	}
}

// GetUser returns apperror.ErrNotFound for unknown usernames.
func (s *UserService) GetUser(ctx context.Context, rawUsername string) (*model.User, error) {
	username, err := NormalizeUsername(rawUsername)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Internal("could not look up user", err)
	}
	return user, nil
}

// SubmitVote records a vote for username.
//
//   - unknown user: the user is created unvoted and the result is
//     VoteRegistered, unless voteOnFirstCall is set, in which case the vote
//     is counted right away.
//   - unvoted user: the vote flips to 1, the result is VoteCounted and an
//     update_votes event is published.
//   - voted user: nothing changes and the result is VoteAlreadyCast.
//
// Concurrent calls for the same user count at most one vote.
func (s *UserService) SubmitVote(ctx context.Context, rawUsername string) (*model.VoteResult, error) {
	username, err := NormalizeUsername(rawUsername)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { s.metrics.VoteDuration.Observe(time.Since(start).Seconds()) }()

	user, created, err := s.ensure(ctx, username)
	if err != nil {
		return nil, err
	}

	if created && !s.voteOnFirstCall {
		return s.result(username, model.VoteRegistered, msgVoteRegistered), nil
	}
	if user.HasVoted() {
		return s.result(username, model.VoteAlreadyCast, msgAlreadyVoted), nil
	}

	changed, err := s.users.MarkVoted(ctx, username)
	if err != nil {
		s.logger.Error("failed to record vote", slog.String("username", username), slog.String("error", err.Error()))
		return nil, apperror.Internal("could not record vote", err)
	}
	if !changed {
		// Lost the race to a concurrent submission for the same user.
		return s.result(username, model.VoteAlreadyCast, msgAlreadyVoted), nil
	}

	s.logger.Info("vote counted", slog.String("username", username))
	s.publish(ctx, model.Event{
		Name: model.EventUpdateVotes,
		Data: model.VoteUpdate{Username: username, Votes: model.VoteCast},
		Key:  username,
	})

	return s.result(username, model.VoteCounted, msgVoteCounted), nil
}

func (s *UserService) result(username string, status model.VoteStatus, msg string) *model.VoteResult {
	s.metrics.VoteSubmissions.WithLabelValues(string(status)).Inc()
	return &model.VoteResult{Username: username, Status: status, Message: msg}
}

// Tally counts users per vote value from one snapshot.
func (s *UserService) Tally(ctx context.Context) (model.Tally, error) {
	t, err := s.users.CountByVote(ctx)
	if err != nil {
		s.logger.Error("failed to count votes", slog.String("error", err.Error()))
		return model.Tally{}, apperror.Internal("could not count votes", err)
	}
	return t, nil
}

// publish is best-effort: the state change has already been committed.
func (s *UserService) publish(ctx context.Context, ev model.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", slog.String("event", ev.Name), slog.String("error", err.Error()))
	}
}
