// Package repository declares the storage contracts the service layer
// depends on. Implementations live in sub-packages (see sqlite).
package repository

import (
	"context"

	"github.com/sakif/voteboard/internal/model"
)

// UserRepository stores participants and their vote flag.
type UserRepository interface {
	// Create inserts a new user with Vote = 0 and sets user.ID.
	// Returns apperror.ErrConflict if the username is already taken.
	Create(ctx context.Context, user *model.User) error

	// GetByUsername returns apperror.ErrNotFound if no such user exists.
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	// MarkVoted performs the one-way 0 -> 1 transition atomically.
	// It reports true only for the call that actually flipped the flag.
	MarkVoted(ctx context.Context, username string) (bool, error)

	// CountByVote returns both counts from a single consistent snapshot.
	CountByVote(ctx context.Context) (model.Tally, error)
}

// HelpRepository stores the help queue.
type HelpRepository interface {
	Create(ctx context.Context, entry *model.HelpEntry) error

	// List returns entries in insertion order.
	List(ctx context.Context) ([]model.HelpEntry, error)

	// Delete returns apperror.ErrNotFound if no entry has that id.
	Delete(ctx context.Context, id int64) error

	// DeleteAll empties the queue and returns how many entries it removed.
	DeleteAll(ctx context.Context) (int64, error)
}
