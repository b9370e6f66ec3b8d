package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/model"
	"github.com/sakif/voteboard/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores participants in the "user" table.
type UserDB struct {
	conn *sql.DB
}

// Create inserts user with Vote = 0 and fills in its ID.
//
// Duplicates are left to the UNIQUE constraint instead of a prior SELECT, so
// two concurrent logins for the same name cannot both insert.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	res, err := u.conn.ExecContext(ctx,
		`INSERT INTO "user" (username, vote) VALUES (?, ?)`,
		user.Username, model.VoteNone,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of user %q: %w", user.Username, err)
	}
	user.ID = id
	user.Vote = model.VoteNone
	return nil
}

// GetByUsername returns apperror.ErrNotFound if the user does not exist.
func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := u.conn.QueryRowContext(ctx,
		`SELECT id, username, vote FROM "user" WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.Vote)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return &user, nil
}

// MarkVoted flips vote from 0 to 1.
//
// The WHERE clause carries the precondition, so of any number of concurrent
// callers exactly one sees RowsAffected == 1. A missing user and an already
// voted user both report false; the service distinguishes them beforehand.
func (u *UserDB) MarkVoted(ctx context.Context, username string) (bool, error) {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE "user" SET vote = ? WHERE username = ? AND vote = ?`,
		model.VoteCast, username, model.VoteNone,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: marking %q as voted: %w", username, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rows == 1, nil
}

// CountByVote computes both counts in one statement so the pair always adds
// up to the number of rows at a single point in time.
func (u *UserDB) CountByVote(ctx context.Context) (model.Tally, error) {
	var t model.Tally
	err := u.conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN vote = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN vote = 1 THEN 1 ELSE 0 END), 0)
		FROM "user"
	`).Scan(&t.Unvoted, &t.Voted)
	if err != nil {
		return model.Tally{}, fmt.Errorf("sqlite: counting votes: %w", err)
	}
	return t, nil
}
