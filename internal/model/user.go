// Package model defines the data structures used throughout the application.
package model

// Vote flag values. A user moves from VoteNone to VoteCast exactly once;
// no exposed operation moves it back.
const (
	VoteNone = 0
	VoteCast = 1
)

// MaxUsernameLength matches the width of the username column.
const MaxUsernameLength = 80

// User is a participant, identified externally by Username.
//
// ID is the store's surrogate key (AUTOINCREMENT). The UNIQUE constraint on
// username in the DB is what guarantees one row per participant; the
// service layer relies on it rather than on a check-then-insert.
type User struct {
	ID       int64  `json:"id"       db:"id"`
	Username string `json:"username" db:"username"`
	Vote     int    `json:"vote"     db:"vote"`
}

// HasVoted reports whether the one-way vote transition already happened.
func (u *User) HasVoted() bool {
	return u.Vote == VoteCast
}
