package model

import "time"

// HelpEntry is one pending request for assistance.
//
// Username is a soft reference to User.Username: no foreign key, and a user
// may hold any number of open entries.
type HelpEntry struct {
	ID        int64     `json:"id"       db:"id"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"-"        db:"created_at"`
}
