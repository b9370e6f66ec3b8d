package model

import (
	"encoding/json"
	"strconv"
)

// Tally is the number of users per vote value.
//
// It serialises as {"0": n, "1": m}, keyed by the vote value, which is what
// the dashboard polls for.
type Tally struct {
	Unvoted int64
	Voted   int64
}

// Total is the number of user records the tally was computed over.
func (t Tally) Total() int64 {
	return t.Unvoted + t.Voted
}

func (t Tally) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]int64{
		strconv.Itoa(VoteNone): t.Unvoted,
		strconv.Itoa(VoteCast): t.Voted,
	})
}

func (t *Tally) UnmarshalJSON(b []byte) error {
	var m map[string]int64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	t.Unvoted = m[strconv.Itoa(VoteNone)]
	t.Voted = m[strconv.Itoa(VoteCast)]
	return nil
}
