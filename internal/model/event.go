package model

import "encoding/json"

// Event names on the real-time channel.
const (
	EventConnect     = "connect"
	EventVote        = "vote"
	EventVoteResult  = "vote_result"
	EventUpdateVotes = "update_votes"
	EventUpdateHelp  = "update_help"
	EventMessage     = "message"
	EventError       = "error"
)

// Event is a server-originated notification. On the wire it is
// {"event": Name, "data": Data}.
//
// Key is a partitioning hint for sinks that need one (Kafka); it is not
// serialised.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
	Key  string `json:"-"`
}

// InboundMessage is a client-originated frame. Data stays raw until the
// dispatcher knows which payload type to decode it into.
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// VoteRequest is the payload of an inbound "vote" frame.
type VoteRequest struct {
	Username string `json:"username"`
}

// VoteUpdate is broadcast to every viewer after a successful 0 -> 1 vote.
type VoteUpdate struct {
	Username string `json:"username"`
	Votes    int    `json:"votes"`
}

// VoteStatus is the outcome of a vote submission.
type VoteStatus string

const (
	// VoteRegistered: the user did not exist yet and was created unvoted.
	VoteRegistered VoteStatus = "registered"
	// VoteCounted: the user moved from unvoted to voted.
	VoteCounted VoteStatus = "counted"
	// VoteAlreadyCast: the user had already voted; nothing changed.
	VoteAlreadyCast VoteStatus = "already_voted"
)

// VoteResult is the acknowledgement sent back to the submitter only.
type VoteResult struct {
	Username string     `json:"username"`
	Status   VoteStatus `json:"status"`
	Message  string     `json:"message"`
}

// HelpAction describes what happened to the help queue.
type HelpAction string

const (
	HelpRequested HelpAction = "requested"
	HelpDeleted   HelpAction = "deleted"
	HelpCleared   HelpAction = "cleared"
)

// HelpUpdate is broadcast whenever the help queue changes.
type HelpUpdate struct {
	Action   HelpAction `json:"action"`
	ID       int64      `json:"id,omitempty"`
	Username string     `json:"username,omitempty"`
	Removed  int64      `json:"removed,omitempty"`
}

// ConnectInfo is sent to a viewer right after its socket is accepted.
type ConnectInfo struct {
	ClientID string `json:"client_id"`
}

// ErrorInfo is sent to a single client whose frame could not be handled.
type ErrorInfo struct {
	Message string `json:"message"`
}
