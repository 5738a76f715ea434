package domain

// EventType names a notification fanned out to session participants.
type EventType string

const (
	// EventPhase is emitted exactly once per phase entry and carries the full state.
	EventPhase EventType = "phase"
	// EventPlayerJoined notifies the host view of a new lobby member.
	EventPlayerJoined EventType = "player_joined"
	// EventAnswerSubmitted notifies the host view that a player answered.
	EventAnswerSubmitted EventType = "answer_submitted"
)

// AnswerNotice is the host-facing payload of EventAnswerSubmitted.
type AnswerNotice struct {
	PlayerID      string `json:"playerId"`
	QuestionID    string `json:"questionId"`
	AnsweredCount int    `json:"answeredCount"`
	PlayerCount   int    `json:"playerCount"`
}

// Event is a session notification. Seq increases monotonically per session so
// clients can detect gaps and resync through the current-state read.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"sessionId"`
	Seq       uint64        `json:"seq"`
	Phase     Phase         `json:"phase"`
	State     *State        `json:"state,omitempty"`
	Player    *PlayerView   `json:"player,omitempty"`
	Answer    *AnswerNotice `json:"answer,omitempty"`
}

// HostOnly reports whether the event is meant for the host view only.
func (e Event) HostOnly() bool {
	return e.Type == EventPlayerJoined || e.Type == EventAnswerSubmitted
}
