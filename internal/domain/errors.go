package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id or PIN is unknown.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrValidation marks malformed input; the request must not be retried as-is.
	ErrValidation = errors.New("validation failed")
	// ErrPhaseMismatch marks a stale or early request relative to the current phase.
	ErrPhaseMismatch = errors.New("phase mismatch")
	// ErrNoUsesRemaining is returned when a modifier has been used up.
	ErrNoUsesRemaining = errors.New("no modifier uses remaining")
	// ErrUnknownModifier is returned for a modifier kind the session does not offer.
	ErrUnknownModifier = errors.New("unknown modifier")
	// ErrModifierUnavailable is returned when a modifier cannot help on the current question.
	ErrModifierUnavailable = errors.New("modifier unavailable for this question")
	// ErrEmptyQuiz is returned when starting a session whose quiz has no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrNoPlayers is returned when starting a session with an empty lobby.
	ErrNoPlayers = errors.New("no players in lobby")
	// ErrLobbyClosed is returned when joining after the game started.
	ErrLobbyClosed = errors.New("lobby is closed")
	// ErrLobbyFull is returned when the lobby reached its configured cap.
	ErrLobbyFull = errors.New("lobby is full")
	// ErrSessionClosed is terminal: the host aborted the session.
	ErrSessionClosed = errors.New("session closed")
)

// IsIgnorable reports whether a player-facing caller should drop err silently.
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrPhaseMismatch)
}
