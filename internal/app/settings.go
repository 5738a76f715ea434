package app

import (
	"time"

	"live-quiz-service/internal/domain"
)

// Timer is the handle of a scheduled phase deadline.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d. time.AfterFunc satisfies it.
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Settings tunes the game flow of every session created by a service.
type Settings struct {
	// Countdown between the start/next command and the question. Zero skips the wait.
	Countdown time.Duration
	// RevealWhenAllAnswered closes a question early once every player answered.
	RevealWhenAllAnswered bool
	// MaxPlayers caps the lobby; zero means unlimited.
	MaxPlayers int
	// Modifiers is the starting inventory of each player.
	Modifiers map[domain.ModifierKind]int
	// Retention keeps a released session readable, in its closed or finished
	// phase, before it is evicted. Zero evicts at once.
	Retention time.Duration
	// PublishTimeout bounds each event publish made while the session is locked.
	PublishTimeout time.Duration
}

// DefaultSettings is a 3 second countdown, one use of each modifier and ten
// minutes of retention after release.
func DefaultSettings() Settings {
	return Settings{
		Countdown:      3 * time.Second,
		Retention:      10 * time.Minute,
		PublishTimeout: 2 * time.Second,
		Modifiers: map[domain.ModifierKind]int{
			domain.ModifierFiftyFifty:   1,
			domain.ModifierDoublePoints: 1,
		},
	}
}
