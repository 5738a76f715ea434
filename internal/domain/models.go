package domain

import "time"

// Phase is the current stage of a session's state machine.
type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseCountdown   Phase = "countdown"
	PhaseQuestion    Phase = "question"
	PhaseReveal      Phase = "reveal"
	PhaseLeaderboard Phase = "leaderboard"
	PhaseFinished    Phase = "finished"
	PhaseClosed      Phase = "closed"
)

// Terminal reports whether no further transitions leave the phase.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseClosed
}

// ModifierKind identifies a limited-use, per-player effect.
type ModifierKind string

const (
	// ModifierFiftyFifty hides up to two wrong options for the activating player.
	ModifierFiftyFifty ModifierKind = "fifty_fifty"
	// ModifierDoublePoints doubles the player's score for the current question.
	ModifierDoublePoints ModifierKind = "double_points"
)

// Valid reports whether the kind is known.
func (k ModifierKind) Valid() bool {
	return k == ModifierFiftyFifty || k == ModifierDoublePoints
}

// Multiplier is the scoring multiplier contributed by the modifier.
func (k ModifierKind) Multiplier() float64 {
	if k == ModifierDoublePoints {
		return 2
	}
	return 1
}

// Option represents a possible answer for a question.
type Option struct {
	Index   int    `json:"index" validate:"min=0,max=3"`
	Text    string `json:"text" validate:"required"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID               string   `json:"id" validate:"required"`
	Prompt           string   `json:"prompt" validate:"required"`
	Options          []Option `json:"options" validate:"min=2,max=4,dive"`
	Points           int      `json:"points" validate:"min=1"`
	TimeLimitSeconds int      `json:"timeLimitSeconds" validate:"min=1"`
}

// CorrectIndex returns the index of the correct option, or -1.
func (q Question) CorrectIndex() int {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.Index
		}
	}
	return -1
}

// HasOption reports whether idx is one of the question's option indices.
func (q Question) HasOption(idx int) bool {
	for _, opt := range q.Options {
		if opt.Index == idx {
			return true
		}
	}
	return false
}

// BasePoints is the authored point value of a correct instant answer.
func (q Question) BasePoints() int {
	return q.Points
}

// TimeLimit is the question's answer window.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id" validate:"required"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions" validate:"dive"`
}

// Player represents a session participant and their running totals.
type Player struct {
	ID        string
	Nickname  string
	AvatarID  string
	AccountID string
	JoinOrder int
	JoinedAt  time.Time
}

// PlayerView is the broadcast-safe view of a player.
type PlayerView struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	AvatarID  string `json:"avatarId"`
	Score     int    `json:"score"`
	Streak    int    `json:"streak"`
	Answered  bool   `json:"answered"`
	JoinOrder int    `json:"joinOrder"`
}

// Answer is the single accepted answer of a player for a question.
type Answer struct {
	PlayerID        string       `json:"playerId"`
	QuestionID      string       `json:"questionId"`
	QuestionIndex   int          `json:"questionIndex"`
	OptionIndex     *int         `json:"optionIndex"`
	Correct         bool         `json:"correct"`
	ElapsedMillis   int64        `json:"elapsedMillis"`
	ElapsedFraction float64      `json:"elapsedFraction"`
	Points          int          `json:"points"`
	Streak          int          `json:"streak"`
	Modifier        ModifierKind `json:"modifier,omitempty"`
	AcceptedAt      time.Time    `json:"acceptedAt"`
}

// AnswerResult summarizes the outcome of a submission for a single player.
type AnswerResult struct {
	QuestionID string       `json:"questionId"`
	Correct    bool         `json:"correct"`
	Awarded    int          `json:"awarded"`
	TotalScore int          `json:"totalScore"`
	Streak     int          `json:"streak"`
	Modifier   ModifierKind `json:"modifier,omitempty"`
	Duplicate  bool         `json:"duplicate"`
}

// ModifierResult is returned to the player who activated a modifier.
type ModifierResult struct {
	Kind          ModifierKind `json:"kind"`
	Remaining     int          `json:"remaining"`
	HiddenOptions []int        `json:"hiddenOptions,omitempty"`
}

// LeaderboardEntry is a ranked view of a participant.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	AvatarID string `json:"avatarId"`
	Score    int    `json:"score"`
	Streak   int    `json:"streak"`
	Rank     int    `json:"rank"`
	Delta    int    `json:"delta"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID     string             `json:"sessionId"`
	QuestionIndex int                `json:"questionIndex"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Reward is the participation reward of one finished player.
type Reward struct {
	PlayerID  string `json:"playerId"`
	AccountID string `json:"accountId,omitempty"`
	Nickname  string `json:"nickname"`
	Rank      int    `json:"rank"`
	Score     int    `json:"score"`
	Coins     int    `json:"coins"`
	Winner    bool   `json:"winner"`
}

// OptionView is an option without its correctness flag.
type OptionView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// QuestionView is the question payload shown while answers are open.
type QuestionView struct {
	ID               string       `json:"id"`
	Index            int          `json:"index"`
	Total            int          `json:"total"`
	Prompt           string       `json:"prompt"`
	Options          []OptionView `json:"options"`
	Points           int          `json:"points"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
}

// OptionStat is the per-option tally shown on reveal.
type OptionStat struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
	Correct    bool   `json:"correct"`
}

// State is the authoritative description of a session's current phase and payload.
type State struct {
	SessionID      string        `json:"sessionId"`
	QuizID         string        `json:"quizId"`
	PIN            string        `json:"pin"`
	Phase          Phase         `json:"phase"`
	QuestionIndex  int           `json:"questionIndex"`
	QuestionCount  int           `json:"questionCount"`
	PhaseStartedAt time.Time     `json:"phaseStartedAt"`
	Deadline       *time.Time    `json:"deadline,omitempty"`
	Players        []PlayerView  `json:"players"`
	Question       *QuestionView `json:"question,omitempty"`
	AnsweredCount  int           `json:"answeredCount"`
	CorrectIndex   *int          `json:"correctIndex,omitempty"`
	Stats          []OptionStat  `json:"stats,omitempty"`
	Leaderboard    *Leaderboard  `json:"leaderboard,omitempty"`
	Rewards        []Reward      `json:"rewards,omitempty"`
}

// PlayerStatus is the per-player resync read.
type PlayerStatus struct {
	PlayerID        string               `json:"playerId"`
	Nickname        string               `json:"nickname"`
	AvatarID        string               `json:"avatarId"`
	Score           int                  `json:"score"`
	Streak          int                  `json:"streak"`
	Modifiers       map[ModifierKind]int `json:"modifiers"`
	ActiveModifiers []ModifierKind       `json:"activeModifiers,omitempty"`
	HiddenOptions   []int                `json:"hiddenOptions,omitempty"`
	Answer          *AnswerResult        `json:"answer,omitempty"`
	Rank            int                  `json:"rank,omitempty"`
	Coins           int                  `json:"coins,omitempty"`
}

// JoinRequest carries the lobby join input.
type JoinRequest struct {
	Nickname  string `json:"nickname" validate:"min=2,max=20"`
	AvatarID  string `json:"avatarId" validate:"omitempty,max=32"`
	AccountID string `json:"accountId" validate:"omitempty,max=64"`
}

// JoinResult is returned to a player after entering the lobby.
type JoinResult struct {
	SessionID string       `json:"sessionId"`
	PlayerID  string       `json:"playerId"`
	State     State        `json:"state"`
	Status    PlayerStatus `json:"status"`
}

// AccountBalance is the durable profile state touched by finished games.
type AccountBalance struct {
	Coins       int `json:"coins"`
	TotalPoints int `json:"totalPoints"`
	GamesPlayed int `json:"gamesPlayed"`
	GamesWon    int `json:"gamesWon"`
}
