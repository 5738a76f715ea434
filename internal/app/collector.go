package app

import (
	"fmt"
	"math"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

// answerCollector owns player score and streak counters. Each player has its
// own ledger lock, so the "already answered" check and the score update for a
// (player, question) pair are a single critical section.
type answerCollector struct {
	mu      sync.RWMutex
	ledgers map[string]*playerLedger
}

type playerLedger struct {
	mu      sync.Mutex
	score   int
	streak  int
	answers map[string]domain.Answer

	// last accepted question and the streak it started from
	lastQuestion string
	prevStreak   int
}

type submission struct {
	playerID      string
	question      domain.Question
	questionIndex int
	option        *int
	elapsedMillis int64
	at            time.Time
}

func newAnswerCollector() *answerCollector {
	return &answerCollector{ledgers: make(map[string]*playerLedger)}
}

func (c *answerCollector) register(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ledgers[playerID]; !ok {
		c.ledgers[playerID] = &playerLedger{answers: make(map[string]domain.Answer)}
	}
}

func (c *answerCollector) ledger(playerID string) (*playerLedger, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.ledgers[playerID]
	return l, ok
}

// submit accepts at most one answer per (player, question). A repeated call
// returns the stored result with Duplicate set and accepted=false.
func (c *answerCollector) submit(sub submission, modifiers *modifierManager) (domain.AnswerResult, bool, error) {
	q := sub.question
	if sub.option != nil && !q.HasOption(*sub.option) {
		return domain.AnswerResult{}, false, fmt.Errorf("%w: option %d is not offered by question %s", domain.ErrValidation, *sub.option, q.ID)
	}
	l, ok := c.ledger(sub.playerID)
	if !ok {
		return domain.AnswerResult{}, false, domain.ErrPlayerNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.answers[q.ID]; ok {
		res := resultOf(existing, l.score)
		res.Duplicate = true
		return res, false, nil
	}

	correct := sub.option != nil && *sub.option == q.CorrectIndex()
	streak := 0
	if correct {
		streak = l.streak + 1
	}
	fraction := scoring.ElapsedFraction(sub.elapsedMillis, q.TimeLimitSeconds)
	multiplier, modifier := modifiers.consume(sub.playerID, sub.questionIndex)
	points := scoring.Points(correct, fraction, q.BasePoints(), streak, multiplier)

	answer := domain.Answer{
		PlayerID:        sub.playerID,
		QuestionID:      q.ID,
		QuestionIndex:   sub.questionIndex,
		OptionIndex:     copyIndex(sub.option),
		Correct:         correct,
		ElapsedMillis:   sub.elapsedMillis,
		ElapsedFraction: fraction,
		Points:          points,
		Streak:          streak,
		Modifier:        modifier,
		AcceptedAt:      sub.at,
	}
	l.answers[q.ID] = answer
	l.lastQuestion = q.ID
	l.prevStreak = l.streak
	l.score += points
	l.streak = streak
	return resultOf(answer, l.score), true, nil
}

// closeQuestion records an unanswered result for every listed player that has
// not answered, resetting their streaks.
func (c *answerCollector) closeQuestion(q domain.Question, questionIndex int, playerIDs []string, at time.Time, modifiers *modifierManager) {
	for _, id := range playerIDs {
		_, _, _ = c.submit(submission{
			playerID:      id,
			question:      q,
			questionIndex: questionIndex,
			elapsedMillis: int64(q.TimeLimitSeconds) * 1000,
			at:            at,
		}, modifiers)
	}
}

func (c *answerCollector) answer(playerID, questionID string) (domain.Answer, bool) {
	l, ok := c.ledger(playerID)
	if !ok {
		return domain.Answer{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.answers[questionID]
	return a, ok
}

func (c *answerCollector) result(playerID, questionID string) (domain.AnswerResult, bool) {
	l, ok := c.ledger(playerID)
	if !ok {
		return domain.AnswerResult{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.answers[questionID]
	if !ok {
		return domain.AnswerResult{}, false
	}
	return resultOf(a, l.score), true
}

func (c *answerCollector) standing(playerID string) (score, streak int) {
	l, ok := c.ledger(playerID)
	if !ok {
		return 0, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.score, l.streak
}

// settledStanding is the standing without the answer to questionID, as it
// was before that question opened.
func (c *answerCollector) settledStanding(playerID, questionID string) (score, streak int) {
	l, ok := c.ledger(playerID)
	if !ok {
		return 0, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastQuestion != questionID {
		return l.score, l.streak
	}
	return l.score - l.answers[questionID].Points, l.prevStreak
}

// answeredCount counts players with a submitted option or explicit skip for the question.
func (c *answerCollector) answeredCount(questionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, l := range c.ledgers {
		l.mu.Lock()
		if _, ok := l.answers[questionID]; ok {
			n++
		}
		l.mu.Unlock()
	}
	return n
}

// tally computes per-option answer counts and their share of all players.
func (c *answerCollector) tally(q domain.Question, playerCount int) []domain.OptionStat {
	counts := make(map[int]int, len(q.Options))
	c.mu.RLock()
	for _, l := range c.ledgers {
		l.mu.Lock()
		if a, ok := l.answers[q.ID]; ok && a.OptionIndex != nil {
			counts[*a.OptionIndex]++
		}
		l.mu.Unlock()
	}
	c.mu.RUnlock()

	stats := make([]domain.OptionStat, 0, len(q.Options))
	for _, opt := range q.Options {
		pct := 0
		if playerCount > 0 {
			pct = int(math.Round(float64(counts[opt.Index]) * 100 / float64(playerCount)))
		}
		stats = append(stats, domain.OptionStat{
			Index:      opt.Index,
			Text:       opt.Text,
			Count:      counts[opt.Index],
			Percentage: pct,
			Correct:    opt.Correct,
		})
	}
	return stats
}

func resultOf(a domain.Answer, total int) domain.AnswerResult {
	return domain.AnswerResult{
		QuestionID: a.QuestionID,
		Correct:    a.Correct,
		Awarded:    a.Points,
		TotalScore: total,
		Streak:     a.Streak,
		Modifier:   a.Modifier,
	}
}

func copyIndex(idx *int) *int {
	if idx == nil {
		return nil
	}
	v := *idx
	return &v
}
