package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/leaderboard"
)

// Session is one live run of a quiz. It is the only writer of its phase and
// question index. Transitions take the write lock; submissions and modifier
// activations take the read lock, so a transition waits for in-flight answers
// and no answer is accepted for a question once its reveal has begun.
type Session struct {
	id        string
	pin       string
	quiz      domain.Quiz
	settings  Settings
	now       func() time.Time
	afterFunc AfterFunc
	publisher Publisher
	createdAt time.Time

	collector *answerCollector
	modifiers *modifierManager
	seq       atomic.Uint64
	released  atomic.Bool

	mu             sync.RWMutex
	phase          domain.Phase
	questionIndex  int
	phaseStartedAt time.Time
	deadline       time.Time
	generation     uint64
	timer          Timer
	players        []*domain.Player
	byID           map[string]*domain.Player
	stats          []domain.OptionStat
	board          *domain.Leaderboard
	prevRanks      map[string]int
	rewards        []domain.Reward
}

const defaultPublishTimeout = 2 * time.Second

type sessionDeps struct {
	now       func() time.Time
	afterFunc AfterFunc
	publisher Publisher
	rnd       *rand.Rand
}

func newSession(id, pin string, quiz domain.Quiz, settings Settings, deps sessionDeps) *Session {
	now := deps.now()
	return &Session{
		id:             id,
		pin:            pin,
		quiz:           quiz,
		settings:       settings,
		now:            deps.now,
		afterFunc:      deps.afterFunc,
		publisher:      deps.publisher,
		createdAt:      now,
		collector:      newAnswerCollector(),
		modifiers:      newModifierManager(settings.Modifiers, deps.rnd),
		phase:          domain.PhaseWaiting,
		phaseStartedAt: now,
		byID:           make(map[string]*domain.Player),
		prevRanks:      make(map[string]int),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// PIN returns the join code players type in.
func (s *Session) PIN() string { return s.pin }

// Phase returns the current phase.
func (s *Session) Phase() domain.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) join(playerID string, req domain.JoinRequest) (domain.PlayerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseWaiting:
	case domain.PhaseClosed:
		return domain.PlayerView{}, domain.ErrSessionClosed
	default:
		return domain.PlayerView{}, domain.ErrLobbyClosed
	}
	if s.settings.MaxPlayers > 0 && len(s.players) >= s.settings.MaxPlayers {
		return domain.PlayerView{}, domain.ErrLobbyFull
	}

	player := &domain.Player{
		ID:        playerID,
		Nickname:  req.Nickname,
		AvatarID:  req.AvatarID,
		AccountID: req.AccountID,
		JoinOrder: len(s.players) + 1,
		JoinedAt:  s.now(),
	}
	s.players = append(s.players, player)
	s.byID[playerID] = player
	s.collector.register(playerID)
	s.modifiers.register(playerID)

	view := s.playerViewLocked(player)
	s.emit(domain.Event{Type: domain.EventPlayerJoined, Phase: s.phase, Player: &view})
	return view, nil
}

func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePhaseLocked(domain.PhaseWaiting); err != nil {
		return err
	}
	if len(s.quiz.Questions) == 0 {
		return domain.ErrEmptyQuiz
	}
	if len(s.players) == 0 {
		return domain.ErrNoPlayers
	}
	s.questionIndex = 0
	s.enterCountdownLocked()
	return nil
}

func (s *Session) showLeaderboard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePhaseLocked(domain.PhaseReveal); err != nil {
		return err
	}
	entries := leaderboard.Rank(s.standingsLocked(), s.prevRanks)
	s.board = &domain.Leaderboard{
		SessionID:     s.id,
		QuestionIndex: s.questionIndex,
		Entries:       entries,
		UpdatedAt:     s.now(),
	}
	s.prevRanks = leaderboard.Ranks(entries)
	s.enterLocked(domain.PhaseLeaderboard, 0)
	s.publishPhaseLocked()
	return nil
}

// next moves to the following question, or finishes the game after the last
// one. Rewards are returned only by the call that entered PhaseFinished.
func (s *Session) next() ([]domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePhaseLocked(domain.PhaseLeaderboard); err != nil {
		return nil, err
	}
	if s.questionIndex+1 < len(s.quiz.Questions) {
		s.questionIndex++
		s.enterCountdownLocked()
		return nil, nil
	}

	standings := s.standingsLocked()
	entries := leaderboard.Rank(standings, s.prevRanks)
	s.board = &domain.Leaderboard{
		SessionID:     s.id,
		QuestionIndex: s.questionIndex,
		Entries:       entries,
		UpdatedAt:     s.now(),
	}
	s.prevRanks = leaderboard.Ranks(entries)
	s.rewards = leaderboard.Rewards(entries, standings)
	s.enterLocked(domain.PhaseFinished, 0)
	s.publishPhaseLocked()
	return append([]domain.Reward(nil), s.rewards...), nil
}

func (s *Session) abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseClosed:
		return domain.ErrSessionClosed
	case domain.PhaseFinished:
		return fmt.Errorf("%w: session already finished", domain.ErrPhaseMismatch)
	}
	s.enterLocked(domain.PhaseClosed, 0)
	s.publishPhaseLocked()
	return nil
}

func (s *Session) submit(playerID, questionID string, option *int) (domain.AnswerResult, error) {
	s.mu.RLock()
	res, revealNow, err := s.submitRLocked(playerID, questionID, option)
	gen := s.generation
	s.mu.RUnlock()

	if revealNow {
		s.expire(gen)
	}
	return res, err
}

func (s *Session) submitRLocked(playerID, questionID string, option *int) (domain.AnswerResult, bool, error) {
	if err := s.requirePhaseLocked(domain.PhaseQuestion); err != nil {
		return domain.AnswerResult{}, false, err
	}
	q := s.quiz.Questions[s.questionIndex]
	if questionID != q.ID {
		return domain.AnswerResult{}, false, fmt.Errorf("%w: question %s is not current", domain.ErrPhaseMismatch, questionID)
	}
	if _, ok := s.byID[playerID]; !ok {
		return domain.AnswerResult{}, false, domain.ErrPlayerNotFound
	}
	now := s.now()
	if now.After(s.deadline) {
		return domain.AnswerResult{}, false, fmt.Errorf("%w: answer window elapsed", domain.ErrPhaseMismatch)
	}

	res, accepted, err := s.collector.submit(submission{
		playerID:      playerID,
		question:      q,
		questionIndex: s.questionIndex,
		option:        option,
		elapsedMillis: now.Sub(s.phaseStartedAt).Milliseconds(),
		at:            now,
	}, s.modifiers)
	if err != nil || !accepted {
		return res, false, err
	}

	answered := s.collector.answeredCount(q.ID)
	s.emit(domain.Event{
		Type:  domain.EventAnswerSubmitted,
		Phase: s.phase,
		Answer: &domain.AnswerNotice{
			PlayerID:      playerID,
			QuestionID:    q.ID,
			AnsweredCount: answered,
			PlayerCount:   len(s.players),
		},
	})
	return res, s.settings.RevealWhenAllAnswered && answered >= len(s.players), nil
}

func (s *Session) activate(playerID string, kind domain.ModifierKind) (domain.ModifierResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requirePhaseLocked(domain.PhaseQuestion); err != nil {
		return domain.ModifierResult{}, err
	}
	if _, ok := s.byID[playerID]; !ok {
		return domain.ModifierResult{}, domain.ErrPlayerNotFound
	}
	q := s.quiz.Questions[s.questionIndex]
	if _, answered := s.collector.answer(playerID, q.ID); answered {
		return domain.ModifierResult{}, fmt.Errorf("%w: question %s already answered", domain.ErrPhaseMismatch, q.ID)
	}
	return s.modifiers.activate(playerID, s.questionIndex, q, kind)
}

// expire is the deadline callback. A stale generation means the phase already
// moved on or the session was closed, and the call is a no-op.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	switch s.phase {
	case domain.PhaseCountdown:
		s.enterQuestionLocked()
	case domain.PhaseQuestion:
		s.enterRevealLocked()
	}
}

func (s *Session) enterCountdownLocked() {
	s.enterLocked(domain.PhaseCountdown, s.settings.Countdown)
	s.publishPhaseLocked()
	if s.settings.Countdown <= 0 {
		s.enterQuestionLocked()
		return
	}
	s.scheduleLocked(s.settings.Countdown)
}

func (s *Session) enterQuestionLocked() {
	q := s.quiz.Questions[s.questionIndex]
	s.stats = nil
	s.enterLocked(domain.PhaseQuestion, q.TimeLimit())
	s.publishPhaseLocked()
	s.scheduleLocked(q.TimeLimit())
}

func (s *Session) enterRevealLocked() {
	q := s.quiz.Questions[s.questionIndex]
	now := s.now()
	s.collector.closeQuestion(q, s.questionIndex, s.playerIDsLocked(), now, s.modifiers)
	s.stats = s.collector.tally(q, len(s.players))
	s.enterLocked(domain.PhaseReveal, 0)
	s.publishPhaseLocked()
}

func (s *Session) enterLocked(phase domain.Phase, d time.Duration) {
	now := s.now()
	s.stopTimerLocked()
	s.generation++
	s.phase = phase
	s.phaseStartedAt = now
	s.deadline = time.Time{}
	if d > 0 {
		s.deadline = now.Add(d)
	}
}

func (s *Session) scheduleLocked(d time.Duration) {
	gen := s.generation
	s.timer = s.afterFunc(d, func() { s.expire(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) requirePhaseLocked(want domain.Phase) error {
	if s.phase == domain.PhaseClosed {
		return domain.ErrSessionClosed
	}
	if s.phase != want {
		return fmt.Errorf("%w: session is %s, expected %s", domain.ErrPhaseMismatch, s.phase, want)
	}
	return nil
}

func (s *Session) publishPhaseLocked() {
	st := s.stateLocked()
	log.Printf("session phase changed session_id=%s phase=%s question_index=%d players=%d", s.id, s.phase, s.questionIndex, len(s.players))
	s.emit(domain.Event{Type: domain.EventPhase, Phase: s.phase, State: &st})
}

// emit stamps the event with the next sequence number and publishes it. It is
// called with mu held, which keeps phase events in phase order.
func (s *Session) emit(ev domain.Event) {
	if s.publisher == nil {
		return
	}
	ev.SessionID = s.id
	ev.Seq = s.seq.Add(1)
	timeout := s.settings.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("publish failed session_id=%s type=%s seq=%d error=%v", s.id, ev.Type, ev.Seq, err)
	}
}

func (s *Session) state() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() domain.State {
	st := domain.State{
		SessionID:      s.id,
		QuizID:         s.quiz.ID,
		PIN:            s.pin,
		Phase:          s.phase,
		QuestionIndex:  s.questionIndex,
		QuestionCount:  len(s.quiz.Questions),
		PhaseStartedAt: s.phaseStartedAt,
		Players:        make([]domain.PlayerView, 0, len(s.players)),
	}
	if !s.deadline.IsZero() {
		deadline := s.deadline
		st.Deadline = &deadline
	}
	for _, p := range s.players {
		st.Players = append(st.Players, s.playerViewLocked(p))
	}

	switch s.phase {
	case domain.PhaseQuestion:
		q := s.quiz.Questions[s.questionIndex]
		st.Question = s.questionViewLocked(q)
		st.AnsweredCount = s.collector.answeredCount(q.ID)
	case domain.PhaseReveal:
		q := s.quiz.Questions[s.questionIndex]
		st.Question = s.questionViewLocked(q)
		st.AnsweredCount = s.collector.answeredCount(q.ID)
		correct := q.CorrectIndex()
		st.CorrectIndex = &correct
		st.Stats = append([]domain.OptionStat(nil), s.stats...)
	case domain.PhaseLeaderboard:
		st.Leaderboard = s.boardLocked()
	case domain.PhaseFinished:
		st.Leaderboard = s.boardLocked()
		st.Rewards = append([]domain.Reward(nil), s.rewards...)
	}
	return st
}

func (s *Session) playerStatus(playerID string) (domain.PlayerStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[playerID]
	if !ok {
		return domain.PlayerStatus{}, domain.ErrPlayerNotFound
	}
	score, streak := s.collector.standing(playerID)
	counts, active, hidden := s.modifiers.status(playerID, s.questionIndex)
	status := domain.PlayerStatus{
		PlayerID:  p.ID,
		Nickname:  p.Nickname,
		AvatarID:  p.AvatarID,
		Score:     score,
		Streak:    streak,
		Modifiers: counts,
	}
	if s.phase == domain.PhaseQuestion {
		status.ActiveModifiers = active
		status.HiddenOptions = hidden
	}
	if s.phase != domain.PhaseWaiting && len(s.quiz.Questions) > 0 {
		q := s.quiz.Questions[s.questionIndex]
		if res, ok := s.collector.result(playerID, q.ID); ok {
			status.Answer = &res
		}
	}
	for _, r := range s.rewards {
		if r.PlayerID == playerID {
			status.Rank = r.Rank
			status.Coins = r.Coins
		}
	}
	return status, nil
}

// playerViewLocked is the public view of a player. While a question is open
// it shows the standing from before that question, so answers stay private
// until the reveal.
func (s *Session) playerViewLocked(p *domain.Player) domain.PlayerView {
	score, streak := s.collector.standing(p.ID)
	if s.phase == domain.PhaseQuestion {
		score, streak = s.collector.settledStanding(p.ID, s.quiz.Questions[s.questionIndex].ID)
	}
	view := domain.PlayerView{
		ID:        p.ID,
		Nickname:  p.Nickname,
		AvatarID:  p.AvatarID,
		Score:     score,
		Streak:    streak,
		JoinOrder: p.JoinOrder,
	}
	if (s.phase == domain.PhaseQuestion || s.phase == domain.PhaseReveal) && len(s.quiz.Questions) > 0 {
		_, view.Answered = s.collector.answer(p.ID, s.quiz.Questions[s.questionIndex].ID)
	}
	return view
}

func (s *Session) questionViewLocked(q domain.Question) *domain.QuestionView {
	view := &domain.QuestionView{
		ID:               q.ID,
		Index:            s.questionIndex,
		Total:            len(s.quiz.Questions),
		Prompt:           q.Prompt,
		Options:          make([]domain.OptionView, 0, len(q.Options)),
		Points:           q.BasePoints(),
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
	for _, opt := range q.Options {
		view.Options = append(view.Options, domain.OptionView{Index: opt.Index, Text: opt.Text})
	}
	return view
}

func (s *Session) boardLocked() *domain.Leaderboard {
	if s.board == nil {
		return nil
	}
	board := *s.board
	board.Entries = append([]domain.LeaderboardEntry(nil), s.board.Entries...)
	return &board
}

func (s *Session) standingsLocked() []leaderboard.Standing {
	out := make([]leaderboard.Standing, 0, len(s.players))
	for _, p := range s.players {
		score, streak := s.collector.standing(p.ID)
		out = append(out, leaderboard.Standing{
			PlayerID:  p.ID,
			Nickname:  p.Nickname,
			AvatarID:  p.AvatarID,
			AccountID: p.AccountID,
			Score:     score,
			Streak:    streak,
			JoinOrder: p.JoinOrder,
		})
	}
	return out
}

func (s *Session) playerIDsLocked() []string {
	ids := make([]string, 0, len(s.players))
	for _, p := range s.players {
		ids = append(ids, p.ID)
	}
	return ids
}
