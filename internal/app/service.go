package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	mrand "math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/domain"
)

// ErrPINInUse is returned by a SessionRepository when the PIN is already taken.
var ErrPINInUse = errors.New("pin already in use")

// SessionRepository abstracts where live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Save(ctx context.Context, session *Session) error
	Get(sessionID string) (*Session, bool)
	FindByPIN(pin string) (*Session, bool)
	Delete(ctx context.Context, sessionID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Publisher fans session events out to participants. Delivery is at most once;
// clients recover from gaps through CurrentState.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// EventBus is a Publisher that also lets callers follow one session.
// The caller must invoke the returned cancel function to avoid leaks.
type EventBus interface {
	Publisher
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error)
}

// AccountStore persists rewards for players linked to a durable account.
// GrantReward is called once per rewarded player of a finished session.
type AccountStore interface {
	GrantReward(ctx context.Context, sessionID string, reward domain.Reward) error
}

// Option customizes a GameService.
type Option func(*GameService)

// WithClock replaces the wall clock and timer scheduler, for deterministic tests.
func WithClock(now func() time.Time, after AfterFunc) Option {
	return func(s *GameService) {
		s.now = now
		s.afterFunc = after
	}
}

// WithRandSeed fixes the seed used to pick hidden options.
func WithRandSeed(seed int64) Option {
	return func(s *GameService) { s.seed = seed }
}

// GameService exposes the host and player surfaces of live quiz sessions.
type GameService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	bus       EventBus
	accounts  AccountStore
	settings  Settings
	now       func() time.Time
	afterFunc AfterFunc
	seed      int64
	hosted    atomic.Int64
}

func NewGameService(sessions SessionRepository, quizzes QuizRepository, bus EventBus, accounts AccountStore, settings Settings, opts ...Option) *GameService {
	s := &GameService{
		sessions:  sessions,
		quizzes:   quizzes,
		bus:       bus,
		accounts:  accounts,
		settings:  settings,
		now:       time.Now,
		afterFunc: systemAfterFunc,
		seed:      time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Host creates a session in the lobby phase for the quiz.
func (s *GameService) Host(ctx context.Context, quizID string) (domain.State, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.State{}, err
	}
	if err := domain.ValidateQuiz(quiz); err != nil {
		return domain.State{}, err
	}

	id := uuid.NewString()
	deps := sessionDeps{
		now:       s.now,
		afterFunc: s.afterFunc,
		publisher: s.bus,
		rnd:       mrand.New(mrand.NewSource(s.seed + s.hosted.Add(1))),
	}
	for attempt := 0; attempt < 10; attempt++ {
		pin, err := generatePIN()
		if err != nil {
			return domain.State{}, err
		}
		session := newSession(id, pin, quiz, s.settings, deps)
		err = s.sessions.Save(ctx, session)
		if errors.Is(err, ErrPINInUse) {
			continue
		}
		if err != nil {
			return domain.State{}, err
		}
		log.Printf("session hosted session_id=%s quiz_id=%s pin=%s questions=%d", id, quizID, pin, len(quiz.Questions))
		return session.state(), nil
	}
	return domain.State{}, fmt.Errorf("allocate pin for quiz %s: %w", quizID, ErrPINInUse)
}

// LookupPIN resolves a join code to a session id.
func (s *GameService) LookupPIN(_ context.Context, pin string) (string, error) {
	session, ok := s.sessions.FindByPIN(pin)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return session.ID(), nil
}

// Join registers a new player in the lobby.
func (s *GameService) Join(_ context.Context, sessionID string, req domain.JoinRequest) (domain.JoinResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.JoinResult{}, domain.ErrSessionNotFound
	}
	req, err := domain.NormalizeJoin(req)
	if err != nil {
		return domain.JoinResult{}, err
	}
	view, err := session.join(uuid.NewString(), req)
	if err != nil {
		return domain.JoinResult{}, err
	}
	status, err := session.playerStatus(view.ID)
	if err != nil {
		return domain.JoinResult{}, err
	}
	return domain.JoinResult{
		SessionID: sessionID,
		PlayerID:  view.ID,
		State:     session.state(),
		Status:    status,
	}, nil
}

// Start leaves the lobby and begins the countdown to the first question.
func (s *GameService) Start(_ context.Context, sessionID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.start()
}

// ShowLeaderboard moves a revealed question on to the ranked leaderboard.
func (s *GameService) ShowLeaderboard(_ context.Context, sessionID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.showLeaderboard()
}

// Next advances to the next question, or finishes the game and grants rewards.
func (s *GameService) Next(ctx context.Context, sessionID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	rewards, err := session.next()
	if err != nil {
		return err
	}
	if len(rewards) > 0 {
		s.grantRewards(ctx, sessionID, rewards)
	}
	return nil
}

// Abort closes the session from any non-terminal phase.
func (s *GameService) Abort(_ context.Context, sessionID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.abort(); err != nil {
		return err
	}
	log.Printf("session aborted session_id=%s", sessionID)
	return nil
}

// Release is called when the host leaves. A running session is aborted; the
// closed or finished session stays readable for the retention period, so
// players keep getting SessionClosed or the final standings, and is evicted
// afterwards.
func (s *GameService) Release(ctx context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok || !session.released.CompareAndSwap(false, true) {
		return
	}
	if !session.Phase().Terminal() {
		if err := session.abort(); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
			log.Printf("release abort failed session_id=%s error=%v", sessionID, err)
		}
	}
	log.Printf("session released session_id=%s phase=%s age=%s retention=%s", sessionID, session.Phase(), s.now().Sub(session.createdAt).Round(time.Second), s.settings.Retention)

	evict := func() {
		s.sessions.Delete(context.WithoutCancel(ctx), sessionID)
		log.Printf("session evicted session_id=%s", sessionID)
	}
	if s.settings.Retention <= 0 {
		evict()
		return
	}
	s.afterFunc(s.settings.Retention, evict)
}

// Submit records a player's answer for the current question. optionIndex nil
// means the player skipped. Repeated submissions return the original result.
func (s *GameService) Submit(_ context.Context, sessionID, playerID, questionID string, optionIndex *int) (domain.AnswerResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}
	return session.submit(playerID, questionID, optionIndex)
}

// ActivateModifier spends one modifier use for the current question.
func (s *GameService) ActivateModifier(_ context.Context, sessionID, playerID string, kind domain.ModifierKind) (domain.ModifierResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ModifierResult{}, domain.ErrSessionNotFound
	}
	return session.activate(playerID, kind)
}

// CurrentState is the idempotent resync read of phase and payload.
func (s *GameService) CurrentState(_ context.Context, sessionID string) (domain.State, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.State{}, domain.ErrSessionNotFound
	}
	return session.state(), nil
}

// PlayerStatus is the per-player resync read.
func (s *GameService) PlayerStatus(_ context.Context, sessionID, playerID string) (domain.PlayerStatus, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.PlayerStatus{}, domain.ErrSessionNotFound
	}
	return session.playerStatus(playerID)
}

// Subscribe follows the events of one session.
func (s *GameService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	return s.bus.Subscribe(ctx, sessionID)
}

func (s *GameService) grantRewards(ctx context.Context, sessionID string, rewards []domain.Reward) {
	if s.accounts == nil {
		return
	}
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(4)
	for _, reward := range rewards {
		if reward.AccountID == "" {
			continue
		}
		g.Go(func() error {
			if err := s.accounts.GrantReward(gctx, sessionID, reward); err != nil {
				log.Printf("reward grant failed session_id=%s player_id=%s account_id=%s error=%v", sessionID, reward.PlayerID, reward.AccountID, err)
				return nil
			}
			log.Printf("reward granted session_id=%s account_id=%s rank=%d coins=%d", sessionID, reward.AccountID, reward.Rank, reward.Coins)
			return nil
		})
	}
	_ = g.Wait()
}

func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
