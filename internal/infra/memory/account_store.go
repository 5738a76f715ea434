package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// AccountStore keeps account balances in memory. Grants are deduplicated per
// (session, player).
type AccountStore struct {
	mu       sync.Mutex
	balances map[string]domain.AccountBalance
	granted  map[string]struct{}
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		balances: make(map[string]domain.AccountBalance),
		granted:  make(map[string]struct{}),
	}
}

func (s *AccountStore) GrantReward(_ context.Context, sessionID string, reward domain.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionID + "/" + reward.PlayerID
	if _, done := s.granted[key]; done {
		return nil
	}
	s.granted[key] = struct{}{}

	b := s.balances[reward.AccountID]
	b.Coins += reward.Coins
	b.TotalPoints += reward.Score
	b.GamesPlayed++
	if reward.Winner {
		b.GamesWon++
	}
	s.balances[reward.AccountID] = b
	return nil
}

// Balance returns the stored balance of an account.
func (s *AccountStore) Balance(accountID string) domain.AccountBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[accountID]
}
