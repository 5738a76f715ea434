package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// AccountStore keeps account balances in Redis hashes:
//
//	HINCRBY quiz:account:{accountID} coins|total_points|games_played|games_won
//
// A grant marker quiz:grant:{sessionID}:{playerID} makes each grant apply once.
type AccountStore struct {
	client   *redis.Client
	grantTTL time.Duration
}

func NewAccountStore(client *redis.Client, grantTTL time.Duration) *AccountStore {
	return &AccountStore{client: client, grantTTL: grantTTL}
}

func (s *AccountStore) GrantReward(ctx context.Context, sessionID string, reward domain.Reward) error {
	first, err := s.client.SetNX(ctx, s.grantKey(sessionID, reward.PlayerID), reward.AccountID, s.grantTTL).Result()
	if err != nil {
		return fmt.Errorf("mark grant: %w", err)
	}
	if !first {
		return nil
	}

	won := 0
	if reward.Winner {
		won = 1
	}
	key := s.key(reward.AccountID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "coins", int64(reward.Coins))
		pipe.HIncrBy(ctx, key, "total_points", int64(reward.Score))
		pipe.HIncrBy(ctx, key, "games_played", 1)
		pipe.HIncrBy(ctx, key, "games_won", int64(won))
		return nil
	})
	if err != nil {
		// release the marker so a retry can apply the grant
		_ = s.client.Del(ctx, s.grantKey(sessionID, reward.PlayerID)).Err()
		return fmt.Errorf("grant reward to %s: %w", reward.AccountID, err)
	}
	return nil
}

// Balance reads the stored balance of an account. Unknown accounts are empty.
func (s *AccountStore) Balance(ctx context.Context, accountID string) (domain.AccountBalance, error) {
	fields, err := s.client.HGetAll(ctx, s.key(accountID)).Result()
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("read balance %s: %w", accountID, err)
	}
	return domain.AccountBalance{
		Coins:       atoi(fields["coins"]),
		TotalPoints: atoi(fields["total_points"]),
		GamesPlayed: atoi(fields["games_played"]),
		GamesWon:    atoi(fields["games_won"]),
	}, nil
}

func (s *AccountStore) key(accountID string) string {
	return "quiz:account:" + accountID
}

func (s *AccountStore) grantKey(sessionID, playerID string) string {
	return "quiz:grant:" + sessionID + ":" + playerID
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
