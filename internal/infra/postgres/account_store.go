package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// AccountStore credits rewards to the profiles table. Every grant is recorded
// in reward_grants first; a grant already recorded for the (session, player)
// pair leaves the profile untouched.
type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

func (s *AccountStore) GrantReward(ctx context.Context, sessionID string, reward domain.Reward) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin grant: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO reward_grants (session_id, player_id, account_id, rank, score, coins)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, player_id) DO NOTHING`,
		sessionID, reward.PlayerID, reward.AccountID, reward.Rank, reward.Score, reward.Coins)
	if err != nil {
		return fmt.Errorf("record grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	won := 0
	if reward.Winner {
		won = 1
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (id, coins, total_points, games_played, games_won)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (id) DO UPDATE SET
			coins = profiles.coins + EXCLUDED.coins,
			total_points = profiles.total_points + EXCLUDED.total_points,
			games_played = profiles.games_played + 1,
			games_won = profiles.games_won + EXCLUDED.games_won`,
		reward.AccountID, reward.Coins, reward.Score, won)
	if err != nil {
		return fmt.Errorf("credit profile %s: %w", reward.AccountID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}
	return nil
}

// Balance reads the profile of an account. Unknown accounts are empty.
func (s *AccountStore) Balance(ctx context.Context, accountID string) (domain.AccountBalance, error) {
	var b domain.AccountBalance
	err := s.pool.QueryRow(ctx,
		`SELECT coins, total_points, games_played, games_won FROM profiles WHERE id=$1`, accountID,
	).Scan(&b.Coins, &b.TotalPoints, &b.GamesPlayed, &b.GamesWon)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AccountBalance{}, nil
	}
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("read profile %s: %w", accountID, err)
	}
	return b, nil
}
