// Package leaderboard ranks players and converts final ranks into rewards.
package leaderboard

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// Standing is the read-only input of a ranking: one player's totals.
type Standing struct {
	PlayerID  string
	Nickname  string
	AvatarID  string
	AccountID string
	Score     int
	Streak    int
	JoinOrder int
}

// Rank orders standings by score descending, ties broken by join order, and
// assigns 1-based ranks without shared positions. prev maps player ids to the
// ranks of the previous snapshot; Delta is positive when a player moved up.
func Rank(standings []Standing, prev map[string]int) []domain.LeaderboardEntry {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].JoinOrder < sorted[j].JoinOrder
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, st := range sorted {
		rank := i + 1
		delta := 0
		if before, ok := prev[st.PlayerID]; ok {
			delta = before - rank
		}
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: st.PlayerID,
			Nickname: st.Nickname,
			AvatarID: st.AvatarID,
			Score:    st.Score,
			Streak:   st.Streak,
			Rank:     rank,
			Delta:    delta,
		})
	}
	return entries
}

// Ranks indexes a ranked snapshot by player id.
func Ranks(entries []domain.LeaderboardEntry) map[string]int {
	out := make(map[string]int, len(entries))
	for _, e := range entries {
		out[e.PlayerID] = e.Rank
	}
	return out
}

// RewardForRank is the fixed coin schedule for a final rank.
func RewardForRank(rank int) int {
	switch rank {
	case 1:
		return 40
	case 2:
		return 25
	case 3:
		return 15
	default:
		return 5
	}
}

// Rewards converts a final snapshot into one reward per player. Only rewards
// with a non-empty AccountID are granted to durable storage.
func Rewards(entries []domain.LeaderboardEntry, standings []Standing) []domain.Reward {
	accounts := make(map[string]string, len(standings))
	for _, st := range standings {
		accounts[st.PlayerID] = st.AccountID
	}
	rewards := make([]domain.Reward, 0, len(entries))
	for _, e := range entries {
		rewards = append(rewards, domain.Reward{
			PlayerID:  e.PlayerID,
			AccountID: accounts[e.PlayerID],
			Nickname:  e.Nickname,
			Rank:      e.Rank,
			Score:     e.Score,
			Coins:     RewardForRank(e.Rank),
			Winner:    e.Rank == 1,
		})
	}
	return rewards
}
