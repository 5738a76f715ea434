package memory

import (
	"context"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestEventHubDeliversPerSession(t *testing.T) {
	ctx := context.Background()
	hub := NewEventHub(4)

	ch, cancel, err := hub.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	_ = hub.Publish(ctx, domain.Event{SessionID: "s2", Seq: 1})
	_ = hub.Publish(ctx, domain.Event{SessionID: "s1", Seq: 2, Phase: domain.PhaseCountdown})

	ev := <-ch
	if ev.Seq != 2 || ev.Phase != domain.PhaseCountdown {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestEventHubDropsOldestForSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := NewEventHub(2)
	ch, cancel, _ := hub.Subscribe(ctx, "s1")

	for seq := uint64(1); seq <= 5; seq++ {
		_ = hub.Publish(ctx, domain.Event{SessionID: "s1", Seq: seq})
	}
	first := <-ch
	second := <-ch
	if first.Seq != 4 || second.Seq != 5 {
		t.Fatalf("expected newest events 4,5; got %d,%d", first.Seq, second.Seq)
	}

	cancel()
	if _, open := <-ch; open {
		t.Fatalf("expected channel closed after cancel")
	}
	cancel()
}

func TestAccountStoreGrantsOncePerSessionPlayer(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore()
	reward := domain.Reward{PlayerID: "p1", AccountID: "acct", Rank: 1, Coins: 40, Score: 900, Winner: true}

	_ = store.GrantReward(ctx, "s1", reward)
	_ = store.GrantReward(ctx, "s1", reward)
	_ = store.GrantReward(ctx, "s2", reward)

	b := store.Balance("acct")
	if b.Coins != 80 || b.GamesPlayed != 2 || b.GamesWon != 2 || b.TotalPoints != 1800 {
		t.Fatalf("unexpected balance %+v", b)
	}
}
