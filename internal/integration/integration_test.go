package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	pginfra "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	redisinfra "live-quiz-service/internal/infra/redis"
)

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pginfra.NewQuizLoader(pool)
	loaded, err := loader.LoadQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if len(loaded.Questions) != 2 || loaded.Questions[0].ID != "q1" || loaded.Questions[0].CorrectIndex() != 1 {
		t.Fatalf("unexpected quiz from postgres %+v", loaded)
	}
	if _, err := loader.LoadQuiz(ctx, "missing"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected quiz not found, got %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	settings := app.DefaultSettings()
	settings.Countdown = 0
	settings.RevealWhenAllAnswered = true
	accounts := pginfra.NewAccountStore(pool)
	service := app.NewGameService(
		redisinfra.NewSessionStore(redisClient, 5*time.Minute),
		redisinfra.NewQuizRepository(redisClient, loader, 5*time.Minute),
		redisinfra.NewEventBus(redisClient, 32),
		accounts,
		settings,
	)

	state, err := service.Host(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	sessionID := state.SessionID
	events, cancel, err := service.Subscribe(ctx, sessionID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	alice, err := service.Join(ctx, sessionID, domain.JoinRequest{Nickname: "Alice", AccountID: "acct-alice"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, err := service.Join(ctx, sessionID, domain.JoinRequest{Nickname: "Bob"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := service.Start(ctx, sessionID); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, q := range sampleQuiz().Questions {
		correct := q.CorrectIndex()
		wrong := (correct + 1) % len(q.Options)
		if _, err := service.Submit(ctx, sessionID, alice.PlayerID, q.ID, &correct); err != nil {
			t.Fatalf("alice submit %s: %v", q.ID, err)
		}
		if _, err := service.Submit(ctx, sessionID, bob.PlayerID, q.ID, &wrong); err != nil {
			t.Fatalf("bob submit %s: %v", q.ID, err)
		}
		if err := service.ShowLeaderboard(ctx, sessionID); err != nil {
			t.Fatalf("leaderboard after %s: %v", q.ID, err)
		}
		if err := service.Next(ctx, sessionID); err != nil {
			t.Fatalf("next after %s: %v", q.ID, err)
		}
	}

	final, err := service.CurrentState(ctx, sessionID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if final.Phase != domain.PhaseFinished || final.Leaderboard.Entries[0].PlayerID != alice.PlayerID {
		t.Fatalf("unexpected final state %+v", final)
	}

	balance, err := accounts.Balance(ctx, "acct-alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Coins != 40 || balance.GamesWon != 1 || balance.GamesPlayed != 1 {
		t.Fatalf("unexpected balance %+v", balance)
	}
	// a repeated grant for the same session is ignored
	if err := accounts.GrantReward(ctx, sessionID, final.Rewards[0]); err != nil {
		t.Fatalf("regrant: %v", err)
	}
	if again, _ := accounts.Balance(ctx, "acct-alice"); again != balance {
		t.Fatalf("reward granted twice: %+v", again)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Phase == domain.PhaseFinished && ev.Type == domain.EventPhase {
				return
			}
		case <-deadline:
			t.Fatalf("finished event not received over redis pub/sub")
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, title) VALUES (?, ?)`, quiz.ID, quiz.Title); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	for order, q := range quiz.Questions {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (id, quiz_id, order_index, prompt, points, time_limit_seconds) VALUES (?, ?, ?, ?, ?, ?)`,
			q.ID, quiz.ID, order, q.Prompt, q.Points, q.TimeLimitSeconds); err != nil {
			t.Fatalf("insert question %s: %v", q.ID, err)
		}
		for _, opt := range q.Options {
			if _, err := db.ExecContext(ctx,
				`INSERT INTO answer_options (question_id, option_index, text, is_correct) VALUES (?, ?, ?, ?)`,
				q.ID, opt.Index, opt.Text, opt.Correct); err != nil {
				t.Fatalf("insert option: %v", err)
			}
		}
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{Index: 0, Text: "3"},
					{Index: 1, Text: "4", Correct: true},
					{Index: 2, Text: "5"},
				},
				Points:           1000,
				TimeLimitSeconds: 20,
			},
			{
				ID:     "q2",
				Prompt: "Capital of France?",
				Options: []domain.Option{
					{Index: 0, Text: "Paris", Correct: true},
					{Index: 1, Text: "Lyon"},
				},
				Points:           500,
				TimeLimitSeconds: 20,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
