package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pginfra "live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,

			ContextTimeoutEnabled: true,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var bus app.EventBus = memory.NewEventHub(cfg.Server.EventBuffer)
	if redisClient != nil && cfg.Redis.PubSub {
		bus = redisinfra.NewEventBus(redisClient, cfg.Server.EventBuffer)
	}

	var accounts app.AccountStore = memory.NewAccountStore()
	switch {
	case pool != nil:
		accounts = pginfra.NewAccountStore(pool)
	case redisClient != nil:
		accounts = redisinfra.NewAccountStore(redisClient, config.TTLDuration(cfg.Redis.GrantTTL, 7*24*time.Hour))
	}

	service := app.NewGameService(store, quizRepo, bus, accounts, gameSettings(cfg.Game))
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	wsHandler.Register(mux)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz service on :%s redis=%t postgres=%t", finalPort, redisClient != nil, pool != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func gameSettings(cfg config.GameConfig) app.Settings {
	settings := app.DefaultSettings()
	settings.Countdown = config.TTLDuration(cfg.Countdown, settings.Countdown)
	settings.RevealWhenAllAnswered = cfg.RevealWhenAllAnswered
	settings.MaxPlayers = cfg.MaxPlayers
	settings.Retention = config.TTLDuration(cfg.Retention, settings.Retention)
	settings.Modifiers = map[domain.ModifierKind]int{
		domain.ModifierFiftyFifty:   cfg.Modifiers.FiftyFifty,
		domain.ModifierDoublePoints: cfg.Modifiers.DoublePoints,
	}
	return settings
}

// sampleQuizzes is served when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
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
						{Index: 3, Text: "22"},
					},
					Points:           1000,
					TimeLimitSeconds: 20,
				},
				{
					ID:     "q2",
					Prompt: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{Index: 0, Text: "Venus"},
						{Index: 1, Text: "Jupiter"},
						{Index: 2, Text: "Mars", Correct: true},
						{Index: 3, Text: "Mercury"},
					},
					Points:           1000,
					TimeLimitSeconds: 20,
				},
				{
					ID:     "q3",
					Prompt: "How many sides does a hexagon have?",
					Options: []domain.Option{
						{Index: 0, Text: "6", Correct: true},
						{Index: 1, Text: "8"},
					},
					Points:           500,
					TimeLimitSeconds: 10,
				},
			},
		},
	}
}
