package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"archetype-chat-service/internal/app"
	"archetype-chat-service/internal/chatapi"
	"archetype-chat-service/internal/config"
	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/identity"
	"archetype-chat-service/internal/infra/memory"
	pgloader "archetype-chat-service/internal/infra/postgres"
	infraredis "archetype-chat-service/internal/infra/redis"
	transport "archetype-chat-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the archetype service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(opts, cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := opts.port
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
		})
		defer redisClient.Close()
	}

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
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	stores := deviceStores(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*24*time.Hour))

	chat, err := chatapi.NewClient(log, cfg.ChatAPI.BaseURL, config.TTLDuration(cfg.ChatAPI.Timeout, chatapi.DefaultTimeout))
	if err != nil {
		return err
	}
	quizzes, err := app.NewQuizService(quizRepo, chat, cfg.ScoringConfig(), log)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(quizzes, chat, stores, log).ServeWS)
	mux.Handle("/score", transport.NewScoreHandler(quizzes))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting archetype service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// deviceStores gives every device its own key namespace in the shared store.
func deviceStores(client *redis.Client, ttl time.Duration) transport.StoreFactory {
	if client != nil {
		base := infraredis.NewSessionStore(client, ttl)
		return func(deviceID string) identity.Store {
			return base.Namespace("device:" + deviceID + ":")
		}
	}
	base := memory.NewSessionStoreWithTTL(ttl, time.Now)
	return func(deviceID string) identity.Store {
		return base.Namespace("device:" + deviceID + ":")
	}
}

// sampleQuizzes is the built-in archetype quiz served when no Postgres store is configured.
func sampleQuizzes() map[string]domain.Quiz {
	options := func(prefix string, texts [4]string) []domain.Option {
		return []domain.Option{
			{ID: prefix + "a", Text: texts[0], Archetype: "visionary"},
			{ID: prefix + "b", Text: texts[1], Archetype: "nurturer"},
			{ID: prefix + "c", Text: texts[2], Archetype: "adventurer"},
			{ID: prefix + "d", Text: texts[3], Archetype: "guardian"},
		}
	}
	return map[string]domain.Quiz{
		"archetype": {
			ID: "archetype",
			Questions: []domain.Question{
				{ID: 1, Prompt: "What draws you to someone first?", Core: true,
					Options: options("q1", [4]string{"Their ideas", "Their warmth", "Their energy", "Their reliability"})},
				{ID: 2, Prompt: "Your ideal shared weekend?", Core: true,
					Options: options("q2", [4]string{"Planning a big project", "Cooking for friends", "A last-minute trip", "A cozy routine"})},
				{ID: 3, Prompt: "How do you handle conflict?", Core: true,
					Options: options("q3", [4]string{"Reframe the problem", "Listen first", "Talk it out now", "Set clear rules"})},
				{ID: 4, Prompt: "Pick a gift to receive.",
					Options: options("q4", [4]string{"A book of big ideas", "A handwritten letter", "Concert tickets", "A quality watch"})},
				{ID: 5, Prompt: "What matters most in the long run?",
					Options: options("q5", [4]string{"Growth", "Care", "Freedom", "Security"})},
			},
		},
	}
}
