package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timestable-quiz/internal/app"
	"timestable-quiz/internal/config"
	"timestable-quiz/internal/infra/memory"
	pgstore "timestable-quiz/internal/infra/postgres"
	infraredis "timestable-quiz/internal/infra/redis"
	"timestable-quiz/internal/leaderboard"
	"timestable-quiz/internal/logger"
	"timestable-quiz/internal/metrics"
	"timestable-quiz/internal/quiz"
	transport "timestable-quiz/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
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
	log, err := logger.New(os.Stdout, cfg.Log.Level)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log.Named("migrate")); err != nil {
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
		})
		defer redisClient.Close()
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var store leaderboard.Store = memory.NewLeaderboardStore()
	if pool != nil {
		store = pgstore.NewLeaderboardStore(pool)
	} else {
		log.Warn(ctx, "postgres not configured, leaderboard will not survive restarts")
	}
	if redisClient != nil {
		store = infraredis.NewLeaderboardCache(redisClient, store, config.TTLDuration(cfg.Quiz.CacheTTL, time.Minute))
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = infraredis.NewSessionStore(redisClient, sessionTTL)
	} else {
		sessions = memory.NewSessionStore(sessionTTL)
	}

	recorder := metrics.NewRecorder()
	service := app.NewQuizService(
		sessions,
		quiz.NewGenerator(),
		leaderboard.NewEngine(store, cfg.Quiz.LeaderboardSize),
		app.WithQuestionCount(cfg.Quiz.QuestionCount),
		app.WithLogger(log.Named("quiz")),
		app.WithMetrics(recorder),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(service, log.Named("ws")).ServeWS)
	mux.Handle("/leaderboard", transport.NewLeaderboardHandler(service, log.Named("http")))
	mux.Handle("/metrics", recorder.Handler())

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info(ctx, "starting quiz service", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "failed to start server", logger.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info(ctx, "shutting down server")
	case <-ctx.Done():
		log.Info(ctx, "context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
