package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/clock"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/infra/memory"
	"classroom-quiz-service/internal/infra/postgres"
	infraredis "classroom-quiz-service/internal/infra/redis"
	"classroom-quiz-service/internal/infra/telegram"
	transport "classroom-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string, envPort string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", envPort, "port to listen on, overrides server.port")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
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
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	var store app.Store
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		logger.Warn("postgres not configured, quizzes are kept in memory")
		store = memory.NewStore()
	}

	optionTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	var (
		options  app.OptionResolver
		guard    app.AnswerGuard
		sessions app.SessionRepository
	)
	if redisClient != nil {
		options = infraredis.NewOptionCache(redisClient, store, optionTTL)
		guard = infraredis.NewAnswerGuard(redisClient, redisTTL)
		sessions = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		options = memory.NewOptionCache(store, optionTTL)
		guard = memory.NewAnswerGuard()
		sessions = memory.NewSessionStore()
	}

	clk := clock.Real{}
	registry := app.NewRegistry(logger)
	ledger := app.NewAnswerLedger(store, options, guard, clk, logger)
	ranking := app.NewRankingEngine(store)

	deps := app.SequencerDeps{
		Store:       store,
		Sessions:    sessions,
		Ledger:      ledger,
		Ranking:     ranking,
		Broadcaster: registry,
		Clock:       clk,
		Logger:      logger,
	}
	if notifier := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.BaseURL, config.TTLDuration(cfg.Telegram.Timeout, 10*time.Second)); notifier != nil {
		deps.Notifier = notifier
	}
	sequencer := app.NewSequencer(deps, app.SequencerConfig{
		InterQuestionPause: config.TTLDuration(cfg.Session.InterQuestionPause, 2*time.Second),
		NotifyTimeout:      config.TTLDuration(cfg.Session.NotifyTimeout, 10*time.Second),
	})
	quizzes := app.NewQuizService(store, clk, logger)

	var verifier transport.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("auth.jwt_secret not set, callers are not authenticated")
	}
	gateway := app.NewGateway(app.GatewayDeps{
		Quizzes:     quizzes,
		Sequencer:   sequencer,
		Ranking:     ranking,
		Registry:    registry,
		Clock:       clk,
		Logger:      logger,
		RequireAuth: verifier != nil,
	})

	sweeper, err := startSweeper(cfg, sequencer, registry, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(
			transport.NewAPIHandler(transport.APIDeps{
				Quizzes:   quizzes,
				Teams:     app.NewTeamService(store, clk, logger),
				Ranking:   ranking,
				Ledger:    ledger,
				Sequencer: sequencer,
				Verifier:  verifier,
				Logger:    logger,
			}),
			transport.NewWSHandler(gateway, verifier, logger),
		),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting quiz service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case err := <-serveErr:
		<-sweeper.Stop().Done()
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	<-sweeper.Stop().Done()
	sequencer.Wait()
	return err
}

// startSweeper schedules removal of finished and unused sessions.
func startSweeper(cfg config.Config, sequencer *app.Sequencer, registry *app.Registry, logger *slog.Logger) (*cron.Cron, error) {
	schedule := cfg.Session.SweepSchedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	retention := config.TTLDuration(cfg.Session.Retention, time.Hour)

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sequencer.Sweep(ctx, retention, registry)
	})
	if err != nil {
		return nil, fmt.Errorf("session sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("session sweeper scheduled", "schedule", schedule, "retention", retention)
	return c, nil
}
