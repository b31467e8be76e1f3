package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/config"
	"telegram-quiz-bot/internal/infra/csvfile"
	"telegram-quiz-bot/internal/infra/memory"
	pgloader "telegram-quiz-bot/internal/infra/postgres"
	redisstore "telegram-quiz-bot/internal/infra/redis"
	transporthttp "telegram-quiz-bot/internal/transport/http"
	"telegram-quiz-bot/internal/transport/telegram"
)

// NewStartCmd builds the CLI subcommand to start the bot.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *configPath, *port)
		},
	}
}

func runBot(ctx context.Context, configPath, portFlag string) error {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	token := cfg.Telegram.Token
	if token == "" {
		token = os.Getenv("TELEGRAM_TOKEN")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	bankFile := cfg.Quiz.BankFile
	if bankFile == "" {
		bankFile = "questions.csv"
	}
	var loader memory.BankLoader = csvfile.NewLoader(bankFile)
	if pool != nil {
		loader = pgloader.NewBankLoader(pool)
	}
	bankTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	banks := memory.NewBankRepository(loader, bankTTL)

	bankID := cfg.Quiz.BankID
	if bankID == "" {
		bankID = "default"
	}
	// A malformed bank is the only fatal startup condition; fail fast
	// instead of on the first /start.
	if _, err := banks.GetBank(ctx, bankID); err != nil {
		return err
	}

	var archive app.ResultsArchive
	if cfg.Redis.Addr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		archive = redisstore.NewResultsStore(redisClient, config.Duration(cfg.Redis.TTL, 24*time.Hour))
	}

	bot, err := telegram.New(token, logger)
	if err != nil {
		return err
	}

	service := app.NewService(app.Deps{
		Banks:     banks,
		Messenger: bot,
		Archive:   archive,
		Logger:    logger,
		Config: app.Config{
			BankID:       bankID,
			MaxQuestions: cfg.Quiz.MaxQuestions,
			QuestionTime: config.Duration(cfg.Quiz.QuestionTime, 10*time.Second),
			TickInterval: config.Duration(cfg.Quiz.TickInterval, 5*time.Second),
			RevealPause:  config.Duration(cfg.Quiz.RevealPause, 3*time.Second),
			EarlyAdvance: cfg.Quiz.EarlyAdvance,
		},
	})
	bot.Attach(service)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	wsHandler := transporthttp.NewWSHandler(service, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("leaderboard feed listening", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("leaderboard feed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("bot polling started")
		bot.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	}

	bot.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
