package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/config"
	"class-quiz-service/internal/domain"
	"class-quiz-service/internal/infra/memory"
	pgstore "class-quiz-service/internal/infra/postgres"
	"class-quiz-service/internal/infra/rabbitmq"
	redisstore "class-quiz-service/internal/infra/redis"
	transport "class-quiz-service/internal/transport/http"
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
		})
		defer redisClient.Close()
	}

	var store app.QuizStore
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewQuizStore(pool)
	} else {
		demo, err := sampleQuiz()
		if err != nil {
			return err
		}
		store = memory.NewQuizStore(demo)
		log.Printf("no postgres configured, serving demo quiz %s (course %s, class %d)", demo.ID, demo.CourseID, demo.ClassNumber)
	}
	loader := app.QuizLoaderFunc(store.Get)

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	attemptTTL := config.TTLDuration(cfg.Attempt.TTL, 3*time.Hour)
	var quizRepo app.QuizRepository
	var attempts app.AttemptRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		attempts = redisstore.NewAttemptStore(redisClient, quizRepo, attemptTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStoreWithClock(attemptTTL, time.Now)
	}
	boards := memory.NewBoardStore()

	var results app.ResultPublisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return err
		}
		defer publisher.Close()
		results = publisher
	}

	attemptService := app.NewAttemptService(store, attempts, boards, results)
	authoringService := app.NewAuthoringService(store, quizRepo, attempts, boards)
	wsHandler := transport.NewWSHandler(attemptService, config.TTLDuration(cfg.Attempt.Tick, time.Second))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	transport.NewAuthoringHandler(authoringService).Register(mux)
	transport.NewResultsHandler(attemptService).Register(mux)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuiz is served when no database is configured.
func sampleQuiz() (domain.Quiz, error) {
	cfg := domain.DefaultConfiguration()
	cfg.LeaderboardEnabled = true
	cfg.MaxAttempts = 0
	now := time.Now().UTC()
	return domain.NewQuiz(domain.Quiz{
		ID:               "demo-quiz",
		CourseID:         "demo",
		ClassNumber:      1,
		Title:            "Warm-up",
		Instructions:     "Answer every question before the timer runs out.",
		TimeLimitMinutes: 5,
		Configuration:    cfg,
		IsPublished:      true,
		CreatedAt:        now,
		UpdatedAt:        now,
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Kind: domain.KindMultipleChoice, Options: []string{"3", "4", "5"}, CorrectAnswer: domain.ChoiceAnswer(1)},
			{ID: "q2", Text: "The earth orbits the sun.", Kind: domain.KindTrueFalse, CorrectAnswer: domain.TextAnswer("true")},
			{ID: "q3", Text: "What is 7 / 2?", Kind: domain.KindNumerical, CorrectAnswer: domain.TextAnswer("3.5")},
		},
	})
}
