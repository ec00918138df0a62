package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birthday-notifier/internal/application/scheduler"
	"github.com/birthday-notifier/internal/config"
	"github.com/birthday-notifier/internal/infrastructure/dynamo"
	"github.com/birthday-notifier/internal/infrastructure/emailservice"
	transporthttp "github.com/birthday-notifier/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Bootstrap the DynamoDB users table (creates it if it doesn't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.UsersTable)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.UsersTable)

	sender := emailservice.NewClient(cfg)

	sched := scheduler.NewService(scheduler.ServiceDeps{
		Store:       userRepo,
		Sender:      sender,
		Logger:      logger,
		MaxRetries:  cfg.SendMaxRetries,
		Backoff:     cfg.SendRetryBackoff,
		RecoveryAge: cfg.RecoveryAge,
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("scheduler error: %v", err)
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{UserRepo: userRepo})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
