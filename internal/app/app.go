package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"support-inbox-go/internal/checkpoint"
	"support-inbox-go/internal/config"
	"support-inbox-go/internal/db"
	"support-inbox-go/internal/handler"
	"support-inbox-go/internal/ingest"
	"support-inbox-go/internal/mailbox"
	"support-inbox-go/internal/metrics"
	"support-inbox-go/internal/notify"
	"support-inbox-go/internal/repository"
	"support-inbox-go/internal/router"
	"support-inbox-go/internal/watch"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Support Inbox Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()

	var client mailbox.Client
	var watcher mailbox.Watcher
	if cfg.Gmail.UseFake {
		fake := mailbox.NewFakeClient()
		client, watcher = fake, fake
		logrus.Info("Using fake mailbox client")
	} else {
		gmailClient, err := mailbox.NewGmailClient(&cfg.Gmail)
		if err != nil {
			return fmt.Errorf("failed to create Gmail client: %w", err)
		}
		client, watcher = gmailClient, gmailClient
		logrus.Info("Using Gmail API mailbox client")
	}

	repo := repository.New(dbConn)
	checkpoints := checkpoint.NewStore(dbConn)
	engine := ingest.NewEngine(client, repo, checkpoints, m, &cfg.Ingest)

	var renewer *watch.Renewer
	if cfg.Watch.Enabled {
		renewer = watch.NewRenewer(&cfg.Watch, watcher)
		if err := renewer.Start(); err != nil {
			return fmt.Errorf("failed to start watch renewer: %w", err)
		}
	}

	var subscriber *notify.Subscriber
	if cfg.PubSub.Enabled {
		subscriber, err = notify.NewSubscriber(&cfg.PubSub, engine)
		if err != nil {
			return fmt.Errorf("failed to create pubsub subscriber: %w", err)
		}
		subscriber.Start()
	}

	h := handler.NewHandlers(dbConn, repo, checkpoints, client, engine, renewer, m)
	r := router.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			logrus.Errorf("Failed to stop pubsub subscriber: %v", err)
		}
	}
	if renewer != nil {
		if err := renewer.Stop(); err != nil {
			logrus.Errorf("Failed to stop watch renewer: %v", err)
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	// Let detached ingestion runs finish so the checkpoint reflects them.
	engine.Wait()

	logrus.Info("Server stopped gracefully")
	return nil
}
