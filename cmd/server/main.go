package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ignite/outreach/internal/api"
	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/mailing"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/repository/postgres"
	"github.com/ignite/outreach/internal/service/campaign"
	"github.com/ignite/outreach/internal/service/followup"
	"github.com/ignite/outreach/internal/service/lead"
	"github.com/ignite/outreach/internal/transport"
	"github.com/ignite/outreach/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailer, err := transport.NewSESTransport(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
	if err != nil {
		log.Fatalf("Failed to initialize SES transport: %v", err)
	}

	campaignRepo := postgres.NewCampaignRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	leadRepo := postgres.NewLeadRepo(db)

	templates := mailing.NewTemplateService()
	dispatcher := dispatch.NewDispatcher(campaignRepo, accountRepo, mailer, templates)
	runner := worker.NewRunner(campaignRepo, dispatcher, cfg.Scheduler.ClaimTTL())

	campaignSvc := campaign.NewService(campaignRepo)
	followupSvc := followup.NewService(campaignRepo)
	leadSvc := lead.NewService(leadRepo, accountRepo)

	server := api.NewServer(
		api.NewCampaignAPI(campaignSvc, runner),
		api.NewFollowupAPI(followupSvc, runner),
		api.NewLeadAPI(leadSvc),
		api.NewAccountAPI(accountRepo),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down...", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
