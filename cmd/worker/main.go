package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/mailbox"
	"github.com/ignite/outreach/internal/mailing"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/repository/postgres"
	"github.com/ignite/outreach/internal/service/lead"
	"github.com/ignite/outreach/internal/transport"
	"github.com/ignite/outreach/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	log.Println("Starting outreach worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unavailable, using PG advisory locks: %v", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

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

	scheduler := worker.NewScheduler(runner, campaignRepo, db, worker.SchedulerConfig{
		PollInterval: cfg.Scheduler.PollInterval(),
		BatchLimit:   cfg.Scheduler.BatchLimit,
	})
	if redisClient != nil {
		scheduler.SetRedisClient(redisClient)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	imapClient := mailbox.NewIMAPClient(cfg.Mailbox.UseTLS, cfg.Mailbox.FetchLimit)
	leadSink := lead.NewService(leadRepo, accountRepo)
	sync := worker.NewMailboxSync(accountRepo, imapClient, leadSink, db, cfg.Mailbox.PollInterval())
	if err := sync.Start(); err != nil {
		log.Fatalf("Failed to start mailbox sync: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down...", sig)

	sync.Stop()
	scheduler.Stop()
	log.Println("Worker stopped")
}
