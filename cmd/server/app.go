package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"sessionreminders/internal/config"
	"sessionreminders/internal/database"
	"sessionreminders/internal/handlers"
	"sessionreminders/internal/jobs"
	"sessionreminders/internal/services"
	"sessionreminders/internal/store"
	"sessionreminders/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// app holds the assembled dependencies shared by the commands
type app struct {
	cfg          config.Config
	store        *store.GormStore
	jobs         *jobs.Repo
	orchestrator *services.Orchestrator
	executor     *services.DeliveryExecutor
	manual       *services.ManualTriggerHandler
	stats        *services.StatsService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.ReleaseMode)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	s := store.New(db)
	repo := jobs.NewRepo(db).WithLockTimeout(cfg.Worker.LockTimeout)
	clock := utils.SystemClock{}

	var transport services.EmailTransport
	if cfg.SendGridAPIKey == "" {
		log.Printf("Warning: SENDGRID_API_KEY not set, reminders are logged instead of sent")
		transport = services.LogTransport{}
	} else {
		transport = services.NewSendGridTransport(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
	}

	executor := services.NewDeliveryExecutor(s, s, s, transport, services.ExecutorOptions{
		BatchSize:      cfg.Reminder.BatchSize,
		Concurrency:    cfg.Reminder.Concurrency,
		MaxRetries:     cfg.Reminder.MaxRetries,
		SendsPerSecond: cfg.Reminder.SendsPerSecond,
		BaseURL:        cfg.AppBaseURL,
		Clock:          clock,
	})

	return &app{
		cfg:          cfg,
		store:        s,
		jobs:         repo,
		orchestrator: services.NewOrchestrator(s, s, repo, clock),
		executor:     executor,
		manual:       services.NewManualTriggerHandler(s, s, executor, transport, cfg.AppBaseURL, clock),
		stats:        services.NewStatsService(s),
	}, nil
}

func (a *app) router() *gin.Engine {
	if a.cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.NewReminderHandler(a.orchestrator, a.manual, a.stats, a.store, a.store)
	return handlers.NewRouter(handlers.RouterConfig{
		JWTSecret:      a.cfg.JWTSecret,
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
		TrustedProxies: a.cfg.TrustedProxies,
	}, a.store, h)
}

func (a *app) worker() *jobs.Worker {
	id := a.cfg.Worker.ID
	if id == "" {
		host, _ := os.Hostname()
		id = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	w := jobs.NewWorker(a.jobs, id, a.cfg.Worker.PollInterval, a.cfg.Worker.ClaimBatch)
	services.NewReminderWorker(a.executor, a.manual).Register(w)
	return w
}

// seedConfigs writes the configured (or default) reminder configurations
func (a *app) seedConfigs(ctx context.Context, path string, overwrite bool) error {
	cfgs := config.DefaultReminderConfigurations()
	if path != "" {
		loaded, err := config.LoadReminderConfigurations(path)
		if err != nil {
			return err
		}
		cfgs = loaded
	}
	for _, c := range cfgs {
		if err := services.ValidateTemplate(c.SubjectTemplate + c.BodyTemplate); err != nil {
			return fmt.Errorf("reminder %s: %w", c.ReminderType, err)
		}
	}
	if err := a.store.UpsertConfigs(ctx, cfgs, overwrite); err != nil {
		return fmt.Errorf("seed reminder configurations: %w", err)
	}
	log.Printf("Seeded %d reminder configurations (overwrite=%v)", len(cfgs), overwrite)
	return nil
}

func (a *app) close() {
	sqlDB, err := a.store.DB().DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
}
