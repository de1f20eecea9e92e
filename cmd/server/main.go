package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/api"
	"github.com/streamflow/analytics-core/internal/api/handlers"
	"github.com/streamflow/analytics-core/internal/config"
	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/core/metrics"
	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/stream"
	"github.com/streamflow/analytics-core/internal/core/window"
	"github.com/streamflow/analytics-core/internal/database"
	"github.com/streamflow/analytics-core/internal/database/sqlite"
	"github.com/streamflow/analytics-core/internal/websocket"
	"github.com/streamflow/analytics-core/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	logger.SetLevel(log, cfg.Logging.Level)

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	ruleRepo := sqlite.NewRuleRepository(db, log)
	alertRepo := sqlite.NewAlertRepository(db, log)

	hub := websocket.NewHub(log)
	go hub.Run()

	collector := metrics.NewCollector(cfg.Metrics.Prefix)

	windows := window.NewManager(cfg.Windows.GracePeriod, cfg.Windows.Retention,
		cfg.Windows.MaxSamples, log)
	engine := rules.NewEngine(windows, log)

	alertMgr := alerts.NewManager(nil, alertRepo, alerts.Options{
		MaxDeliveryTries: cfg.Alerting.MaxDeliveryTries,
		InitialBackoff:   cfg.Alerting.InitialBackoff,
		MaxBackoff:       cfg.Alerting.MaxBackoff,
		AutoResolveAfter: cfg.Alerting.AutoResolveAfter,
	}, log)
	alertMgr.OnFired = func(alert *alerts.Alert, escalation bool) {
		websocket.BroadcastAlert(hub, alert, escalation)
	}

	queue := stream.NewMemoryQueue(cfg.Stream.QueueSize)
	coordinator := stream.NewCoordinator(queue, engine, windows, alertMgr, collector, stream.Options{
		Workers:        cfg.Stream.Workers,
		DequeueTimeout: cfg.Stream.DequeueTimeout,
		SweepInterval:  cfg.Stream.SweepInterval,
		TickInterval:   cfg.Stream.TickInterval,
		HighWaterMark:  cfg.Stream.HighWaterMark,
	}, log)
	coordinator.OnMatch = func(match rules.Match) {
		websocket.BroadcastMatch(hub, match)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loadRules(ctx, cfg, engine, ruleRepo, log)

	coordinator.Start(ctx)

	// The alerting sweep (escalation, auto-resolve) runs on its own
	// schedule, decoupled from the window sweeper.
	scheduler := cron.New()
	sweepEvery := cfg.Alerting.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	scheduler.Schedule(cron.Every(sweepEvery), cron.FuncJob(func() {
		alertMgr.Sweep(ctx, time.Now())
		websocket.BroadcastStats(hub, coordinator.GetStats())
	}))
	scheduler.Start()

	h := handlers.NewHandlers(cfg, engine, alertMgr, coordinator, hub,
		ruleRepo, alertRepo, db.Ping, log)
	router := api.NewRouter(cfg, h, hub, collector, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Starting analytics core on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	scheduler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}
	coordinator.Stop()
	hub.Close()

	log.Info("Server exited")
}

// loadRules registers persisted rules first, then any definitions from
// the rules file that are not already present.
func loadRules(ctx context.Context, cfg *config.Config, engine *rules.Engine,
	repo *sqlite.RuleRepository, log *logrus.Logger) {
	stored, err := repo.GetAll(ctx)
	if err != nil {
		log.Errorf("Failed to load persisted rules: %v", err)
	}
	for _, rule := range stored {
		if err := engine.Register(rule); err != nil {
			log.Errorf("Skipping persisted rule %s: %v", rule.ID, err)
		}
	}

	if cfg.RulesFile == "" {
		log.Infof("Registered %d persisted rules", len(stored))
		return
	}

	fromFile, err := rules.LoadFile(cfg.RulesFile)
	if err != nil {
		log.Errorf("Failed to load rules file %s: %v", cfg.RulesFile, err)
		return
	}
	added := 0
	for _, rule := range fromFile {
		if _, err := engine.Get(rule.ID); err == nil {
			continue
		}
		if err := engine.Register(rule); err != nil {
			log.Errorf("Skipping rule %s from %s: %v", rule.ID, cfg.RulesFile, err)
			continue
		}
		if err := repo.Save(ctx, rule); err != nil {
			log.Errorf("Failed to persist rule %s: %v", rule.ID, err)
		}
		added++
	}
	log.Infof("Registered %d persisted and %d file rules", len(stored), added)
}
