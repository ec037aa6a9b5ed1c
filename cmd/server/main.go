package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenantaudit/api/internal/app/reconcile"
	"github.com/tenantaudit/api/internal/app/report"
	"github.com/tenantaudit/api/internal/app/scan"
	"github.com/tenantaudit/api/internal/app/schedule"
	"github.com/tenantaudit/api/internal/app/sitecache"
	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/internal/infra/directory"
	infrahttp "github.com/tenantaudit/api/internal/infra/http"
	"github.com/tenantaudit/api/internal/infra/http/handler"
	"github.com/tenantaudit/api/internal/infra/http/routes"
	"github.com/tenantaudit/api/internal/infra/jobs"
	"github.com/tenantaudit/api/internal/infra/postgres"
	"github.com/tenantaudit/api/internal/infra/redis"
	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/project"
	"github.com/tenantaudit/api/pkg/logger"
	"github.com/tenantaudit/api/pkg/retry"
	"github.com/tenantaudit/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// Infrastructure.
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.NewClient(cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	dirClient, err := directory.NewSharePointClient(directory.SharePointConfig{
		AccessToken:       cfg.Directory.AccessToken,
		RequestTimeout:    cfg.Directory.RequestTimeout,
		RequestsPerSecond: cfg.Directory.RequestsPerSecond,
		Burst:             cfg.Directory.Burst,
		Retry: retry.Config{
			MaxRetries:   cfg.Directory.MaxRetries,
			InitialDelay: cfg.Directory.InitialDelay,
			MaxDelay:     cfg.Directory.MaxDelay,
		},
	}, log)
	if err != nil {
		log.Error("failed to initialize directory client", "error", err)
		return 1
	}

	// Repositories.
	siteRepo := postgres.NewSiteRepository(db)
	runRepo := postgres.NewScanRunRepository(db)
	projectRepo := postgres.NewProjectRepository(db)
	reportRepo := postgres.NewReconciliationRepository(db)

	// Services.
	siteCache := sitecache.NewService(siteRepo, dirClient, log)
	scanSvc := scan.NewService(runRepo, siteCache, dirClient, cfg.Scanner, cfg.SiteCache, log)
	inventoryCache := redis.NewCache[*inventory.FileInventory](redisClient, "inventory", cfg.Redis.InventoryTTL)
	reconcileSvc := reconcile.NewService(runRepo, projectRepo, reportRepo, dirClient, inventoryCache, log)

	// Job queue.
	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	defer closeWithLog(jobClient, "job client", log)

	exporter := report.NewExporter(cfg.Scanner.ExportDir)
	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, scanSvc, reconcileSvc, exporter, log)
	if err := worker.Start(); err != nil {
		log.Error("failed to start job worker", "error", err)
		return 1
	}

	// Recurring audits.
	scheduler := schedule.NewScheduler(scanSvc, reconcileSvc, jobClient, projectRepo, log)
	if err := registerSchedules(ctx, cfg, scheduler, projectRepo, log); err != nil {
		log.Error("failed to register schedules", "error", err)
		return 1
	}
	scheduler.Start()

	// HTTP server.
	server := infrahttp.NewServer(cfg, log)
	routes.Register(server.Router(), routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithDatabase(handler.PingerFunc(db.HealthCheck)),
			handler.WithRedis(handler.PingerFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})),
		),
		Project:        handler.NewProjectHandler(projectRepo, validator.New(), log),
		Site:           handler.NewSiteHandler(siteCache, projectRepo, cfg.SiteCache, log),
		Scan:           handler.NewScanHandler(scanSvc, runRepo, projectRepo, jobClient, log),
		Reconciliation: handler.NewReconciliationHandler(reconcileSvc, runRepo, reportRepo, projectRepo, jobClient, log),
	}, routes.Options{APIKey: cfg.Admin.APIKey}, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	scheduler.Stop()
	worker.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// registerSchedules sets up the recurring audit entries for every active
// project. Empty cron specs disable a schedule.
func registerSchedules(
	ctx context.Context,
	cfg *config.Config,
	scheduler *schedule.Scheduler,
	projects project.Repository,
	log *logger.Logger,
) error {
	if cfg.Schedule.AppScanSpec == "" && cfg.Schedule.ReconcileSpec == "" {
		return nil
	}

	list, err := projects.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.Status != project.StatusActive {
			continue
		}
		if spec := cfg.Schedule.AppScanSpec; spec != "" {
			if _, err := scheduler.ScheduleAppScan(spec, p.ID); err != nil {
				return err
			}
			log.Info("app scan scheduled", "project_id", p.ID, "spec", spec)
		}
		if spec := cfg.Schedule.ReconcileSpec; spec != "" {
			if _, err := scheduler.ScheduleReconciliation(spec, p.ID); err != nil {
				return err
			}
			log.Info("reconciliation scheduled", "project_id", p.ID, "spec", spec)
		}
	}
	return nil
}

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	if cfg.IsProduction() {
		log = logger.New(logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		})
	} else {
		log = logger.NewDevelopment()
	}
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
