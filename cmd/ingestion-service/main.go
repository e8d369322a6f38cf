package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/config"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/internal/ingestor/service"
	"k-stock-insight/internal/ingestor/strategy"
	"k-stock-insight/pkg/logger"
	"k-stock-insight/pkg/postgres"
	"k-stock-insight/pkg/redis"
	"k-stock-insight/pkg/telegram"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	configPath string
	force      bool
)

// app holds the wired ingestion service and everything that must be closed on exit.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	service service.IngestionService
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

func bootstrap() *app {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	a := &app{cfg: cfg, log: appLogger}

	appLogger.Info("Starting Ingestion Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(&dto.ConnectionError{Cause: err}))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}

	// Redis backs the failed entity registry and the run lock. Both degrade to no-ops without it.
	failedEntityRepo := repository.NewNoopFailedEntityRepository()
	runLockRepo := repository.NewNoopRunLockRepository()
	if cfg.Redis.Enabled() {
		redisClient, err := redis.NewClient(redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		failedEntityRepo = repository.NewFailedEntityRepository(redisClient.Client, cfg.Ingest.FailedEntityTTL)
		runLockRepo = repository.NewRunLockRepository(redisClient.Client, cfg.Ingest.RunLockTTL)
	} else {
		appLogger.Warn("Redis not configured, failed entity registry and run lock disabled")
	}

	notifier, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
	}

	// Initialize repositories
	krxRepo := repository.NewKRXRepository(cfg, appLogger)
	marketDataRepo := repository.NewMarketDataRepository(db.DB)
	stocksRepo := repository.NewStocksRepository(db.DB)
	sectorRepo := repository.NewSectorRepository(db.DB)
	runRepo := repository.NewIngestionRunRepository(db.DB)

	// Initialize services
	watermark := service.NewWatermarkTracker(marketDataRepo)
	universe := service.NewUniverseResolver(krxRepo, stocksRepo, sectorRepo, appLogger)
	runners := []service.TableRunner{
		service.NewTableIngestor[entity.DailyPrice](
			strategy.NewDailyPriceStrategy(krxRepo, marketDataRepo),
			watermark, marketDataRepo, failedEntityRepo, runLockRepo, cfg.Ingest, appLogger,
		),
		service.NewTableIngestor[entity.InvestorTrend](
			strategy.NewInvestorTrendStrategy(krxRepo, marketDataRepo),
			watermark, marketDataRepo, failedEntityRepo, runLockRepo, cfg.Ingest, appLogger,
		),
		service.NewTableIngestor[entity.SectorPrice](
			strategy.NewSectorPriceStrategy(krxRepo, marketDataRepo),
			watermark, marketDataRepo, failedEntityRepo, runLockRepo, cfg.Ingest, appLogger,
		),
	}
	a.service = service.NewIngestionService(cfg, appLogger, marketDataRepo, runRepo, universe, runners, notifier)
	return a
}

func exitOnRunError(a *app, err error) {
	if err == nil {
		return
	}
	var connErr *dto.ConnectionError
	if errors.As(err, &connErr) {
		a.log.Error("Ingestion aborted: store unreachable", logger.ErrorField(err))
	} else {
		a.log.Error("Ingestion failed", logger.ErrorField(err))
	}
	a.Close()
	os.Exit(1)
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest full history from the configured start date through yesterday",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := bootstrap()
		defer a.Close()

		_, err := a.service.Backfill(ctx, force)
		exitOnRunError(a, err)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Ingest the gap between each table's watermark and yesterday",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := bootstrap()
		defer a.Close()

		_, err := a.service.Update(ctx)
		exitOnRunError(a, err)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run incremental updates on the configured cron schedule",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := bootstrap()
	defer a.Close()

	c := cron.New(cron.WithLocation(a.cfg.Ingest.Location()))
	_, err := c.AddFunc(a.cfg.Schedule.Cron, func() {
		if _, err := a.service.Update(ctx); err != nil {
			a.log.Error("Scheduled update failed", logger.ErrorField(err))
		}
	})
	if err != nil {
		a.log.Fatal("Invalid cron schedule", logger.StringField("cron", a.cfg.Schedule.Cron), logger.ErrorField(err))
	}
	c.Start()
	a.log.Info("Scheduler started", logger.StringField("cron", a.cfg.Schedule.Cron), logger.StringField("time_zone", a.cfg.Ingest.TimeZone))

	<-ctx.Done()

	a.log.Info("Shutting down scheduler, waiting for a running update to finish...")
	<-c.Stop().Done()
	a.log.Info("Scheduler exiting")
}

func main() {
	rootCmd := &cobra.Command{Use: "ingestion-service"}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-ingestor.yaml", "Path to the configuration file")
	backfillCmd.Flags().BoolVar(&force, "force", false, "Ignore stored watermarks and refetch from the start date")

	rootCmd.AddCommand(backfillCmd, updateCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing ingestion-service CLI: %s\n", err)
		os.Exit(1)
	}
}
