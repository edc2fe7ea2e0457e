package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fauzanr/kurma-inventory-service/config"
	"github.com/fauzanr/kurma-inventory-service/pkg/broker"
	"github.com/fauzanr/kurma-inventory-service/pkg/cache"
	"github.com/fauzanr/kurma-inventory-service/pkg/logger"
	"github.com/fauzanr/kurma-inventory-service/pkg/postgres"
	"github.com/fauzanr/kurma-inventory-service/pkg/search"

	alertRepoPkg "github.com/fauzanr/kurma-inventory-service/internal/alert/repository"
	alertUCPkg "github.com/fauzanr/kurma-inventory-service/internal/alert/usecase"

	invListenerPkg "github.com/fauzanr/kurma-inventory-service/internal/inventory/listener"
	invRepoPkg "github.com/fauzanr/kurma-inventory-service/internal/inventory/repository"
	invUCPkg "github.com/fauzanr/kurma-inventory-service/internal/inventory/usecase"

	repackRepoPkg "github.com/fauzanr/kurma-inventory-service/internal/repack/repository"
	repackUCPkg "github.com/fauzanr/kurma-inventory-service/internal/repack/usecase"

	samplingRepoPkg "github.com/fauzanr/kurma-inventory-service/internal/sampling/repository"
	samplingUCPkg "github.com/fauzanr/kurma-inventory-service/internal/sampling/usecase"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. Initialize Kafka
	producer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
	})
	defer producer.Close()

	ordersConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrdersTopic,
		GroupID: cfg.Kafka.OrdersGroupID,
	})
	defer ordersConsumer.Close()
	appLogger.Info("Connected to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("orders_topic", cfg.Kafka.OrdersTopic))

	// 6. Initialize Elasticsearch
	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch (Search features might be limited)", zap.Error(err))
		esClient = nil
	} else {
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	// 7. Initialize Repositories
	invRepo := invRepoPkg.NewPGRepository(db)
	alertRepo := alertRepoPkg.NewPGRepository(db)
	repackRepo := repackRepoPkg.NewPGRepository(db)
	samplingRepo := samplingRepoPkg.NewPGRepository(db)

	// 8. Initialize UseCases. Alerts come first so the ledger can run threshold
	// checks after every mutation.
	alertUC := alertUCPkg.NewAlertUseCase(alertRepo, invRepo, producer, alertUCPkg.Config{
		CriticalThresholdRatio: cfg.Alert.CriticalThresholdRatio,
		Cooldown:               time.Duration(cfg.Alert.CooldownMinutes) * time.Minute,
		ExpiryHorizonDays:      cfg.Alert.ExpiryHorizonDays,
	}, appLogger)
	invUC := invUCPkg.NewInventoryUseCase(invRepo, redisClient, esClient, producer, alertUC, appLogger)
	repackUC := repackUCPkg.NewRepackUseCase(repackRepo, invRepo, invUC, alertUC, redisClient, producer, nil, appLogger)
	samplingUC := samplingUCPkg.NewSamplingUseCase(samplingRepo, invUC, producer, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 9. Start Listeners
	saleListener := invListenerPkg.NewSaleListener(ordersConsumer, invUC, appLogger)
	go saleListener.Start(ctx)

	// 10. Background sweeps: threshold and expiry alerts, stale approvals.
	go func() {
		interval := time.Duration(cfg.Alert.SweepIntervalMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := alertUC.SweepLowStock(ctx); err != nil {
					appLogger.Error("Low stock sweep failed", zap.Error(err))
				}
				if err := alertUC.SweepExpiring(ctx); err != nil {
					appLogger.Error("Expiration sweep failed", zap.Error(err))
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				orders, err := repackUC.ListReadyForProcessing(ctx, "")
				if err != nil {
					appLogger.Error("Ready repack order scan failed", zap.Error(err))
					continue
				}
				if len(orders) > 0 {
					appLogger.Info("Repack orders ready for processing", zap.Int("count", len(orders)))
				}
			}
		}
	}()

	go func() {
		interval := time.Duration(cfg.Sampling.ApprovalSweepIntervalMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := samplingUC.ExpireStale(ctx)
				if err != nil {
					appLogger.Error("Approval expiry sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					appLogger.Info("Expired stale sampling approvals", zap.Int("count", n))
				}
			}
		}
	}()

	appLogger.Info("Inventory service started", zap.String("env", cfg.Server.AppEnv))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()
	appLogger.Info("Service stopped")
}
