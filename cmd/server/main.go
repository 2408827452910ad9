package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/audit"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/config"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/handler"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/provider"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/pub"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/repository/memory"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/router"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/scheduler"
	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/usecase"
	"github.com/phu-boop/Freelance-Marketplace-sub002/pkg/id"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger, err := newLogger(os.Getenv("ENVIRONMENT"))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting ledger service")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Server.StorageDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var store repository.Store
	switch cfg.Server.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage, balances are lost on restart")
		store = memory.NewStore()
	default:
		pool, err := config.ConnectDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := config.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		store = repository.NewPostgresStore(pool)
	}

	// Redis: idempotency cache, fee overrides and ledger events
	rdb := pub.NewRedisClient([]string{cfg.Redis.Addr()}, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, cache lookups will fall back to storage", zap.Error(err))
	}
	cache := pub.NewCache(rdb)
	events := pub.NewLedgerEventPublisher(rdb, logger)

	// Audit stream
	var stream audit.MessageWriter
	if len(cfg.Kafka.Brokers) > 0 {
		w := &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
			Topic:                  cfg.Kafka.AuditTopic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		defer w.Close()
		stream = w
		logger.Info("audit stream enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.AuditTopic))
	}
	recorder := audit.NewRecorder(store, stream, cfg.Audit.ServiceName, cfg.Audit.Secret, logger)

	// Payout rail
	var payouts provider.PayoutProvider
	if cfg.Payout.BaseURL != "" {
		payouts = provider.NewHTTPProvider(cfg.Payout.BaseURL, cfg.Payout.APIKey, cfg.Payout.Timeout, logger)
	} else {
		logger.Warn("PAYOUT_BASE_URL not set, using sandbox payout provider")
		payouts = provider.NewSandboxProvider(logger)
	}

	numbers, err := id.NewSnowflake(1)
	if err != nil {
		logger.Fatal("failed to initialize id generator", zap.Error(err))
	}

	// Usecases
	ledger := usecase.NewLedger(store, cfg.Ledger, recorder, events, cache, time.Now, logger)
	fees := usecase.NewCachedFeeSchedule(cache, cfg.Ledger.PlatformFeePercent, logger)
	taxes := usecase.NewStoreTaxTable(store, cache, cfg.Ledger.FeeRuleCacheTTL, logger)

	invoiceUC := usecase.NewInvoiceUsecase(store, numbers, logger)
	engine := usecase.NewSettlementEngine(ledger, invoiceUC)
	walletUC := usecase.NewWalletUsecase(ledger, payouts)
	methodUC := usecase.NewWithdrawalMethodUsecase(ledger)
	transferUC := usecase.NewTransferUsecase(ledger, engine, fees, taxes)
	payrollUC := usecase.NewPayrollUsecase(ledger, engine, taxes)
	subscriptionUC := usecase.NewSubscriptionUsecase(ledger)
	reversalUC := usecase.NewReversalUsecase(ledger)
	escrowUC := usecase.NewEscrowUsecase(ledger, engine)

	if err := usecase.NewSeeder(ledger).Seed(ctx); err != nil {
		logger.Fatal("failed to seed system wallets", zap.Error(err))
	}

	// Handlers
	r := router.SetupRoutes(router.Handlers{
		Wallet:   handler.NewWalletHandler(walletUC, methodUC, logger),
		Methods:  handler.NewWithdrawalMethodHandler(methodUC, logger),
		Transfer: handler.NewTransferHandler(transferUC, invoiceUC, logger),
		Payroll:  handler.NewPayrollHandler(payrollUC, logger),
		Billing:  handler.NewBillingHandler(subscriptionUC, reversalUC, logger),
		Escrow:   handler.NewEscrowHandler(escrowUC, logger),
		Admin:    handler.NewAdminHandler(fees, taxes, recorder, logger),
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(store, walletUC, payrollUC, subscriptionUC, engine, scheduler.Options{
			Owner:   nodeName(),
			LockTTL: cfg.Scheduler.LockTTL,
			Weekday: cfg.Ledger.AutoWithdrawalWeekday,
		}, logger)
		runner := scheduler.NewRunner(sched, cfg.Scheduler, time.Now, logger)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	} else {
		logger.Info("scheduler disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	logger.Info("ledger service started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// nodeName identifies this process as a job lock holder.
func nodeName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ledger"
	}
	return host + "-" + id.New()
}
