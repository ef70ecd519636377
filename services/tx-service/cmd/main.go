package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/chain"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/command"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/config"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/infrastructure/backend"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/infrastructure/cache"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/infrastructure/events"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/infrastructure/repository"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/reconcile"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/service"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/transport"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/wallet"
	"github.com/soundchain/marketplace-gateway/shared/logging"
	"github.com/soundchain/marketplace-gateway/shared/messaging"
	sharedmetrics "github.com/soundchain/marketplace-gateway/shared/metrics"
	"github.com/soundchain/marketplace-gateway/shared/migration"
	"github.com/soundchain/marketplace-gateway/shared/monitoring"
	"github.com/soundchain/marketplace-gateway/shared/postgres"
	"github.com/soundchain/marketplace-gateway/shared/recovery"
	sharedredis "github.com/soundchain/marketplace-gateway/shared/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(&logging.Config{
		Level:       logging.LogLevel(cfg.Global.Monitoring.LogLevel),
		Service:     cfg.Global.ServiceName,
		Environment: cfg.Global.Environment,
		PrettyLog:   cfg.Global.Environment == "development",
		AddCaller:   true,
	})
	logger := logging.Default()
	logging.ReplaceStandardLog()

	if err := monitoring.InitSentry(&monitoring.SentryConfig{
		DSN:         cfg.Global.Monitoring.SentryDSN,
		Environment: cfg.Global.Monitoring.SentryEnv,
		ServiceName: cfg.Global.ServiceName,
	}); err != nil {
		logger.WithError(err).Warn("sentry init failed")
	}
	defer monitoring.FlushSentry(2 * time.Second)

	m := sharedmetrics.NewMetrics("soundchain", "tx_service")
	recovery.SetPanicCallback(func(recovered interface{}, stack []byte) {
		m.PanicsRecovered.Inc()
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	migrator, err := migration.NewMigrator(&migration.Config{
		DatabaseURL: cfg.DatabaseURL(),
		Service:     cfg.Global.ServiceName,
		SchemaName:  "tx_service",
		Migrations:  repository.Migrations,
	})
	if err != nil {
		logger.WithError(err).Fatal("migrator init failed")
	}
	if err := migrator.Migrate(); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}
	migrator.Close()

	pg, err := postgres.NewPostgres(cfg.Postgres())
	if err != nil {
		logger.WithError(err).Fatal("postgres connect failed")
	}
	defer pg.Close()

	redisClient, err := sharedredis.NewRedis(cfg.Redis())
	if err != nil {
		logger.WithError(err).Fatal("redis connect failed")
	}
	defer redisClient.Close()

	broker, err := messaging.NewRabbitMQ(cfg.RabbitMQ())
	if err != nil {
		logger.WithError(err).Fatal("rabbitmq connect failed")
	}
	defer broker.Close()

	if err := broker.SetupInfrastructure(
		[]messaging.ExchangeConfig{
			{Name: broker.GetExchange(), Type: "topic", Durable: true},
		},
		nil, nil,
	); err != nil {
		logger.WithError(err).Fatal("rabbitmq setup failed")
	}

	node, err := chain.NewClient(ctx, cfg.Chain(), logger)
	if err != nil {
		logger.WithError(err).Fatal("chain client connect failed")
	}
	defer node.Close()

	encoder, err := chain.NewEncoder(cfg.AddressBook())
	if err != nil {
		logger.WithError(err).Fatal("encoder init failed")
	}

	backendClient := backend.NewClient(cfg.Backend(), logger)
	statusCache := cache.NewStatusCache(redisClient, cfg.Global.Cache.StatusTTL, m)
	repo := repository.NewActionRepo(pg)
	publisher := events.NewPublisher(broker, cfg.Events(), m, logger)
	registry := wallet.NewRegistry(backendClient, logger)

	reconciler := reconcile.NewReconciler(backendClient, statusCache, m, cfg.Reconcile(), logger)
	if err := reconciler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("reconciler start failed")
	}
	defer reconciler.Stop()

	gateway := service.NewGatewayService(service.Deps{
		Registry:   registry,
		Repo:       repo,
		Cache:      statusCache,
		Events:     publisher,
		Backend:    backendClient,
		Reconciler: reconciler,
		Command: command.Deps{
			Encoder:       encoder,
			Oracle:        node,
			Waiter:        node,
			Book:          cfg.AddressBook(),
			Gas:           cfg.Gas(),
			Logger:        logger,
			OnGasFallback: m.GasFallbacks.Inc,
		},
		Metrics: m,
		Logger:  logger,
	})
	balances := func(ctx context.Context, address string) (domain.Balances, error) {
		addr := common.HexToAddress(address)
		native, err := node.NativeBalance(ctx, addr)
		if err != nil {
			return domain.Balances{}, err
		}
		token, err := node.TokenBalance(ctx, addr)
		if err != nil {
			return domain.Balances{}, err
		}
		return domain.Balances{Native: native, Token: token}, nil
	}

	api := transport.NewHandler(transport.Deps{
		Gateway:       gateway,
		Wallets:       registry,
		Custodial:     cfg.Custodial(),
		WalletConnect: cfg.WalletConnect(),
		Balances:      balances,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.Global.Monitoring.MetricsPath, sharedmetrics.Handler())
	api.Register(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if !redisClient.IsConnected(r.Context()) {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Global.Monitoring.MetricsPort),
		Handler: mux,
	}
	go func() {
		logger.WithField("addr", srv.Addr).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server failed")
		}
	}()

	logger.
		WithField("chain_id", cfg.Global.Blockchain.ChainID).
		WithField("poll_interval", cfg.Global.Blockchain.PollInterval.String()).
		Info("transaction gateway started")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown failed")
	}
}
