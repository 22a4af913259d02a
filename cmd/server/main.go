package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"freightline/cmd/server/config"
	"freightline/internal/bus"
	"freightline/internal/httpapi"
	"freightline/internal/inventory"
	"freightline/internal/observability"
	"freightline/internal/orders"
	"freightline/internal/projector"
	"freightline/internal/realtime"
	"freightline/internal/reliability"
	"freightline/internal/shipping"
	"freightline/internal/status"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	st, err := buildStores(ctx, logger)
	if err != nil {
		return err
	}
	defer st.cleanup()

	stateStore, cleanupState, err := buildStateStore(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanupState()

	busCfg, err := config.LoadBus()
	if err != nil {
		return err
	}
	retryCfg, err := config.LoadRetry()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}

	var (
		msgBus   bus.Bus
		runBus   func(context.Context) error
		closeBus func()
	)
	if len(busCfg.KafkaBrokers) > 0 {
		kb := bus.NewKafkaBus(busCfg.KafkaBrokers, logger, metrics)
		msgBus, runBus, closeBus = kb, kb.Run, func() { kb.Close() }
		logger.Info("using kafka bus", zap.Strings("brokers", busCfg.KafkaBrokers))
	} else {
		opts := []bus.LocalOption{bus.WithMetrics(metrics)}
		if busCfg.Partitions > 0 {
			opts = append(opts, bus.WithPartitions(busCfg.Partitions))
		}
		lb := bus.NewLocalBus(logger, opts...)
		msgBus, closeBus = lb, lb.Close
		logger.Info("using in-process bus")
	}
	defer closeBus()

	inventorySvc := inventory.NewService(st.inventory, logger)
	var checker inventory.Checker
	if url := config.InventoryServiceURL(); url != "" {
		breaker := reliability.NewCircuitBreaker(reliability.CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		})
		checker = inventory.NewHTTPChecker(url, 10*time.Second, breaker)
		logger.Info("using remote inventory ledger", zap.String("url", url))
	} else {
		checker = inventory.NewLocalChecker(inventorySvc)
	}

	intake := orders.NewIntake(st.orders, checker, msgBus, logger)
	engine := shipping.NewEngine(st.shipping, logger, metrics)
	shipConsumer := shipping.NewConsumer(engine, msgBus, logger)
	ledger := status.NewLedger(st.status, logger)
	listener := status.NewListener(ledger, msgBus, logger)

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	proj := projector.NewProjector(stateStore, msgBus, hub, logger)

	router := bus.NewRouter(msgBus, reliability.RetryPolicy{
		MaxAttempts: retryCfg.MaxAttempts,
		BaseDelay:   retryCfg.BaseDelay,
		MaxDelay:    retryCfg.MaxDelay,
	}, logger, metrics)

	group := busCfg.ConsumerGroup
	subscriptions := []struct {
		topic   string
		group   string
		handler bus.Handler
	}{
		{bus.TopicOrderSubmitted, group + "-shipping", router.Wrap(shipConsumer.HandleOrderSubmitted)},
		{bus.TopicUnassignedOrders, group + "-shipping", router.Wrap(shipConsumer.HandleUnassigned)},
		{bus.TopicOrderSubmitted, group + "-status", router.Wrap(listener.HandleOrderSubmitted)},
		{bus.TopicOrderInventoryDLT, group + "-status", router.WrapTerminal(listener.HandleInventoryDLT)},
		{bus.TopicShipmentCreated, group + "-status", router.Wrap(listener.HandleShipmentCreated)},
		{bus.TopicUnassignedOrders, group + "-status", router.Wrap(listener.HandleUnassigned)},
		{bus.DeadLetterTopic(bus.TopicUnassignedOrders), group + "-status", router.WrapTerminal(listener.HandleUnassignedDLT)},
		{bus.TopicOrderStatus, group + "-projector", router.Wrap(proj.HandleOrderStatus)},
	}
	for _, sub := range subscriptions {
		if err := msgBus.Subscribe(sub.topic, sub.group, sub.handler); err != nil {
			return err
		}
	}

	var limiter *reliability.RateLimiter
	if httpCfg.RateLimitBurst > 0 {
		limiter = reliability.NewRateLimiter(httpCfg.RateLimitInterval, httpCfg.RateLimitBurst)
	}

	server := httpapi.NewServer(intake, inventorySvc, ledger, engine, hub, metrics, limiter, logger)
	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpCfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if runBus != nil {
		go func() {
			if err := runBus(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}
