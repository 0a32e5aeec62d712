// Package main runs the trade slip service:
// - HTTP API over one engine-owned slip
// - Pool and balance refresh on every new head (WebSocket) and on a timer
// - Submission events to Kafka, quote history to ClickHouse when configured
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeslip/internal/api"
	"tradeslip/internal/cache"
	"tradeslip/internal/chain"
	"tradeslip/internal/config"
	"tradeslip/internal/domain"
	"tradeslip/internal/engine"
	"tradeslip/internal/events"
	"tradeslip/internal/logging"
	"tradeslip/internal/snapshot"
	"tradeslip/internal/storage/stores"
)

const brokerWaitTimeout = 15 * time.Second

// Server holds the components of the service.
type Server struct {
	cfg    config.Config
	logger *slog.Logger

	stores    *stores.Set
	rpc       *chain.HTTPClient
	poolCache *cache.PoolCache
	publisher events.Publisher
	engine    *engine.Engine
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	configPath := flag.String("config", os.Getenv("TRADESLIP_CONFIG"), "Path to YAML config file")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Node JSON-RPC HTTP endpoint (overrides config)")
	wsEndpoint := flag.String("ws-endpoint", "", "Node WebSocket endpoint, empty = timer refresh only (overrides config)")
	backend := flag.String("storage", "", "Storage backend: memory, sqlite or postgres (overrides config)")
	slipID := flag.String("slip-id", "", "Slip to load and serve (overrides config)")
	account := flag.String("account", "", "Trader account, SS58 (overrides config)")
	refreshInterval := flag.Duration("refresh-interval", 0, "Timer refresh interval, 0 = heads only (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		os.Exit(1)
	}

	// Explicitly set flags win over file and env values
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddress = *listen
		case "rpc-endpoint":
			cfg.Chain.RPCEndpoint = *rpcEndpoint
		case "ws-endpoint":
			cfg.Chain.WSEndpoint = *wsEndpoint
		case "storage":
			cfg.Storage.Backend = *backend
		case "slip-id":
			cfg.Slip.ID = *slipID
		case "account":
			cfg.Slip.Account = *account
		case "refresh-interval":
			cfg.Slip.RefreshInterval = *refreshInterval
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()

		// Second signal or a stuck shutdown forces exit
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", "signal", sig.String())
			os.Exit(1)
		case <-time.After(cfg.ShutdownTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", "timeout", cfg.ShutdownTimeout)
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// newServer opens stores and clients and loads the slip.
func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *Server, err error) {
	s := &Server{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.stores, err = stores.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	s.rpc = chain.NewHTTPClient(cfg.Chain.RPCEndpoint,
		chain.WithTimeout(cfg.Chain.Timeout),
		chain.WithMaxRetries(cfg.Chain.MaxRetries),
		chain.WithRateLimit(cfg.Chain.RateLimit, cfg.Chain.RateBurst),
	)

	var source snapshot.Source = s.rpc
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.poolCache = cache.NewPoolCache(s.rpc, client, cache.PoolCacheOptions{
			TTL:    cfg.Redis.TTL,
			Prefix: cfg.Redis.Prefix,
			Logger: logger,
		})
		source = s.poolCache
		logger.Info("pool cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		s.publisher = publisher

		waitCtx, cancel := context.WithTimeout(ctx, brokerWaitTimeout)
		err = events.WaitForBroker(waitCtx, cfg.Kafka.Brokers)
		if err == nil {
			err = events.EnsureTopic(waitCtx, cfg.Kafka.Brokers, cfg.Kafka.Topic, 1)
		}
		cancel()
		if err != nil {
			logger.Warn("kafka broker not ready", "topic", cfg.Kafka.Topic, "error", err)
		}
		logger.Info("submission events enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	var account domain.Account
	if cfg.Slip.Account != "" {
		account, err = domain.ParseAccount(cfg.Slip.Account)
		if err != nil {
			return nil, fmt.Errorf("trader account: %w", err)
		}
	}
	slippage, err := cfg.Slippage()
	if err != nil {
		return nil, err
	}

	s.engine, err = engine.New(ctx, engine.Options{
		SlipID:          cfg.Slip.ID,
		Account:         account,
		DefaultSlippage: &slippage,
		Source:          source,
		Submitter:       s.rpc,
		SlipStore:       s.stores.Slips,
		QuoteStore:      s.stores.Quotes,
		SubmissionStore: s.stores.Submissions,
		Publisher:       s.publisher,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("load slip: %w", err)
	}
	return s, nil
}

// Run serves HTTP and keeps the slip refreshed until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server",
		"listen", s.cfg.ListenAddress,
		"slip_id", s.engine.SlipID(),
		"storage", s.cfg.Storage.Backend)

	if err := s.engine.Refresh(ctx); err != nil {
		s.logger.Warn("initial refresh failed", "error", err)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := s.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("watch: %w", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           api.NewServer(s.engine, s.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "error", err)
	}
	return runErr
}

// watch subscribes to new heads when a WebSocket endpoint is configured and refreshes
// the engine on each head and on the refresh timer.
func (s *Server) watch(ctx context.Context) error {
	var heads <-chan chain.Head
	if s.cfg.Chain.WSEndpoint != "" {
		wsCfg := chain.DefaultWSConfig()
		wsCfg.Logger = s.logger
		ws, err := chain.NewWSClient(ctx, s.cfg.Chain.WSEndpoint, &wsCfg)
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()

		heads, err = ws.SubscribeNewHeads(ctx)
		if err != nil {
			return fmt.Errorf("subscribe new heads: %w", err)
		}
		s.logger.Info("subscribed to new heads", "endpoint", s.cfg.Chain.WSEndpoint)
	}
	return s.engine.Watch(ctx, heads, s.cfg.Slip.RefreshInterval)
}

// Close releases clients and stores.
func (s *Server) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("close publisher failed", "error", err)
		}
	}
	if s.poolCache != nil {
		if err := s.poolCache.Close(); err != nil {
			s.logger.Warn("close pool cache failed", "error", err)
		}
	}
	if s.stores != nil {
		s.stores.Close()
	}
}
