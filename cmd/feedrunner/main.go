// Command feedrunner launches the market-data feed: one supervised session
// per configured venue, dispatching normalized events to the registered
// sinks. Grounded on cmd/gateway/main.go's signal-context + graceful
// shutdown shape, narrowed to this feed's much smaller dependency graph
// (config -> registry -> session -> router -> sinks, no HTTP control plane,
// no lambda manager, no event bus).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftnet-io/marketfeed/config"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/feed"
	"github.com/driftnet-io/marketfeed/internal/router"
	"github.com/driftnet-io/marketfeed/internal/schema"
	"github.com/driftnet-io/marketfeed/internal/session"
	"github.com/driftnet-io/marketfeed/internal/signer"
	"github.com/driftnet-io/marketfeed/internal/sink"
	"github.com/driftnet-io/marketfeed/internal/telemetry"
	"github.com/driftnet-io/marketfeed/internal/venue/binance"
	"github.com/driftnet-io/marketfeed/internal/venue/bitmex"
	"github.com/driftnet-io/marketfeed/internal/venue/okx"
)

const defaultConfigPath = "config/feed.yaml"

func main() {
	configPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	_, shutdownTelemetry, err := telemetry.Init(ctx, "marketfeed-feedrunner")
	if err != nil {
		logger.Error("init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	registry := buildRegistry()
	r := router.New()
	r.Register(schema.EventTypeTrade, router.Filter{}, sink.NewLoggingSink(logger))
	r.Register(schema.EventTypeTicker, router.Filter{}, sink.NewLoggingSink(logger))
	r.Register(schema.EventTypeBookSnapshot, router.Filter{}, sink.NewLoggingSink(logger))
	r.Register(schema.EventTypeBookDelta, router.Filter{}, sink.NewLoggingSink(logger))
	r.Register(schema.EventTypeOrder, router.Filter{}, sink.NewLoggingSink(logger))
	r.Register(schema.EventTypeFunding, router.Filter{}, sink.NewLoggingSink(logger))
	r.Register(schema.EventTypePosition, router.Filter{}, sink.NewLoggingSink(logger))
	r.Register(schema.EventTypeInstrumentUpdate, router.Filter{}, sink.NewLoggingSink(logger))

	handler := feed.New(logger)
	if err := addFeeds(handler, registry, r, cfg, logger); err != nil {
		logger.Error("add feeds", "error", err)
		os.Exit(1)
	}

	handler.Run(ctx)
	logger.Info("feedrunner started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping sessions")
	handler.Stop()
	logger.Info("shutdown complete")
}

func parseFlags() string {
	path := flag.String("config", defaultConfigPath, "path to feed configuration YAML file")
	flag.Parse()
	return *path
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadConfig reads the feed's YAML settings tree, falling back to defaults
// if no file exists at path (a local run with no subscriptions configured
// would otherwise be unable to start at all).
func loadConfig(path string, logger *slog.Logger) (config.Settings, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("config file not found, using defaults", "path", path)
			return config.Default(), nil
		}
		return config.Settings{}, err
	}
	return cfg, nil
}

// buildRegistry registers every venue's AdapterFactory (spec §4.6).
func buildRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.Register(config.ExchangeBinance, func(cfg config.FeedConfig) (dialect.Dialect, config.NativeSymbolFunc, error) {
		creds := signer.Credentials{APIKey: cfg.Credentials.APIKey, APISecret: cfg.Credentials.APISecret}
		d := binance.New(binance.MarketSpot, creds, cfg.HTTPTimeout, cfg.RESTRequestsPerSecond, cfg.BookDepth)
		return d, binance.NativeSymbol, nil
	})

	reg.Register(config.ExchangeOKX, func(cfg config.FeedConfig) (dialect.Dialect, config.NativeSymbolFunc, error) {
		creds := signer.Credentials{
			APIKey:     cfg.Credentials.APIKey,
			APISecret:  cfg.Credentials.APISecret,
			Passphrase: cfg.Credentials.Passphrase,
		}
		d := okx.New(creds, cfg.HTTPTimeout, cfg.RESTRequestsPerSecond, cfg.BookDepth)
		return d, okx.NativeSymbol, nil
	})

	reg.Register(config.ExchangeBitmex, func(cfg config.FeedConfig) (dialect.Dialect, config.NativeSymbolFunc, error) {
		creds := signer.Credentials{APIKey: cfg.Credentials.APIKey, APISecret: cfg.Credentials.APISecret}
		// cfg.BookDepth does not apply here: Bitmex's orderBookL2 table has no
		// REST depth/limit parameter, the book is seeded from the partial
		// action over the same socket (see Dialect.NeedsSnapshot).
		d := bitmex.New(creds)
		return d, bitmex.NativeSymbol, nil
	})

	return reg
}

// addFeeds registers one session per configured exchange that carries a
// non-empty subscription config.
func addFeeds(handler *feed.Handler, reg *config.Registry, r *router.Router, cfg config.Settings, logger *slog.Logger) error {
	for exchange, settings := range cfg.Exchanges {
		if len(settings.Subscriptions.Channels) == 0 && len(settings.Subscriptions.ChannelMap) == 0 {
			continue
		}
		d, native, err := reg.Build(string(exchange), settings)
		if err != nil {
			return fmt.Errorf("build adapter for %s: %w", exchange, err)
		}
		maxBackoff := settings.MaxBackoff
		if maxBackoff <= 0 {
			maxBackoff = 30 * time.Second
		}
		sess, err := session.New(session.Config{
			Exchange:      string(exchange),
			Private:       settings.Private,
			Subscriptions: settings.Subscriptions,
			NativeSymbol:  native,
			MaxBackoff:    maxBackoff,
			Logger:        logger.With("exchange", exchange),
		}, d, r)
		if err != nil {
			return fmt.Errorf("construct session for %s: %w", exchange, err)
		}
		handler.AddFeed(sess)
	}
	return nil
}
