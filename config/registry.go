package config

import (
	"fmt"
	"sync"

	"github.com/driftnet-io/marketfeed/errs"
	"github.com/driftnet-io/marketfeed/internal/dialect"
)

// FeedConfig is the configuration payload handed to an AdapterFactory: one
// venue's ExchangeSettings (spec §4.6).
type FeedConfig = ExchangeSettings

// NativeSymbolFunc resolves a canonical "BASE-QUOTE" symbol into the form a
// venue's wire protocol expects.
type NativeSymbolFunc func(symbol string) (string, bool)

// AdapterFactory builds a dialect.Dialect and its symbol resolver from one
// venue's FeedConfig (spec §4.6: "AdapterFactory func(config.FeedConfig)
// (dialect.Dialect, error)"). The symbol resolver is returned alongside the
// dialect rather than folded into the Dialect interface, since NativeSymbol
// is a free function per adapter package (internal/venue/*), not a method
// any dialect value exposes.
type AdapterFactory func(FeedConfig) (dialect.Dialect, NativeSymbolFunc, error)

// Registry maps an exchange id to the AdapterFactory that builds its dialect
// (spec §4.6). Grounded on the teacher's provider.Registry
// (internal/app/provider), which maps a provider name to a constructor the
// same way; this Registry narrows that to the feed's single AdapterFactory
// shape since a venue contributes exactly one dialect, not a tree of
// provider capabilities.
type Registry struct {
	mu        sync.RWMutex
	factories map[Exchange]AdapterFactory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Exchange]AdapterFactory)}
}

// Register adds or replaces the factory for exchange.
func (r *Registry) Register(exchange Exchange, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[Exchange(normalizeExchangeName(string(exchange)))] = factory
}

// Build constructs the dialect and symbol resolver for exchange using the
// registered factory, validating the subscription config against the
// resolver before returning (spec §4.6: "Validate checks (channel, symbol)
// pairs against the dialect's declared capabilities... returning a
// fatal-config error synchronously from AddFeed"). Callers pass the returned
// dialect and resolver straight into session.Config.
func (r *Registry) Build(exchange string, cfg FeedConfig) (dialect.Dialect, NativeSymbolFunc, error) {
	key := Exchange(normalizeExchangeName(exchange))
	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, errs.New(exchange, errs.CodeFatalConfig,
			errs.WithCause(fmt.Errorf("no adapter registered for exchange %q", exchange)))
	}

	d, native, err := factory(cfg)
	if err != nil {
		return nil, nil, errs.New(exchange, errs.CodeFatalConfig, errs.WithCause(err))
	}

	if err := Validate(exchange, cfg, native); err != nil {
		return nil, nil, err
	}
	return d, native, nil
}

// Validate resolves cfg.Subscriptions against native and wraps any failure
// (unknown symbol, mixed subscription shapes) as a fatal-config error,
// without constructing a session (spec §4.6, spec §7: "fatal-config").
func Validate(exchange string, cfg FeedConfig, native NativeSymbolFunc) error {
	if native == nil {
		return errs.New(exchange, errs.CodeFatalConfig,
			errs.WithCause(fmt.Errorf("no symbol resolver for exchange %q", exchange)))
	}
	if _, err := cfg.Subscriptions.Resolve(native); err != nil {
		return errs.New(exchange, errs.CodeFatalConfig, errs.WithCause(err))
	}
	return nil
}
