package config

import (
	"testing"

	"github.com/driftnet-io/marketfeed/internal/dialect"
)

func TestRegistryBuildValidatesSubscriptions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ExchangeOKX, func(cfg FeedConfig) (dialect.Dialect, NativeSymbolFunc, error) {
		return nil, func(symbol string) (string, bool) {
			if symbol == "BTC-USD" {
				return "BTC-USDT", true
			}
			return "", false
		}, nil
	})

	cfg, _ := DefaultExchangeSettings(ExchangeOKX)
	cfg.Subscriptions = dialect.SubscriptionConfig{
		Channels: []string{"books"},
		Pairs:    []string{"DOGE-USD"},
	}

	_, _, err := reg.Build("okx", cfg)
	if err == nil {
		t.Fatalf("expected fatal-config error for unresolvable symbol")
	}
}

func TestRegistryBuildUnknownExchange(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Build("deribit", FeedConfig{})
	if err == nil {
		t.Fatalf("expected error for unregistered exchange")
	}
}

func TestValidateRejectsNilResolver(t *testing.T) {
	cfg, _ := DefaultExchangeSettings(ExchangeBinance)
	cfg.Subscriptions = dialect.SubscriptionConfig{Channels: []string{"trades"}, Pairs: []string{"BTC-USDT"}}
	if err := Validate("binance", cfg, nil); err == nil {
		t.Fatalf("expected error for nil resolver")
	}
}
