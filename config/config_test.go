package config

import (
	"testing"
	"time"

	"github.com/driftnet-io/marketfeed/internal/dialect"
)

func TestDefaultConfigProvidesAllVenues(t *testing.T) {
	cfg := Default()
	if cfg.Environment != EnvProd {
		t.Fatalf("expected default environment prod, got %s", cfg.Environment)
	}

	binance, ok := cfg.Exchange(ExchangeBinance)
	if !ok {
		t.Fatalf("expected binance exchange settings")
	}
	if binance.REST[BinanceRESTSurfaceSpot] == "" || binance.Websocket.PublicURL == "" {
		t.Fatalf("expected default binance REST and websocket URLs")
	}

	okx, ok := cfg.Exchange(ExchangeOKX)
	if !ok {
		t.Fatalf("expected okx exchange settings")
	}
	if okx.Websocket.PublicURL == "" || okx.Websocket.PrivateURL == "" {
		t.Fatalf("expected default okx websocket URLs")
	}

	bitmex, ok := cfg.Exchange(ExchangeBitmex)
	if !ok {
		t.Fatalf("expected bitmex exchange settings")
	}
	if bitmex.Websocket.PublicURL != bitmex.Websocket.PrivateURL {
		t.Fatalf("expected bitmex to multiplex public/private over one socket")
	}

	defaultBinance, ok := DefaultExchangeSettings(ExchangeBinance)
	if !ok {
		t.Fatalf("expected default exchange settings to resolve")
	}
	defaultBinance.REST[BinanceRESTSurfaceSpot] = "mutated"
	if cfgDefault, _ := DefaultExchangeSettings(ExchangeBinance); cfgDefault.REST[BinanceRESTSurfaceSpot] == "mutated" {
		t.Fatalf("expected DefaultExchangeSettings to return a clone")
	}
}

func TestApplyOptionsCloneAndMutate(t *testing.T) {
	base := Default()
	timeout := 25 * time.Second

	applied := Apply(base,
		WithEnvironment(EnvDev),
		WithExchangeRESTEndpoint("BINANCE", BinanceRESTSurfaceSpot, "https://override"),
		WithExchangeHTTPTimeout("binance", timeout),
		WithBinanceAPI("key", "secret"),
		WithOKXAPI("okkey", "oksecret", "okpass"),
		WithBitmexAPI("bmkey", "bmsecret"),
		WithExchangeBackoff("okx", 45*time.Second),
		WithExchangeBookDepth("bitmex", 50),
		WithExchangePrivate("binance", true),
	)

	if applied.Environment != EnvDev {
		t.Fatalf("expected environment override, got %s", applied.Environment)
	}
	if base.Environment == EnvDev {
		t.Fatalf("expected Apply not to mutate the base settings")
	}

	bin, _ := applied.Exchange(ExchangeBinance)
	if bin.REST[BinanceRESTSurfaceSpot] != "https://override" {
		t.Fatalf("expected REST endpoint override, got %s", bin.REST[BinanceRESTSurfaceSpot])
	}
	if bin.HTTPTimeout != timeout {
		t.Fatalf("expected timeout override")
	}
	if bin.Credentials.APIKey != "key" || bin.Credentials.APISecret != "secret" {
		t.Fatalf("expected binance credential overrides")
	}
	if !bin.Private {
		t.Fatalf("expected binance session marked private")
	}

	okx, _ := applied.Exchange(ExchangeOKX)
	if okx.Credentials.Passphrase != "okpass" {
		t.Fatalf("expected okx passphrase override")
	}
	if okx.MaxBackoff != 45*time.Second {
		t.Fatalf("expected okx backoff override")
	}

	bitmex, _ := applied.Exchange(ExchangeBitmex)
	if bitmex.Credentials.APIKey != "bmkey" {
		t.Fatalf("expected bitmex credential override")
	}
	if bitmex.BookDepth != 50 {
		t.Fatalf("expected bitmex book depth override, got %d", bitmex.BookDepth)
	}
}

func TestWithExchangeSubscriptionsWiresDialectConfig(t *testing.T) {
	subs := dialect.SubscriptionConfig{
		Channels: []string{"books", "trades"},
		Pairs:    []string{"BTC-USD"},
	}
	applied := Apply(Default(), WithExchangeSubscriptions("okx", subs))

	okx, ok := applied.Exchange(ExchangeOKX)
	if !ok {
		t.Fatalf("expected okx exchange settings")
	}
	if len(okx.Subscriptions.Channels) != 2 || len(okx.Subscriptions.Pairs) != 1 {
		t.Fatalf("expected subscription config to carry through, got %+v", okx.Subscriptions)
	}
}

func TestUnknownExchangeReturnsEmptySettings(t *testing.T) {
	cfg := Default()
	_, ok := cfg.Exchange("deribit")
	if ok {
		t.Fatalf("expected unknown exchange to report false")
	}
}
