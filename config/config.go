// Package config centralises runtime configuration for the feed: per-venue
// REST/WebSocket endpoints, credentials, and session tuning. The core never
// reads environment variables itself (ambient config is the caller's job);
// this package only builds and mutates Settings values the caller supplies or
// constructs from whatever source it chooses (spec §6: "the core does not
// read environment variables itself, config is handed to it").
package config

import (
	"strings"
	"time"

	"github.com/driftnet-io/marketfeed/internal/dialect"
)

// Environment identifies the runtime environment where the feed operates.
type Environment string

// Exchange names a supported exchange integration.
type Exchange string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

const (
	// ExchangeBinance represents the Binance integration key.
	ExchangeBinance Exchange = "binance"
	// ExchangeOKX represents the OKX integration key.
	ExchangeOKX Exchange = "okx"
	// ExchangeBitmex represents the Bitmex integration key.
	ExchangeBitmex Exchange = "bitmex"

	// BinanceRESTSurfaceSpot identifies the spot REST surface.
	BinanceRESTSurfaceSpot string = "spot"
	// BinanceRESTSurfaceLinear identifies the linear futures REST surface.
	BinanceRESTSurfaceLinear string = "linear"
	// BinanceRESTSurfaceInverse identifies the inverse futures REST surface.
	BinanceRESTSurfaceInverse string = "inverse"
)

// Credentials captures API credentials used for authenticated requests.
// Passphrase is only consumed by OKX-family dialects.
type Credentials struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase,omitempty"`
}

// WebsocketSettings configures websocket endpoints per exchange.
type WebsocketSettings struct {
	PublicURL  string `yaml:"public_url"`
	PrivateURL string `yaml:"private_url"`
}

// ExchangeSettings aggregates transport, credential, and session
// configuration for one venue. Subscriptions and Private feed directly into
// session.Config; Credentials, HTTPTimeout, RESTRequestsPerSecond and
// BookDepth feed the venue's dialect constructor. The dialects use their own
// built-in REST and websocket URLs, so REST and Websocket here are not read
// by them.
type ExchangeSettings struct {
	REST                  map[string]string          `yaml:"rest"`
	Websocket             WebsocketSettings           `yaml:"websocket"`
	Credentials           Credentials                 `yaml:"credentials"`
	HTTPTimeout           time.Duration               `yaml:"http_timeout"`
	HandshakeTimeout      time.Duration               `yaml:"handshake_timeout"`
	SymbolRefreshInterval time.Duration               `yaml:"symbol_refresh_interval"`
	RESTRequestsPerSecond float64                     `yaml:"rest_requests_per_second"`
	MaxBackoff            time.Duration               `yaml:"max_backoff"`
	BookDepth             int                         `yaml:"book_depth"`
	Private               bool                        `yaml:"private"`
	Subscriptions         dialect.SubscriptionConfig  `yaml:"subscriptions"`
}

// Settings contains the full configuration tree for one feed process,
// loaded from whatever defaults and overrides the caller assembles.
type Settings struct {
	Environment Environment                 `yaml:"environment"`
	Exchanges   map[Exchange]ExchangeSettings `yaml:"exchanges"`
}

// Default returns baseline configuration for every supported venue: real
// endpoints, zero credentials, conservative timeouts. Callers layer
// Apply(Default(), opts...) to fill in credentials and subscriptions.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Exchanges: map[Exchange]ExchangeSettings{
			ExchangeBinance: {
				REST: map[string]string{
					BinanceRESTSurfaceSpot:    "https://api.binance.com",
					BinanceRESTSurfaceLinear:  "https://fapi.binance.com",
					BinanceRESTSurfaceInverse: "https://dapi.binance.com",
				},
				Websocket: WebsocketSettings{
					PublicURL:  "wss://stream.binance.com:9443/stream",
					PrivateURL: "wss://stream.binance.com:9443/ws",
				},
				HTTPTimeout:           10 * time.Second,
				HandshakeTimeout:      10 * time.Second,
				SymbolRefreshInterval: 0,
				RESTRequestsPerSecond: 10,
				MaxBackoff:            30 * time.Second,
				BookDepth:             1000,
			},
			ExchangeOKX: {
				REST: map[string]string{
					"spot": "https://www.okx.com",
				},
				Websocket: WebsocketSettings{
					PublicURL:  "wss://ws.okx.com:8443/ws/v5/public",
					PrivateURL: "wss://ws.okx.com:8443/ws/v5/private",
				},
				HTTPTimeout:           10 * time.Second,
				HandshakeTimeout:      10 * time.Second,
				RESTRequestsPerSecond: 5,
				MaxBackoff:            30 * time.Second,
				BookDepth:             200,
			},
			ExchangeBitmex: {
				REST: map[string]string{
					"spot": "https://www.bitmex.com",
				},
				Websocket: WebsocketSettings{
					PublicURL:  "wss://www.bitmex.com/realtime",
					PrivateURL: "wss://www.bitmex.com/realtime",
				},
				HTTPTimeout:      10 * time.Second,
				HandshakeTimeout: 10 * time.Second,
				MaxBackoff:       30 * time.Second,
				BookDepth:        25,
			},
		},
	}
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Exchange returns the exchange-specific configuration if present.
func (s Settings) Exchange(name Exchange) (ExchangeSettings, bool) {
	if len(s.Exchanges) == 0 {
		return emptyExchangeSettings(), false
	}
	key := Exchange(normalizeExchangeName(string(name)))
	cfg, ok := s.Exchanges[key]
	if !ok {
		return emptyExchangeSettings(), false
	}
	return cloneExchangeSettings(cfg), true
}

// DefaultExchangeSettings exposes the default configuration snapshot for an exchange.
func DefaultExchangeSettings(name Exchange) (ExchangeSettings, bool) {
	def := Default()
	cfg, ok := def.Exchanges[Exchange(normalizeExchangeName(string(name)))]
	if !ok {
		return emptyExchangeSettings(), false
	}
	return cloneExchangeSettings(cfg), true
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithExchangeRESTEndpoint overrides the REST endpoint for the given exchange surface.
func WithExchangeRESTEndpoint(exchange, surface, baseURL string) Option {
	surface = strings.TrimSpace(surface)
	baseURL = strings.TrimSpace(baseURL)
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		if surface == "" || baseURL == "" {
			return
		}
		es.REST[surface] = baseURL
	})
}

// WithExchangeWebsocketEndpoints overrides websocket endpoints and handshake timeout.
func WithExchangeWebsocketEndpoints(exchange, public, private string, handshake time.Duration) Option {
	public = strings.TrimSpace(public)
	private = strings.TrimSpace(private)
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		if public != "" {
			es.Websocket.PublicURL = public
		}
		if private != "" {
			es.Websocket.PrivateURL = private
		}
		if handshake > 0 {
			es.HandshakeTimeout = handshake
		}
	})
}

// WithExchangeHTTPTimeout overrides the HTTP timeout for the given exchange.
func WithExchangeHTTPTimeout(exchange string, timeout time.Duration) Option {
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		if timeout > 0 {
			es.HTTPTimeout = timeout
		}
	})
}

// WithExchangeCredentials overrides the API credentials for the given exchange.
func WithExchangeCredentials(exchange, key, secret, passphrase string) Option {
	key = strings.TrimSpace(key)
	secret = strings.TrimSpace(secret)
	passphrase = strings.TrimSpace(passphrase)
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		if key != "" {
			es.Credentials.APIKey = key
		}
		if secret != "" {
			es.Credentials.APISecret = secret
		}
		if passphrase != "" {
			es.Credentials.Passphrase = passphrase
		}
	})
}

// WithExchangeBackoff overrides the max reconnect backoff for the given exchange.
func WithExchangeBackoff(exchange string, maxBackoff time.Duration) Option {
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		if maxBackoff > 0 {
			es.MaxBackoff = maxBackoff
		}
	})
}

// WithExchangeBookDepth overrides the order-book depth requested for the
// given exchange's REST book snapshots.
func WithExchangeBookDepth(exchange string, depth int) Option {
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		if depth > 0 {
			es.BookDepth = depth
		}
	})
}

// WithExchangePrivate marks whether the exchange session carries
// authenticated channels (spec §4.2 Authenticate).
func WithExchangePrivate(exchange string, private bool) Option {
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		es.Private = private
	})
}

// WithExchangeSubscriptions sets the channel/symbol subscription config for
// the given exchange (spec §3's dual Cartesian/explicit-map form).
func WithExchangeSubscriptions(exchange string, subs dialect.SubscriptionConfig) Option {
	return mutateExchangeOption(exchange, func(es *ExchangeSettings) {
		es.Subscriptions = subs
	})
}

// WithBinanceRESTEndpoints overrides the REST base URLs for Binance surfaces.
func WithBinanceRESTEndpoints(spot, linear, inverse string) Option {
	spot = strings.TrimSpace(spot)
	linear = strings.TrimSpace(linear)
	inverse = strings.TrimSpace(inverse)
	return mutateExchangeOption(string(ExchangeBinance), func(es *ExchangeSettings) {
		if spot != "" {
			es.REST[BinanceRESTSurfaceSpot] = spot
		}
		if linear != "" {
			es.REST[BinanceRESTSurfaceLinear] = linear
		}
		if inverse != "" {
			es.REST[BinanceRESTSurfaceInverse] = inverse
		}
	})
}

// WithBinanceWebsocketEndpoints overrides Binance websocket endpoints and handshake timeout.
func WithBinanceWebsocketEndpoints(public, private string, handshake time.Duration) Option {
	return WithExchangeWebsocketEndpoints(string(ExchangeBinance), public, private, handshake)
}

// WithBinanceHTTPTimeout overrides the HTTP timeout for Binance REST calls.
func WithBinanceHTTPTimeout(timeout time.Duration) Option {
	return WithExchangeHTTPTimeout(string(ExchangeBinance), timeout)
}

// WithBinanceAPI configures Binance API credentials.
func WithBinanceAPI(key, secret string) Option {
	return WithExchangeCredentials(string(ExchangeBinance), key, secret, "")
}

// WithBinanceSymbolRefreshInterval sets how frequently Binance symbols are refreshed.
func WithBinanceSymbolRefreshInterval(interval time.Duration) Option {
	return mutateExchangeOption(string(ExchangeBinance), func(es *ExchangeSettings) {
		es.SymbolRefreshInterval = interval
	})
}

// WithOKXAPI configures OKX API credentials, including the passphrase OKX's
// login frame requires (spec §4.2: signer.OKXLoginMessage).
func WithOKXAPI(key, secret, passphrase string) Option {
	return WithExchangeCredentials(string(ExchangeOKX), key, secret, passphrase)
}

// WithBitmexAPI configures Bitmex API credentials.
func WithBitmexAPI(key, secret string) Option {
	return WithExchangeCredentials(string(ExchangeBitmex), key, secret, "")
}

func mutateExchangeOption(exchange string, fn func(*ExchangeSettings)) Option {
	key := Exchange(normalizeExchangeName(exchange))
	if string(key) == "" || fn == nil {
		return func(*Settings) {}
	}
	return func(s *Settings) {
		if s.Exchanges == nil {
			s.Exchanges = make(map[Exchange]ExchangeSettings)
		}
		cfg, ok := s.Exchanges[key]
		if !ok {
			cfg = emptyExchangeSettings()
		}
		cfg = cloneExchangeSettings(cfg)
		fn(&cfg)
		s.Exchanges[key] = cfg
	}
}

func (s Settings) clone() Settings {
	clone := Settings{
		Environment: s.Environment,
		Exchanges:   cloneExchangeSettingsMap(s.Exchanges),
	}
	return clone
}

func cloneExchangeSettingsMap(src map[Exchange]ExchangeSettings) map[Exchange]ExchangeSettings {
	if len(src) == 0 {
		return make(map[Exchange]ExchangeSettings)
	}
	out := make(map[Exchange]ExchangeSettings, len(src))
	for k, v := range src {
		out[k] = cloneExchangeSettings(v)
	}
	return out
}

func cloneExchangeSettings(cfg ExchangeSettings) ExchangeSettings {
	out := cfg
	if cfg.REST != nil {
		out.REST = make(map[string]string, len(cfg.REST))
		for k, v := range cfg.REST {
			out.REST[k] = v
		}
	} else {
		out.REST = make(map[string]string)
	}
	return out
}

func emptyExchangeSettings() ExchangeSettings {
	return ExchangeSettings{
		REST: make(map[string]string),
		Websocket: WebsocketSettings{
			PublicURL:  "",
			PrivateURL: "",
		},
		Credentials:           Credentials{},
		HTTPTimeout:           0,
		HandshakeTimeout:      0,
		SymbolRefreshInterval: 0,
		RESTRequestsPerSecond: 0,
		MaxBackoff:            0,
		BookDepth:             0,
	}
}

func normalizeExchangeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
