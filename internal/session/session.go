// Package session implements the generic stream-session state machine
// (spec §4.2): connect, authenticate, subscribe, snapshot, stream, keepalive,
// reconnect. It is parameterized entirely by a dialect.Dialect so the same
// state machine drives every exchange (spec §9 Design Notes: composition
// over mixin inheritance). Grounded on
// infra/adapters/binance/websocket_manager.go's connect loop and
// infra/adapters/okx/ws_manager.go's backoff-driven reconnect.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/shopspring/decimal"

	"github.com/driftnet-io/marketfeed/errs"
	"github.com/driftnet-io/marketfeed/internal/book"
	"github.com/driftnet-io/marketfeed/internal/dialect"
	"github.com/driftnet-io/marketfeed/internal/restutil"
	"github.com/driftnet-io/marketfeed/internal/schema"
)

// EventEmitter is the sink-facing surface a Session delivers normalized
// events to; internal/router.Router satisfies this (accept an interface,
// keep session decoupled from the router's concrete type).
type EventEmitter interface {
	Emit(ctx context.Context, event schema.Event) error
}

// Config parameterizes one Session instance.
type Config struct {
	Exchange      string
	Private       bool // whether this session carries authenticated channels
	Subscriptions dialect.SubscriptionConfig
	NativeSymbol  func(symbol string) (string, bool)
	MaxBackoff    time.Duration // default 30s, matches teacher's binanceMaxReconnectInterval
	Logger        *slog.Logger
}

// bookState is the per-symbol book-engine slice a session owns exclusively
// (spec §3 Ownership: "the stream session exclusively owns its socket, its
// book-engine slice, and its listen key").
type bookState struct {
	mode    dialect.BookMode
	seq     *book.Book
	idbook  *book.IDBook
	channel string
}

// Session drives one dialect through its full connection lifecycle,
// reconnecting with backoff until the context passed to Run is canceled.
type Session struct {
	cfg     Config
	dialect dialect.Dialect
	emitter EventEmitter
	log     *slog.Logger

	mu     sync.Mutex
	books  map[string]*bookState // keyed by canonical symbol
	pairs  []dialect.ChannelSymbol
	forced map[string]bool // symbol -> whether the next book callback must carry forced=true
}

// New constructs a Session, resolving cfg.Subscriptions into the
// (channel,symbol) pair list once up front.
func New(cfg Config, d dialect.Dialect, emitter EventEmitter) (*Session, error) {
	pairs, err := cfg.Subscriptions.Resolve(cfg.NativeSymbol)
	if err != nil {
		return nil, errs.New(cfg.Exchange, errs.CodeFatalConfig, errs.WithCause(err))
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		dialect: d,
		emitter: emitter,
		log:     logger,
		books:   make(map[string]*bookState),
		pairs:   pairs,
		forced:  make(map[string]bool),
	}, nil
}

// Run drives CONNECTING -> ... -> STREAMING, reconnecting with exponential
// backoff on failure, until ctx is canceled (spec §4.2, §4.5 Supervision).
func (s *Session) Run(ctx context.Context) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = s.cfg.MaxBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.resetBooks()
		err := s.runOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}

		s.log.Warn("session disconnected, reconnecting", "exchange", s.cfg.Exchange, "error", err)
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = s.cfg.MaxBackoff
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// runOnce executes one full CONNECTING->STREAMING attempt. When ctx is
// canceled mid-stream it returns an error wrapping context.Canceled, which
// Run treats as a clean exit; any other error triggers the
// reconnect-with-backoff path in Run.
func (s *Session) runOnce(ctx context.Context) error {
	listenKey := ""
	if s.cfg.Private && s.dialect.NeedsListenKey() {
		key, err := s.dialect.ObtainListenKey(ctx)
		if err != nil {
			return fmt.Errorf("obtain listen key: %w", err)
		}
		listenKey = key
	}

	endpoint := s.dialect.Endpoint(s.cfg.Private, listenKey)
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return errs.New(s.cfg.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	channels := s.cfg.Subscriptions.ChannelNames()
	if s.cfg.Private && s.dialect.RequiresAuth(channels) {
		if err := s.authenticate(ctx, conn); err != nil {
			return err
		}
	}

	if err := s.subscribe(ctx, conn); err != nil {
		return err
	}

	if err := s.seedSnapshots(ctx); err != nil {
		return err
	}

	return s.streamLoop(ctx, conn)
}

func (s *Session) authenticate(ctx context.Context, conn *websocket.Conn) error {
	frame, err := s.dialect.BuildAuthFrame(ctx)
	if err != nil {
		return fmt.Errorf("build auth frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return errs.New(s.cfg.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
	}

	deadline := time.Now().Add(s.idleTimeout())
	for time.Now().Before(deadline) {
		readCtx, cancel := context.WithDeadline(ctx, deadline)
		_, raw, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return errs.New(s.cfg.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
		}
		result, ok := s.dialect.ParseAuthResult(raw)
		if !ok {
			continue
		}
		if !result.OK {
			return errs.New(s.cfg.Exchange, errs.CodeProtocolReject, errs.WithRawMessage(result.Message))
		}
		return nil
	}
	return errs.New(s.cfg.Exchange, errs.CodeTransientNetwork, errs.WithMessage("auth timed out"))
}

func (s *Session) subscribe(ctx context.Context, conn *websocket.Conn) error {
	frames, err := s.dialect.BuildSubscribeFrames(s.pairs)
	if err != nil {
		return fmt.Errorf("build subscribe frames: %w", err)
	}
	for _, frame := range frames {
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return errs.New(s.cfg.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
		}
	}

	s.mu.Lock()
	for _, p := range s.pairs {
		mode := s.dialect.BookMode(p.Channel)
		if mode == dialect.BookModeNone {
			continue
		}
		bs := &bookState{mode: mode, channel: p.Channel}
		switch mode {
		case dialect.BookModeSequenced:
			bs.seq = book.New(s.dialect.SequencedVariant(p.Channel))
		case dialect.BookModeOrderID:
			bs.idbook = book.NewIDBook()
		}
		s.books[p.Symbol] = bs
		s.forced[p.Symbol] = true
	}
	s.mu.Unlock()
	return nil
}

// snapshotWorkerCap bounds how many REST snapshot fetches run at once per
// session (spec §4.2: "concurrently fetch snapshots for each subscribed
// symbol via REST"), keeping one reconnect from opening dozens of concurrent
// REST calls against a single exchange.
const snapshotWorkerCap = 8

// seedSnapshots concurrently fetches REST snapshots for every symbol whose
// channel requires one, then seeds the per-symbol book engine (spec §4.2
// Snapshot state).
func (s *Session) seedSnapshots(ctx context.Context) error {
	needSnapshot := make([]dialect.ChannelSymbol, 0, len(s.pairs))
	for _, p := range s.pairs {
		if s.dialect.NeedsSnapshot(p.Channel) {
			needSnapshot = append(needSnapshot, p)
		}
	}
	if len(needSnapshot) == 0 {
		return nil
	}

	snapshots, err := restutil.FetchSnapshotsConcurrently(ctx, needSnapshot, snapshotWorkerCap, s.dialect.FetchSnapshot)
	if err != nil {
		return fmt.Errorf("fetch snapshots: %w", err)
	}

	for symbol, snap := range snapshots {
		s.mu.Lock()
		bs, ok := s.books[symbol]
		s.mu.Unlock()
		if !ok || bs.seq == nil {
			continue
		}
		bs.seq.InitFromSnapshot(convertLevels(snap.Bids), convertLevels(snap.Asks), snap.LastUpdateID)
	}
	return nil
}

func convertLevels(levels []dialect.BookLevel) []book.Level {
	if len(levels) == 0 {
		return nil
	}
	out := make([]book.Level, 0, len(levels))
	for _, l := range levels {
		price, ok := parseDecimal(l.Price)
		if !ok {
			continue
		}
		size, ok := parseDecimal(l.Size)
		if !ok {
			continue
		}
		out = append(out, book.Level{Price: price, Size: size})
	}
	return out
}

// streamLoop receives frames until the socket errs or ctx is canceled (spec
// §4.2 Stream, §5 scheduling: "receive -> parse -> ... -> emit -> sink").
func (s *Session) streamLoop(ctx context.Context, conn *websocket.Conn) error {
	idle := s.idleTimeout()
	keepaliveCh := s.startKeepalive(ctx)
	defer close(keepaliveCh)

	for {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		_, raw, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return errs.New(s.cfg.Exchange, errs.CodeTransientNetwork, errs.WithCause(err))
		}

		frames, err := s.dialect.Decode(raw)
		if err != nil {
			s.log.Warn("decode error, dropping frame", "exchange", s.cfg.Exchange, "error", err)
			continue
		}

		for _, frame := range frames {
			if err := s.handleFrame(ctx, frame); err != nil {
				if code, ok := errs.CodeOf(err); ok && errs.TriggersReconnect(code) {
					return err
				}
				s.log.Warn("frame handling error, continuing", "exchange", s.cfg.Exchange, "error", err)
			}
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, frame dialect.Frame) error {
	routed, err := s.dialect.Route(frame)
	if err != nil {
		return errs.New(s.cfg.Exchange, errs.CodeProtocolDecode, errs.WithCause(err))
	}
	for _, r := range routed {
		if err := s.handleRouted(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleRouted(ctx context.Context, r dialect.Routed) error {
	switch r.Kind {
	case dialect.RoutedEvent:
		return s.emit(ctx, r.Event)

	case dialect.RoutedBookDelta:
		return s.applySequencedDelta(ctx, r.Symbol, r.Delta)

	case dialect.RoutedBookIDOp:
		return s.applyIDOp(ctx, r.Symbol, r.IDAction, r.IDRows)

	case dialect.RoutedBookPush:
		return s.applyPush(ctx, r.Symbol, r.PushBids, r.PushAsks, r.PushPartial)
	}
	return nil
}

func (s *Session) applySequencedDelta(ctx context.Context, symbol string, delta book.Delta) error {
	s.mu.Lock()
	bs, ok := s.books[symbol]
	s.mu.Unlock()
	if !ok || bs.seq == nil {
		return nil
	}

	outcome, view := bs.seq.ApplyDelta(delta)
	switch outcome {
	case book.OutcomeSkip:
		return nil
	case book.OutcomeResync:
		return errs.New(s.cfg.Exchange, errs.CodeSnapshotGap, errs.WithVenueField("symbol", symbol))
	case book.OutcomeApply, book.OutcomeApplyForced:
		forced := outcome == book.OutcomeApplyForced
		return s.emitBookView(ctx, symbol, bs.channel, *view, forced)
	}
	return nil
}

func (s *Session) applyIDOp(ctx context.Context, symbol string, action book.IDAction, rows []book.IDLevel) error {
	s.mu.Lock()
	bs, ok := s.books[symbol]
	s.mu.Unlock()
	if !ok || bs.idbook == nil {
		return nil
	}
	view, applied := bs.idbook.Apply(action, rows)
	if !applied {
		return nil
	}
	forced := action == book.IDActionPartial
	return s.emitBookView(ctx, symbol, bs.channel, *view, forced)
}

func (s *Session) applyPush(ctx context.Context, symbol string, bids, asks []book.Level, isPartial bool) error {
	s.mu.Lock()
	bs, ok := s.books[symbol]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if bs.seq == nil {
		bs.seq = book.New(book.VariantSpot)
	}
	view := bs.seq.ApplyPush(bids, asks, isPartial)
	return s.emitBookView(ctx, symbol, bs.channel, *view, isPartial)
}

func (s *Session) emitBookView(ctx context.Context, symbol, channel string, view book.View, forced bool) error {
	now := time.Now().UTC()

	s.mu.Lock()
	mustForce := s.forced[symbol]
	if mustForce {
		forced = true
		s.forced[symbol] = false
	}
	s.mu.Unlock()

	eventType := schema.EventTypeBookDelta
	if forced {
		eventType = schema.EventTypeBookSnapshot
	}

	event := schema.Event{
		Exchange: s.cfg.Exchange,
		Symbol:   symbol,
		Type:     eventType,
		IngestTS: now,
		EmitTS:   now,
		Payload: schema.BookSnapshotPayload{
			Bids:      toPriceLevels(view.Bids),
			Asks:      toPriceLevels(view.Asks),
			Forced:    forced,
			Timestamp: now,
		},
	}
	return s.emit(ctx, event)
}

func toPriceLevels(levels []book.Level) []schema.PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]schema.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, schema.PriceLevel{Price: l.Price.String(), Size: l.Size.String()})
	}
	return out
}

func (s *Session) emit(ctx context.Context, event schema.Event) error {
	if s.emitter == nil {
		return nil
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.log.Warn("sink error", "exchange", s.cfg.Exchange, "symbol", event.Symbol, "error", err)
	}
	return nil
}

func (s *Session) startKeepalive(ctx context.Context) chan struct{} {
	done := make(chan struct{})
	interval := s.dialect.KeepaliveInterval()
	if interval <= 0 {
		return done
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.dialect.Keepalive(ctx); err != nil {
					s.log.Warn("keepalive failed", "exchange", s.cfg.Exchange, "error", err)
				}
			}
		}
	}()
	return done
}

func (s *Session) idleTimeout() time.Duration {
	if d := s.dialect.IdleTimeout(); d > 0 {
		return d
	}
	return 180 * time.Second
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func (s *Session) resetBooks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = make(map[string]*bookState)
	s.forced = make(map[string]bool)
}
