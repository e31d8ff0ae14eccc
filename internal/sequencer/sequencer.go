// Package sequencer turns a game's two broker queues into a single causal
// order of events. Each queue has its own version gate; admitted events are
// applied one at a time by a single consumer, dispatched through a fixed
// table, and followed by a state broadcast.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/event"
	"github.com/lox/heartsrealm/internal/hearts"
)

// ErrUnknownEventType stops the sequencer: an event type outside the dispatch
// table is a protocol violation, not something to skip.
var ErrUnknownEventType = errors.New("unknown event type")

// DefaultInboundCapacity bounds the channel between readers and the applier.
const DefaultInboundCapacity = 256

// Stream identifies one of a game's two consumed queues.
type Stream int

const (
	Primary Stream = iota
	Exchange
)

func (s Stream) String() string {
	switch s {
	case Primary:
		return "primary"
	case Exchange:
		return "exchange"
	default:
		return "unknown"
	}
}

type handlerFunc func(ctx context.Context, env event.Envelope) error

type route struct {
	handle handlerFunc
	// broadcast is set for handlers whose effect subscribers must see; a
	// game-updated event follows them automatically.
	broadcast bool
}

type inbound struct {
	stream   Stream
	delivery broker.Delivery
}

// StreamStats counts what happened on one stream.
type StreamStats struct {
	Latest  uint64 `json:"latest"`
	Applied uint64 `json:"applied"`
	Dropped uint64 `json:"dropped"`
}

// Stats is a point-in-time view of a sequencer.
type Stats struct {
	GameID      string      `json:"gameId"`
	Primary     StreamStats `json:"primary"`
	Exchange    StreamStats `json:"exchange"`
	LastApplied time.Time   `json:"lastApplied"`
}

// Sequencer applies one game's events in version order.
type Sequencer struct {
	gameID string
	game   *hearts.Game
	broker broker.Broker
	logger *log.Logger
	clock  quartz.Clock

	stallTimeout    time.Duration
	inboundCapacity int
	onChange        func(gameID string)

	primary  *event.Stream
	exchange *event.Stream
	gates    [2]Gate
	routes   [2]map[event.Type]route

	privateMu sync.Mutex
	private   map[string]*event.Stream

	applied     [2]atomic.Uint64
	dropped     [2]atomic.Uint64
	pendingGaps atomic.Uint64
	lastApplied atomic.Int64
	stallWarned atomic.Bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

// WithClock sets the clock used by the stall watchdog.
func WithClock(clock quartz.Clock) Option {
	return func(s *Sequencer) { s.clock = clock }
}

// WithGame supplies the game state the handlers act on.
func WithGame(game *hearts.Game) Option {
	return func(s *Sequencer) { s.game = game }
}

// WithStallTimeout enables the watchdog: when a gap has been dropped and
// nothing was applied for d, the sequencer logs that its stream is stuck.
func WithStallTimeout(d time.Duration) Option {
	return func(s *Sequencer) { s.stallTimeout = d }
}

// WithInboundCapacity bounds the channel between readers and the applier.
func WithInboundCapacity(n int) Option {
	return func(s *Sequencer) { s.inboundCapacity = n }
}

// WithOnChange registers a callback run after roster or lifecycle changes.
func WithOnChange(fn func(gameID string)) Option {
	return func(s *Sequencer) { s.onChange = fn }
}

// New declares the game's queues and builds its sequencer. A broker that
// cannot declare queues fails the game at startup.
func New(ctx context.Context, gameID string, b broker.Broker, opts ...Option) (*Sequencer, error) {
	s := &Sequencer{
		gameID:          gameID,
		broker:          b,
		clock:           quartz.NewReal(),
		inboundCapacity: DefaultInboundCapacity,
		private:         make(map[string]*event.Stream),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	s.logger = s.logger.WithPrefix("sequencer").With("game", gameID)
	if s.game == nil {
		s.game = hearts.NewGame(gameID, hearts.WithLogger(s.logger))
	}

	for _, q := range []string{broker.GameQueue(gameID), broker.ExchangeQueue(gameID)} {
		if err := b.AssertQueue(ctx, q); err != nil {
			return nil, fmt.Errorf("assert queue %s: %w", q, err)
		}
	}
	s.primary = event.NewStream(b, broker.GameQueue(gameID))
	s.exchange = event.NewStream(b, broker.ExchangeQueue(gameID))
	s.lastApplied.Store(s.clock.Now().UnixNano())
	s.routes = s.dispatchTable()
	return s, nil
}

// GameID returns the id of the sequenced game.
func (s *Sequencer) GameID() string { return s.gameID }

// Game returns the sequenced game.
func (s *Sequencer) Game() *hearts.Game { return s.game }

// Primary returns the publishing side of the primary stream.
func (s *Sequencer) Primary() *event.Stream { return s.primary }

// Exchange returns the publishing side of the exchange stream.
func (s *Sequencer) Exchange() *event.Stream { return s.exchange }

// Run consumes both queues until ctx is done or an event cannot be
// dispatched. Subscriptions are closed on return; an envelope in flight at
// that moment may be lost.
func (s *Sequencer) Run(ctx context.Context) error {
	primarySub, err := s.broker.Subscribe(ctx, broker.GameQueue(s.gameID))
	if err != nil {
		return fmt.Errorf("subscribe primary: %w", err)
	}
	defer primarySub.Close()

	exchangeSub, err := s.broker.Subscribe(ctx, broker.ExchangeQueue(s.gameID))
	if err != nil {
		return fmt.Errorf("subscribe exchange: %w", err)
	}
	defer exchangeSub.Close()

	s.logger.Info("Sequencer running", "primary", s.gates[Primary].Latest(), "exchange", s.gates[Exchange].Latest())

	in := make(chan inbound, s.inboundCapacity)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.read(gctx, Primary, primarySub, in) })
	g.Go(func() error { return s.read(gctx, Exchange, exchangeSub, in) })
	g.Go(func() error { return s.applyLoop(gctx, in) })
	if s.stallTimeout > 0 {
		g.Go(func() error { return s.watch(gctx) })
	}

	err = g.Wait()
	s.logger.Info("Sequencer stopped", "error", err)
	return err
}

func (s *Sequencer) read(ctx context.Context, stream Stream, sub broker.Subscription, out chan<- inbound) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s subscription ended: %w", stream, broker.ErrClosed)
			}
			select {
			case out <- inbound{stream: stream, delivery: d}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Sequencer) applyLoop(ctx context.Context, in <-chan inbound) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-in:
			if err := s.Apply(ctx, msg.stream, msg.delivery.Body); err != nil {
				return err
			}
		}
	}
}

// Apply runs one raw envelope through the gate and the dispatch table. Only
// an unknown event type is returned as an error; everything else is logged.
func (s *Sequencer) Apply(ctx context.Context, stream Stream, body []byte) error {
	env, err := event.Parse(body)
	if err != nil {
		s.dropped[stream].Add(1)
		s.logger.Warn("Dropping malformed envelope", "stream", stream, "error", err)
		return nil
	}

	gate := &s.gates[stream]
	if !gate.Admit(env.Version) {
		s.dropped[stream].Add(1)
		latest := gate.Latest()
		if env.Version > latest+1 {
			s.pendingGaps.Add(1)
		}
		s.logger.Warn("Dropping out of order event",
			"stream", stream, "type", env.Type, "version", env.Version, "latest", latest)
		return nil
	}
	s.applied[stream].Add(1)
	s.pendingGaps.Store(0)
	s.stallWarned.Store(false)
	s.lastApplied.Store(s.clock.Now().UnixNano())

	if stream == Primary && s.game.State() == hearts.Ended &&
		env.Type != event.GameEnded && env.Type != event.GameRestartRequested {
		s.logger.Info("Ignoring event for ended game", "type", env.Type, "version", env.Version)
		return nil
	}

	r, ok := s.routes[stream][env.Type]
	if !ok {
		return fmt.Errorf("%w: %q on %s stream of game %s", ErrUnknownEventType, env.Type, stream, s.gameID)
	}

	s.logger.Debug("Applying event", "stream", stream, "type", env.Type, "version", env.Version)
	if err := r.handle(ctx, env); err != nil {
		s.logger.Error("Event handler failed", "stream", stream, "type", env.Type, "version", env.Version, "error", err)
	}

	if r.broadcast {
		payload := event.GameUpdatedPayload{Cause: env.Type, Version: env.Version}
		if _, err := s.exchange.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
			return event.Updated(c, payload)
		}); err != nil {
			s.logger.Error("Failed to broadcast game update", "cause", env.Type, "error", err)
		}
	}
	return nil
}

// Stats returns gate positions and counters.
func (s *Sequencer) Stats() Stats {
	stat := func(st Stream) StreamStats {
		return StreamStats{
			Latest:  s.gates[st].Latest(),
			Applied: s.applied[st].Load(),
			Dropped: s.dropped[st].Load(),
		}
	}
	return Stats{
		GameID:      s.gameID,
		Primary:     stat(Primary),
		Exchange:    stat(Exchange),
		LastApplied: time.Unix(0, s.lastApplied.Load()),
	}
}

func (s *Sequencer) watch(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.stallTimeout/2, "sequencer", "watchdog")
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.checkStall()
		}
	}
}

// checkStall reports whether the game looks stuck behind a dropped gap. It
// logs once per stall.
func (s *Sequencer) checkStall() bool {
	if s.pendingGaps.Load() == 0 {
		return false
	}
	idle := s.clock.Since(time.Unix(0, s.lastApplied.Load()))
	if idle < s.stallTimeout {
		return false
	}
	if s.stallWarned.CompareAndSwap(false, true) {
		s.logger.Warn("Event stream stalled behind a version gap",
			"idle", idle, "droppedGaps", s.pendingGaps.Load(),
			"primary", s.gates[Primary].Latest(), "exchange", s.gates[Exchange].Latest())
	}
	return true
}

func (s *Sequencer) changed() {
	if s.onChange != nil {
		s.onChange(s.gameID)
	}
}

// privateStream returns the stream of a player's private queue, declaring
// the queue on first use.
func (s *Sequencer) privateStream(ctx context.Context, playerID string) (*event.Stream, error) {
	s.privateMu.Lock()
	defer s.privateMu.Unlock()
	if st, ok := s.private[playerID]; ok {
		return st, nil
	}
	q := broker.PlayerQueue(s.gameID, playerID)
	if err := s.broker.AssertQueue(ctx, q); err != nil {
		return nil, fmt.Errorf("assert queue %s: %w", q, err)
	}
	st := event.NewStream(s.broker, q)
	s.private[playerID] = st
	return st, nil
}
