// Package realm runs many Hearts games side by side. The Director creates
// games, owns their sequencers, relaunches the ones that fail, and turns
// boundary commands into envelopes on the right stream.
package realm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/event"
	"github.com/lox/heartsrealm/internal/gameid"
	"github.com/lox/heartsrealm/internal/hearts"
	"github.com/lox/heartsrealm/internal/randutil"
	"github.com/lox/heartsrealm/internal/sequencer"
)

var (
	// ErrUnknownGame is returned for commands naming a game the director
	// does not run.
	ErrUnknownGame = errors.New("unknown game")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("realm stopped")
)

// Config tunes the director.
type Config struct {
	// Seed roots every game's dealing; 0 picks a time-based seed.
	Seed int64
	// StallTimeout enables each sequencer's stall watchdog when positive.
	StallTimeout time.Duration
	// RestartBackoff is the pause before a failed sequencer is relaunched.
	RestartBackoff time.Duration
	// MaxRestarts is how often one game may fail before it is removed.
	MaxRestarts int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		StallTimeout:   30 * time.Second,
		RestartBackoff: time.Second,
		MaxRestarts:    3,
	}
}

type entry struct {
	seq      *sequencer.Sequencer
	restarts int
	// reserved holds players routed here by the lobby whose join has not
	// been applied yet.
	reserved map[string]struct{}
}

// Director owns the games of one realm.
type Director struct {
	broker broker.Broker
	logger *log.Logger
	clock  quartz.Clock
	cfg    Config
	ids    *gameid.Generator
	seeds  *randutil.Source

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	general  *event.Stream
	announce *event.Stream
	gate     sequencer.Gate

	mu    sync.RWMutex
	games map[string]*entry
	order []string

	// matchMu serialises seat reservation with the game creation it may
	// trigger.
	matchMu sync.Mutex
}

// Option configures a Director.
type Option func(*Director)

// WithClock sets the clock used for restart backoff and the watchdogs.
func WithClock(clock quartz.Clock) Option {
	return func(d *Director) { d.clock = clock }
}

// WithIDs sets the game id generator.
func WithIDs(gen *gameid.Generator) Option {
	return func(d *Director) { d.ids = gen }
}

// New declares the lobby queues, starts the lobby consumer and returns a
// running director. The director lives until Stop or until ctx is done.
func New(ctx context.Context, b broker.Broker, logger *log.Logger, cfg Config, opts ...Option) (*Director, error) {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	seed := randutil.Seed(cfg.Seed)
	d := &Director{
		broker: b,
		logger: logger.WithPrefix("realm"),
		clock:  quartz.NewReal(),
		cfg:    cfg,
		ids:    gameid.NewGenerator(nil),
		seeds:  randutil.NewSource(seed),
		games:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, q := range []string{broker.GeneralQueue, broker.GeneralExchangeQueue} {
		if err := b.AssertQueue(ctx, q); err != nil {
			return nil, fmt.Errorf("assert queue %s: %w", q, err)
		}
	}
	d.general = event.NewStream(b, broker.GeneralQueue)
	d.announce = event.NewStream(b, broker.GeneralExchangeQueue)

	lobby, err := b.Subscribe(ctx, broker.GeneralQueue)
	if err != nil {
		return nil, fmt.Errorf("subscribe lobby: %w", err)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer lobby.Close()
		d.runLobby(d.ctx, lobby)
	}()

	d.logger.Info("Realm started", "seed", seed, "stallTimeout", cfg.StallTimeout, "maxRestarts", cfg.MaxRestarts)
	return d, nil
}

// Stop cancels every sequencer and the lobby, then waits for them.
// Subscriptions are closed without flushing.
func (d *Director) Stop() {
	d.cancel()
	d.wg.Wait()
	d.logger.Info("Realm stopped")
}

// CreateGame builds a game with its sequencer and starts consuming its
// queues. It fails when the broker cannot declare them.
func (d *Director) CreateGame(ctx context.Context) (string, error) {
	if d.ctx.Err() != nil {
		return "", ErrStopped
	}

	id := d.ids.Generate()
	logger := d.logger.With("game", id)
	game := hearts.NewGame(id, hearts.WithRNG(d.seeds.Next()), hearts.WithLogger(logger))
	seq, err := sequencer.New(ctx, id, d.broker,
		sequencer.WithLogger(d.logger),
		sequencer.WithClock(d.clock),
		sequencer.WithGame(game),
		sequencer.WithStallTimeout(d.cfg.StallTimeout),
		sequencer.WithOnChange(d.gameChanged),
	)
	if err != nil {
		return "", fmt.Errorf("create game: %w", err)
	}

	e := &entry{seq: seq, reserved: make(map[string]struct{})}
	d.mu.Lock()
	d.games[id] = e
	d.order = append(d.order, id)
	d.mu.Unlock()

	d.launch(e)
	logger.Info("Game created")

	if _, err := d.announce.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Created(c, event.GameCreatedPayload{GameID: id})
	}); err != nil {
		d.logger.Warn("Failed to announce game", "game", id, "error", err)
	}
	d.announceLobby(ctx)
	return id, nil
}

func (d *Director) launch(e *entry) {
	ctx, cancel := context.WithCancel(d.ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		d.supervise(ctx, e)
	}()
}

// supervise runs a sequencer and relaunches it after a failure, waiting
// RestartBackoff between attempts. A game that fails more than MaxRestarts
// times is removed.
func (d *Director) supervise(ctx context.Context, e *entry) {
	id := e.seq.GameID()
	logger := d.logger.With("game", id)
	for {
		err := e.seq.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		d.mu.Lock()
		e.restarts++
		restarts := e.restarts
		d.mu.Unlock()

		if restarts > d.cfg.MaxRestarts {
			logger.Error("Sequencer failed too often, removing game", "restarts", restarts-1, "error", err)
			d.remove(id)
			d.announceLobby(context.WithoutCancel(ctx))
			return
		}
		logger.Warn("Sequencer failed, restarting", "attempt", restarts, "backoff", d.cfg.RestartBackoff, "error", err)

		timer := d.clock.NewTimer(d.cfg.RestartBackoff, "realm", "restart")
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (d *Director) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.games, id)
	for i, gid := range d.order {
		if gid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *Director) lookup(id string) (*entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	return e, nil
}

// Game returns a running game's state.
func (d *Director) Game(id string) (*hearts.Game, bool) {
	e, err := d.lookup(id)
	if err != nil {
		return nil, false
	}
	return e.seq.Game(), true
}

// Stats returns a running game's sequencer counters.
func (d *Director) Stats(id string) (sequencer.Stats, error) {
	e, err := d.lookup(id)
	if err != nil {
		return sequencer.Stats{}, err
	}
	return e.seq.Stats(), nil
}

// ListGames summarises the running games in creation order.
func (d *Director) ListGames() []event.GameSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]event.GameSummary, 0, len(d.order))
	for _, id := range d.order {
		e := d.games[id]
		g := e.seq.Game()
		reg := g.Registry()
		out = append(out, event.GameSummary{
			ID:             id,
			State:          g.State().String(),
			Seated:         reg.SeatCount(),
			Viewers:        len(reg.Viewers()),
			PrimaryVersion: e.seq.Stats().Primary.Latest,
			Restarts:       e.restarts,
		})
	}
	return out
}

// gameChanged runs on a sequencer's applier after roster or lifecycle
// changes.
func (d *Director) gameChanged(id string) {
	if g, ok := d.Game(id); ok && g.State() != hearts.NotStarted {
		d.mu.Lock()
		if e, ok := d.games[id]; ok {
			clear(e.reserved)
		}
		d.mu.Unlock()
	}
	d.announceLobby(d.ctx)
}

func (d *Director) announceLobby(ctx context.Context) {
	games := d.ListGames()
	if _, err := d.announce.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Lobby(c, event.LobbyUpdatedPayload{Games: games})
	}); err != nil {
		d.logger.Warn("Failed to announce lobby", "error", err)
	}
}
