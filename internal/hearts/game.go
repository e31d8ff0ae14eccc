package hearts

import (
	"context"
	"fmt"
	"io"
	rand "math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/heartsrealm/internal/deck"
	"github.com/lox/heartsrealm/internal/randutil"
)

// State is a game's lifecycle stage.
type State int

const (
	NotStarted State = iota
	Started
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case Started:
		return "STARTED"
	case Ended:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome describes an accepted play.
type Outcome struct {
	PlayerID     string
	Card         deck.Card
	Points       int
	TurnNumber   int
	HeartsBroken bool
	NextPlayerID string
	Ended        bool
}

// Standing is a player's total at the end of a game.
type Standing struct {
	PlayerID string
	Name     string
	Points   int
}

// Result is the final outcome of a game. WinnerID is empty on a tie.
type Result struct {
	WinnerID  string
	Tie       bool
	Standings []Standing
}

// Game orchestrates one Hearts game.
type Game struct {
	ID string

	mu           sync.RWMutex
	state        State
	heartsBroken bool
	result       *Result

	registry *Registry
	rules    RuleEngine
	rng      *rand.Rand
	logger   *log.Logger
}

// Option configures a Game.
type Option func(*Game)

// WithRules injects the rule engine. The default is HeartsRules.
func WithRules(rules RuleEngine) Option {
	return func(g *Game) { g.rules = rules }
}

// WithRNG sets the random source used for dealing.
func WithRNG(rng *rand.Rand) Option {
	return func(g *Game) { g.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Game) { g.logger = logger }
}

// NewGame creates a game in NOT_STARTED.
func NewGame(id string, opts ...Option) *Game {
	g := &Game{
		ID:       id,
		registry: NewRegistry(),
		rules:    HeartsRules{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = randutil.New(randutil.Seed(0))
	}
	if g.logger == nil {
		g.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	g.logger = g.logger.WithPrefix("game").With("game", id)
	return g
}

// Registry exposes the player registry for reads.
func (g *Game) Registry() *Registry {
	return g.registry
}

// Rules returns the injected rule engine.
func (g *Game) Rules() RuleEngine {
	return g.rules
}

// State returns the lifecycle stage.
func (g *Game) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// HeartsBroken reports whether a heart has been played.
func (g *Game) HeartsBroken() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.heartsBroken
}

// TrickState returns the state rule engines judge plays against.
func (g *Game) TrickState() TrickState {
	return TrickState{Pile: g.registry.Pile(), HeartsBroken: g.HeartsBroken()}
}

// Result returns the outcome once the game has ended.
func (g *Game) Result() (Result, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.result == nil {
		return Result{}, false
	}
	return *g.result, true
}

// Join admits a player. Before the game starts new ids take seats; once it is
// running they watch. Admission.Ready tells the caller to deal.
func (g *Game) Join(name, id string) (Admission, error) {
	g.mu.RLock()
	state := g.state
	g.mu.RUnlock()

	switch state {
	case Ended:
		return Admission{}, ErrGameEnded
	case Started:
		added := g.registry.AddViewer(name, id)
		p, _ := g.registry.Player(id)
		return Admission{Seat: p.Seat, Viewer: p.IsViewer(), Duplicate: !added}, nil
	}

	adm := g.registry.AddPlayer(name, id)
	if !adm.Duplicate {
		g.logger.Info("Player joined", "player", id, "name", name, "seat", adm.Seat, "viewer", adm.Viewer)
	}
	return adm, nil
}

// Subscribe makes sure id receives snapshots, adding it as a viewer when the
// registry does not know it yet.
func (g *Game) Subscribe(name, id string) bool {
	return g.registry.AddViewer(name, id)
}

// Deal distributes cards to the four seats.
func (g *Game) Deal() error {
	if g.State() != NotStarted {
		return ErrAlreadyStarted
	}
	if err := g.registry.DistributeCards(g.rng); err != nil {
		return err
	}
	first, _ := g.registry.CurrentTurn()
	g.logger.Info("Cards distributed", "first", first)
	return nil
}

// RequestStart checks that playerID may start the game now. It changes
// nothing; approval arrives as its own event and is applied by Start.
func (g *Game) RequestStart(playerID string) error {
	if state := g.State(); state != NotStarted {
		if state == Ended {
			return ErrGameEnded
		}
		return ErrAlreadyStarted
	}
	p, ok := g.registry.Player(playerID)
	if !ok {
		return ErrUnknownPlayer
	}
	if p.IsViewer() {
		return ErrNotSeated
	}
	if g.registry.SeatCount() < Seats {
		return ErrNotEnoughPlayers
	}
	return nil
}

// Start moves NOT_STARTED to STARTED. Cards must have been dealt.
func (g *Game) Start() error {
	if g.registry.SeatCount() < Seats {
		return ErrNotEnoughPlayers
	}
	if !g.registry.HaveAnyPlayersCards() {
		return ErrNotDealt
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != NotStarted {
		return ErrAlreadyStarted
	}
	g.state = Started
	g.logger.Info("Game started")
	return nil
}

// Play applies one play under the turn mutex. The lock is taken before
// validation and released after the next seat holds the turn. Rejections
// leave the game untouched.
func (g *Game) Play(ctx context.Context, playerID string, index int) (Outcome, error) {
	guard, err := g.registry.Turn().Acquire(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer guard.Release()

	switch g.State() {
	case NotStarted:
		return Outcome{}, ErrNotStarted
	case Ended:
		return Outcome{}, ErrGameEnded
	}

	p, ok := g.registry.Player(playerID)
	if !ok {
		return Outcome{}, ErrUnknownPlayer
	}
	if p.IsViewer() {
		return Outcome{}, ErrNotSeated
	}
	if !p.IsTheirTurn {
		return Outcome{}, ErrNotYourTurn
	}
	if err := g.rules.Validate(g.TrickState(), p, index); err != nil {
		return Outcome{}, err
	}

	played, err := g.registry.ExecutePlay(guard, playerID, index)
	if err != nil {
		return Outcome{}, err
	}

	g.mu.Lock()
	if played.Card.IsHeart() && !g.heartsBroken {
		g.heartsBroken = true
		g.logger.Info("Hearts broken", "player", playerID)
	}
	broken := g.heartsBroken
	g.mu.Unlock()

	next, err := g.registry.AdvanceTurn(guard)
	if err != nil {
		return Outcome{}, fmt.Errorf("advance turn: %w", err)
	}

	out := Outcome{
		PlayerID:     playerID,
		Card:         played.Card,
		Points:       played.Points,
		TurnNumber:   played.TurnNumber,
		HeartsBroken: broken,
		NextPlayerID: next,
	}
	if !g.registry.HaveAnyPlayersCards() {
		g.end()
		out.Ended = true
		out.NextPlayerID = ""
	}
	return out, nil
}

func (g *Game) end() {
	res := Result{}
	for _, p := range g.registry.Players() {
		res.Standings = append(res.Standings, Standing{PlayerID: p.ID, Name: p.Name, Points: p.Points})
	}
	if w, ok := g.registry.Winner(); ok {
		res.WinnerID = w.ID
	} else {
		res.Tie = true
	}

	g.mu.Lock()
	g.state = Ended
	g.result = &res
	g.mu.Unlock()
	g.logger.Info("Game ended", "winner", res.WinnerID, "tie", res.Tie)
}

// Restart clears an ended game back to NOT_STARTED under the same id.
func (g *Game) Restart() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Ended {
		return ErrNotEnded
	}
	g.registry.Reset()
	g.state = NotStarted
	g.heartsBroken = false
	g.result = nil
	g.logger.Info("Game restarted")
	return nil
}
