// Package bot plays Hearts through the realm the way remote clients do:
// every move is a command envelope, and the bot waits for the sequencer to
// apply it before acting again.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/heartsrealm/internal/hearts"
)

// DefaultPollInterval is how often a driver looks at the game.
const DefaultPollInterval = 2 * time.Millisecond

// ErrGameGone is returned when the director stops running a game mid-play.
var ErrGameGone = errors.New("game no longer running")

// Realm is what a driver needs from the director.
type Realm interface {
	Join(ctx context.Context, gameID, playerID, name string) error
	RequestStart(ctx context.Context, gameID, playerID string) error
	Play(ctx context.Context, gameID, playerID string, index int) error
	Game(id string) (*hearts.Game, bool)
}

// Strategy picks one of the legal card indexes of a hand.
type Strategy interface {
	Name() string
	Choose(state hearts.TrickState, player hearts.Player, legal []int) int
}

// Seat is a bot taking one seat.
type Seat struct {
	ID       string
	Name     string
	Strategy Strategy
}

// Driver fills a game with bots and plays it to the end.
type Driver struct {
	realm  Realm
	clock  quartz.Clock
	logger *log.Logger
	poll   time.Duration
}

// NewDriver creates a driver over realm.
func NewDriver(realm Realm, clock quartz.Clock, logger *log.Logger) *Driver {
	return &Driver{
		realm:  realm,
		clock:  clock,
		logger: logger.WithPrefix("bot"),
		poll:   DefaultPollInterval,
	}
}

// PlayGame seats the bots in gameID, starts the game and plays until it
// ends.
func (d *Driver) PlayGame(ctx context.Context, gameID string, seats []Seat) (hearts.Result, error) {
	if len(seats) != hearts.Seats {
		return hearts.Result{}, fmt.Errorf("need %d bots, got %d", hearts.Seats, len(seats))
	}
	byID := make(map[string]Seat, len(seats))
	for _, s := range seats {
		byID[s.ID] = s
		if err := d.realm.Join(ctx, gameID, s.ID, s.Name); err != nil {
			return hearts.Result{}, fmt.Errorf("join %s: %w", s.ID, err)
		}
	}

	if err := d.await(ctx, gameID, func(g *hearts.Game) bool {
		return g.Registry().HaveAnyPlayersCards()
	}); err != nil {
		return hearts.Result{}, fmt.Errorf("waiting for deal: %w", err)
	}
	if err := d.realm.RequestStart(ctx, gameID, seats[0].ID); err != nil {
		return hearts.Result{}, err
	}

	type move struct {
		player string
		pile   int
	}
	var last move

	ticker := d.clock.NewTicker(d.poll, "bot", "poll")
	defer ticker.Stop()
	for {
		g, ok := d.realm.Game(gameID)
		if !ok {
			return hearts.Result{}, ErrGameGone
		}
		if res, ended := g.Result(); ended {
			d.logger.Debug("Game finished", "game", gameID, "winner", res.WinnerID)
			return res, nil
		}

		if g.State() == hearts.Started {
			var (
				next  move
				idx   int
				ready bool
			)
			// read under the turn mutex so a play is never seen half applied
			err := g.Registry().Turn().Do(ctx, func(*hearts.TurnGuard) error {
				reg := g.Registry()
				id, hasTurn := reg.CurrentTurn()
				next = move{id, len(reg.Pile())}
				if !hasTurn || next == last {
					return nil
				}
				seat, mine := byID[id]
				if !mine {
					return fmt.Errorf("turn held by unknown player %s", id)
				}
				p, _ := reg.Player(id)
				state := g.TrickState()
				legal := hearts.LegalIndexes(g.Rules(), state, p)
				if len(legal) == 0 {
					return fmt.Errorf("player %s has no legal card", id)
				}
				idx = seat.Strategy.Choose(state, p, legal)
				ready = true
				d.logger.Debug("Playing", "game", gameID, "player", id, "card", p.Hand[idx], "strategy", seat.Strategy.Name())
				return nil
			})
			if err != nil {
				return hearts.Result{}, err
			}
			if ready {
				if err := d.realm.Play(ctx, gameID, next.player, idx); err != nil {
					return hearts.Result{}, err
				}
				last = next
			}
		}

		select {
		case <-ctx.Done():
			return hearts.Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Driver) await(ctx context.Context, gameID string, cond func(*hearts.Game) bool) error {
	ticker := d.clock.NewTicker(d.poll, "bot", "poll")
	defer ticker.Stop()
	for {
		g, ok := d.realm.Game(gameID)
		if !ok {
			return ErrGameGone
		}
		if cond(g) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
