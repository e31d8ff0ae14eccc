package realm

import (
	"context"

	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/event"
	"github.com/lox/heartsrealm/internal/hearts"
)

// runLobby consumes the general queue. The lobby has a single consumer, so
// quick-match decisions never race each other.
func (d *Director) runLobby(ctx context.Context, sub broker.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case del, ok := <-sub.C():
			if !ok {
				if ctx.Err() == nil {
					d.logger.Error("Lobby subscription ended")
				}
				return
			}
			d.applyLobby(ctx, del.Body)
		}
	}
}

func (d *Director) applyLobby(ctx context.Context, body []byte) {
	env, err := event.Parse(body)
	if err != nil {
		d.logger.Warn("Dropping malformed lobby envelope", "error", err)
		return
	}
	if !d.gate.Admit(env.Version) {
		d.logger.Warn("Dropping out of order lobby event", "type", env.Type, "version", env.Version, "latest", d.gate.Latest())
		return
	}

	switch env.Type {
	case event.GameCreateRequested:
		var p event.CreateGamePayload
		if err := env.Decode(&p); err != nil {
			d.logger.Warn("Bad create request", "error", err)
			return
		}
		id, err := d.CreateGame(ctx)
		if err != nil {
			d.logger.Error("Failed to create requested game", "requestedBy", p.RequestedBy, "error", err)
			return
		}
		d.logger.Debug("Created requested game", "game", id, "requestedBy", p.RequestedBy)

	case event.PlayerWantsToJoinLobby:
		var p event.LobbyJoinPayload
		if err := env.Decode(&p); err != nil {
			d.logger.Warn("Bad lobby join", "error", err)
			return
		}
		if err := d.routeJoin(ctx, p); err != nil {
			d.logger.Warn("Lobby join failed", "player", p.PlayerID, "game", p.GameID, "error", err)
		}

	default:
		d.logger.Error("Unknown lobby event", "type", env.Type, "version", env.Version)
	}
}

func (d *Director) routeJoin(ctx context.Context, p event.LobbyJoinPayload) error {
	gameID := p.GameID
	if gameID == "" {
		id, err := d.openGame(ctx, p.PlayerID)
		if err != nil {
			return err
		}
		gameID = id
	}
	d.logger.Debug("Routing player", "player", p.PlayerID, "game", gameID)
	return d.Join(ctx, gameID, p.PlayerID, p.Name)
}

// QuickMatch seats playerID in the oldest game still waiting for players
// and returns its id. Unlike JoinLobby it does not go through the general
// queue, so the caller learns the game at once.
func (d *Director) QuickMatch(ctx context.Context, playerID, name string) (string, error) {
	id, err := d.openGame(ctx, playerID)
	if err != nil {
		return "", err
	}
	return id, d.Join(ctx, id, playerID, name)
}

// openGame picks the oldest game still waiting for players and reserves a
// seat there, creating a game when every existing one is full.
func (d *Director) openGame(ctx context.Context, playerID string) (string, error) {
	d.matchMu.Lock()
	defer d.matchMu.Unlock()
	if id, ok := d.reserveSeat(playerID); ok {
		return id, nil
	}
	id, err := d.CreateGame(ctx)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	if e, ok := d.games[id]; ok {
		e.reserved[playerID] = struct{}{}
	}
	d.mu.Unlock()
	return id, nil
}

func (d *Director) reserveSeat(playerID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.order {
		e := d.games[id]
		g := e.seq.Game()
		if g.State() != hearts.NotStarted {
			continue
		}
		if _, ok := e.reserved[playerID]; ok {
			return id, true
		}
		if p, ok := g.Registry().Player(playerID); ok && !p.IsViewer() {
			return id, true
		}
		if seatsTaken(e) < hearts.Seats {
			e.reserved[playerID] = struct{}{}
			return id, true
		}
	}
	return "", false
}

// seatsTaken counts seated players plus reservations not yet applied.
func seatsTaken(e *entry) int {
	reg := e.seq.Game().Registry()
	n := reg.SeatCount()
	for id := range e.reserved {
		if _, ok := reg.Player(id); !ok {
			n++
		}
	}
	return n
}
