package sequencer

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/heartsrealm/internal/event"
	"github.com/lox/heartsrealm/internal/hearts"
)

// dispatchTable is fixed at construction; nothing registers handlers later.
func (s *Sequencer) dispatchTable() [2]map[event.Type]route {
	return [2]map[event.Type]route{
		Primary: {
			event.PlayerWantsToJoin:    {handle: s.onJoin, broadcast: true},
			event.CardsDistributed:     {handle: s.onCardsDistributed, broadcast: true},
			event.GameStartRequested:   {handle: s.onStartRequested, broadcast: true},
			event.GameStartApproved:    {handle: s.onStartApproved, broadcast: true},
			event.PlayerPlayed:         {handle: s.onPlayed, broadcast: true},
			event.GameEnded:            {handle: s.onEnded, broadcast: true},
			event.GameRestartRequested: {handle: s.onRestart, broadcast: true},
		},
		Exchange: {
			event.GameUpdated:      {handle: s.onGameUpdated},
			event.PlayAccepted:     {handle: s.fanOut, broadcast: true},
			event.GameEnded:        {handle: s.fanOut, broadcast: true},
			event.MessageToPlayer:  {handle: s.onMessage, broadcast: true},
			event.PlayerSubscribed: {handle: s.onSubscribed, broadcast: true},
		},
	}
}

func (s *Sequencer) onJoin(ctx context.Context, env event.Envelope) error {
	var p event.JoinPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.PlayerID == "" {
		return fmt.Errorf("join without player id")
	}

	adm, err := s.game.Join(p.Name, p.PlayerID)
	if err != nil {
		return err
	}
	if adm.Duplicate {
		s.logger.Debug("Duplicate join ignored", "player", p.PlayerID)
		return nil
	}
	if _, err := s.privateStream(ctx, p.PlayerID); err != nil {
		return err
	}
	s.changed()
	if !adm.Ready {
		return nil
	}

	if err := s.game.Deal(); err != nil {
		return fmt.Errorf("deal: %w", err)
	}
	reg := s.game.Registry()
	first, _ := reg.CurrentTurn()
	sizes := make(map[string]int, hearts.Seats)
	for _, pl := range reg.Players() {
		sizes[pl.ID] = len(pl.Hand)
	}
	dealt := event.CardsDistributedPayload{FirstPlayerID: first, HandSizes: sizes}
	_, err = s.primary.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Distributed(c, dealt)
	})
	return err
}

func (s *Sequencer) onCardsDistributed(_ context.Context, env event.Envelope) error {
	var p event.CardsDistributedPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	s.logger.Info("Hands dealt", "first", p.FirstPlayerID)
	return nil
}

func (s *Sequencer) onStartRequested(ctx context.Context, env event.Envelope) error {
	var p event.PlayerPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	err := s.game.RequestStart(p.PlayerID)
	switch {
	case errors.Is(err, hearts.ErrUnknownPlayer):
		s.logger.Warn("Start requested by unknown player", "player", p.PlayerID)
		return nil
	case err != nil:
		return s.tell(ctx, p.PlayerID, err.Error(), env.Type)
	}
	_, err = s.primary.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.StartApproved(c, p)
	})
	return err
}

func (s *Sequencer) onStartApproved(_ context.Context, _ event.Envelope) error {
	if err := s.game.Start(); err != nil {
		s.logger.Warn("Start approval not applied", "error", err)
		return nil
	}
	s.changed()
	return nil
}

func (s *Sequencer) onPlayed(ctx context.Context, env event.Envelope) error {
	var p event.PlayPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	out, err := s.game.Play(ctx, p.PlayerID, p.CardIndex)
	var violation *hearts.RuleViolation
	switch {
	case errors.Is(err, hearts.ErrUnknownPlayer):
		s.logger.Warn("Play from unknown player", "player", p.PlayerID)
		return nil
	case errors.As(err, &violation):
		s.logger.Debug("Play rejected", "player", p.PlayerID, "index", p.CardIndex, "reason", violation.Reason())
		return s.tell(ctx, p.PlayerID, violation.Reason(), env.Type)
	case err != nil:
		s.logger.Debug("Play rejected", "player", p.PlayerID, "error", err)
		return s.tell(ctx, p.PlayerID, err.Error(), env.Type)
	}

	accepted := event.PlayAcceptedPayload{
		PlayerID:     out.PlayerID,
		Card:         out.Card,
		Points:       out.Points,
		TurnNumber:   out.TurnNumber,
		HeartsBroken: out.HeartsBroken,
		NextPlayerID: out.NextPlayerID,
	}
	if _, err := s.exchange.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Accepted(c, accepted)
	}); err != nil {
		return err
	}
	if !out.Ended {
		return nil
	}

	res, _ := s.game.Result()
	_, err = s.primary.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Ended(c, endedPayload(res))
	})
	return err
}

func (s *Sequencer) onEnded(ctx context.Context, env event.Envelope) error {
	var p event.GameEndedPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	s.logger.Info("Game over", "winner", p.WinnerID, "tie", p.Tie)
	s.changed()
	_, err := s.exchange.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Ended(c, p)
	})
	return err
}

func (s *Sequencer) onRestart(ctx context.Context, env event.Envelope) error {
	var p event.PlayerPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := s.game.Restart(); err != nil {
		if _, known := s.game.Registry().Player(p.PlayerID); known {
			return s.tell(ctx, p.PlayerID, err.Error(), env.Type)
		}
		s.logger.Warn("Restart not applied", "player", p.PlayerID, "error", err)
		return nil
	}
	s.changed()
	return nil
}

// onGameUpdated pushes each recipient its own view of the game.
func (s *Sequencer) onGameUpdated(ctx context.Context, env event.Envelope) error {
	var errs []error
	for _, id := range s.game.Registry().Recipients() {
		st, err := s.privateStream(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snap := s.game.Snapshot(id)
		if _, err := st.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
			return event.New(c, event.GameUpdated, snap)
		}); err != nil {
			errs = append(errs, fmt.Errorf("snapshot to %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// fanOut copies an exchange event onto every recipient's private queue.
func (s *Sequencer) fanOut(ctx context.Context, env event.Envelope) error {
	var errs []error
	for _, id := range s.game.Registry().Recipients() {
		st, err := s.privateStream(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := st.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
			return event.New(c, env.Type, env.Payload)
		}); err != nil {
			errs = append(errs, fmt.Errorf("%s to %s: %w", env.Type, id, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sequencer) onMessage(ctx context.Context, env event.Envelope) error {
	var p event.MessagePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if _, ok := s.game.Registry().Player(p.PlayerID); !ok {
		s.logger.Warn("Message for unknown player", "player", p.PlayerID)
		return nil
	}
	return s.tell(ctx, p.PlayerID, p.Message, p.Cause)
}

func (s *Sequencer) onSubscribed(ctx context.Context, env event.Envelope) error {
	var p event.SubscribePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.PlayerID == "" {
		return fmt.Errorf("subscribe without player id")
	}
	if s.game.Subscribe(p.Name, p.PlayerID) {
		s.changed()
	}
	_, err := s.privateStream(ctx, p.PlayerID)
	return err
}

// tell sends a private message to one player.
func (s *Sequencer) tell(ctx context.Context, playerID, message string, cause event.Type) error {
	st, err := s.privateStream(ctx, playerID)
	if err != nil {
		return err
	}
	msg := event.MessagePayload{PlayerID: playerID, Message: message, Cause: cause}
	_, err = st.Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Message(c, msg)
	})
	return err
}

func endedPayload(res hearts.Result) event.GameEndedPayload {
	p := event.GameEndedPayload{WinnerID: res.WinnerID, Tie: res.Tie}
	for _, st := range res.Standings {
		p.Standings = append(p.Standings, event.Standing{PlayerID: st.PlayerID, Name: st.Name, Points: st.Points})
	}
	return p
}
