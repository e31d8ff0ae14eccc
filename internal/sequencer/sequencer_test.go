package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/deck"
	"github.com/lox/heartsrealm/internal/event"
	"github.com/lox/heartsrealm/internal/hearts"
)

func TestGateAdmitsOnlyNextVersion(t *testing.T) {
	var g Gate
	assert.False(t, g.Admit(0))
	assert.False(t, g.Admit(2))
	assert.True(t, g.Admit(1))
	assert.False(t, g.Admit(1), "duplicate")
	assert.True(t, g.Admit(2))
	assert.False(t, g.Admit(4))
	assert.Equal(t, uint64(2), g.Latest())
}

func TestGateIsMonotonic(t *testing.T) {
	var g Gate
	versions := []uint64{3, 1, 1, 2, 5, 4, 3, 6, 2, 5, 7}
	var admitted []uint64
	latest := uint64(0)
	for _, v := range versions {
		if g.Admit(v) {
			admitted = append(admitted, v)
		}
		require.GreaterOrEqual(t, g.Latest(), latest)
		latest = g.Latest()
	}
	assert.Equal(t, []uint64{1, 2, 3}, admitted, "only a consecutive run from 1 is admitted")
	assert.Equal(t, uint64(3), latest)
}

func TestOutOfOrderEventIsDropped(t *testing.T) {
	seq, _ := newTestSequencer(t)
	ctx := context.Background()
	reg := seq.Game().Registry()

	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 1, event.JoinPayload{PlayerID: "p0", Name: "Ann"})))
	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 3, event.JoinPayload{PlayerID: "p2", Name: "Cat"})))

	assert.Equal(t, uint64(1), seq.Stats().Primary.Latest)
	assert.Equal(t, 1, reg.SeatCount())
	_, known := reg.Player("p2")
	assert.False(t, known)

	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 2, event.JoinPayload{PlayerID: "p1", Name: "Bob"})))
	assert.Equal(t, 2, reg.SeatCount())

	stats := seq.Stats()
	assert.Equal(t, uint64(2), stats.Primary.Latest)
	assert.Equal(t, uint64(2), stats.Primary.Applied)
	assert.Equal(t, uint64(1), stats.Primary.Dropped)
}

func TestStreamsAreGatedIndependently(t *testing.T) {
	seq, _ := newTestSequencer(t)
	ctx := context.Background()

	require.NoError(t, seq.Apply(ctx, Exchange, envelope(t, event.PlayerSubscribed, 1, event.SubscribePayload{PlayerID: "watcher"})))
	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 1, event.JoinPayload{PlayerID: "p0"})))

	stats := seq.Stats()
	assert.Equal(t, uint64(1), stats.Primary.Latest)
	assert.Equal(t, uint64(1), stats.Exchange.Latest)
}

func TestMalformedEnvelopeIsDropped(t *testing.T) {
	seq, _ := newTestSequencer(t)
	require.NoError(t, seq.Apply(context.Background(), Primary, []byte("{not json")))
	assert.Equal(t, uint64(0), seq.Stats().Primary.Latest)
	assert.Equal(t, uint64(1), seq.Stats().Primary.Dropped)
}

func TestUnknownEventTypeIsFatal(t *testing.T) {
	seq, _ := newTestSequencer(t)
	err := seq.Apply(context.Background(), Primary, envelope(t, event.Type("player-danced"), 1, struct{}{}))
	require.ErrorIs(t, err, ErrUnknownEventType)
	assert.Equal(t, uint64(1), seq.Stats().Primary.Latest)

	// broadcast types are not commands on the primary stream
	err = seq.Apply(context.Background(), Primary, envelope(t, event.GameUpdated, 2, event.GameUpdatedPayload{}))
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestRunStopsOnUnknownEventType(t *testing.T) {
	seq, mem := newTestSequencer(t)
	require.NoError(t, mem.Publish(context.Background(), broker.GameQueue(testGameID),
		envelope(t, event.Type("player-danced"), 1, struct{}{})))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := seq.Run(ctx)
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestRunReturnsNilWhenCancelled(t *testing.T) {
	seq, _ := newTestSequencer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sequencer did not stop")
	}
}

func TestEndedGameIgnoresCommands(t *testing.T) {
	seq, _ := newTestSequencer(t)
	g := seq.Game()
	for _, id := range testPlayers {
		_, err := g.Join(id, id)
		require.NoError(t, err)
	}
	require.NoError(t, g.Deal())
	require.NoError(t, g.Start())
	playOut(t, g)
	require.Equal(t, hearts.Ended, g.State())

	ctx := context.Background()
	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 1, event.JoinPayload{PlayerID: "late"})))
	_, known := g.Registry().Player("late")
	assert.False(t, known)
	assert.Equal(t, uint64(1), seq.Stats().Primary.Latest, "gate still advances")
	assert.Equal(t, uint64(0), seq.Exchange().Version(), "no broadcast for ignored events")

	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.GameRestartRequested, 2, event.PlayerPayload{PlayerID: "p0"})))
	assert.Equal(t, hearts.NotStarted, g.State())
	assert.Equal(t, uint64(1), seq.Exchange().Version())
}

func TestExchangeEventsTriggerBroadcast(t *testing.T) {
	seq, mem := newTestSequencer(t)
	ctx := context.Background()
	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 1, event.JoinPayload{PlayerID: "p0", Name: "Ann"})))
	require.Equal(t, uint64(1), seq.Exchange().Version())

	sub, err := mem.Subscribe(ctx, broker.ExchangeQueue(testGameID))
	require.NoError(t, err)
	defer sub.Close()
	joined := nextOfType(t, sub, event.GameUpdated)
	assert.Equal(t, uint64(1), joined.Version)

	tests := []struct {
		typ     event.Type
		payload any
	}{
		{event.PlayAccepted, event.PlayAcceptedPayload{PlayerID: "p0", Card: deck.TwoOfClubs, Points: 1, TurnNumber: 1}},
		{event.MessageToPlayer, event.MessagePayload{PlayerID: "p0", Message: "hello"}},
		{event.GameEnded, event.GameEndedPayload{WinnerID: "p0"}},
		{event.GameUpdated, event.GameUpdatedPayload{Cause: event.PlayerWantsToJoin, Version: 1}},
	}
	for i, tt := range tests {
		version := uint64(i + 1)
		before := seq.Exchange().Version()
		require.NoError(t, seq.Apply(ctx, Exchange, envelope(t, tt.typ, version, tt.payload)))
		assert.Equal(t, version, seq.Stats().Exchange.Latest)

		if tt.typ == event.GameUpdated {
			assert.Equal(t, before, seq.Exchange().Version(), "game-updated is not rebroadcast")
			continue
		}
		assert.Equal(t, before+1, seq.Exchange().Version(), "%s should be followed by game-updated", tt.typ)
		env := nextOfType(t, sub, event.GameUpdated)
		var p event.GameUpdatedPayload
		require.NoError(t, env.Decode(&p))
		assert.Equal(t, tt.typ, p.Cause)
		assert.Equal(t, version, p.Version)
	}
}

func TestStallWatchdog(t *testing.T) {
	mClock := quartz.NewMock(t)
	seq, _ := newTestSequencer(t, WithClock(mClock), WithStallTimeout(10*time.Second))
	ctx := context.Background()

	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 1, event.JoinPayload{PlayerID: "p0"})))
	assert.False(t, seq.checkStall())

	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 3, event.JoinPayload{PlayerID: "p2"})))
	assert.False(t, seq.checkStall(), "gap is fresh")
	mClock.Advance(10 * time.Second).MustWait(ctx)
	assert.True(t, seq.checkStall())
	assert.True(t, seq.checkStall(), "stays stalled until something applies")

	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 2, event.JoinPayload{PlayerID: "p1"})))
	assert.False(t, seq.checkStall())

	// a stale duplicate is not a gap
	require.NoError(t, seq.Apply(ctx, Primary, envelope(t, event.PlayerWantsToJoin, 1, event.JoinPayload{PlayerID: "p0"})))
	mClock.Advance(10 * time.Second).MustWait(ctx)
	assert.False(t, seq.checkStall())
}

func TestGameFlowThroughBroker(t *testing.T) {
	seq, mem := newTestSequencer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- seq.Run(ctx) }()

	g := seq.Game()
	reg := g.Registry()

	for _, id := range testPlayers {
		_, err := seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
			return event.Join(c, event.JoinPayload{PlayerID: id, Name: id})
		})
		require.NoError(t, err)
	}
	require.Eventually(t, reg.HaveAnyPlayersCards, 5*time.Second, 5*time.Millisecond)

	first, ok := reg.CurrentTurn()
	require.True(t, ok)
	p, _ := reg.Player(first)
	assert.Contains(t, p.Hand, deck.TwoOfClubs)

	watcher := "p1"
	if first == watcher {
		watcher = "p2"
	}
	sub, err := mem.Subscribe(ctx, broker.PlayerQueue(testGameID, watcher))
	require.NoError(t, err)
	defer sub.Close()

	_, err = seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.StartRequest(c, event.PlayerPayload{PlayerID: watcher})
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return g.State() == hearts.Started }, 5*time.Second, 5*time.Millisecond)

	snap := startedSnapshot(t, sub)
	var view struct {
		Deck    []json.RawMessage `json:"deck"`
		Players []struct {
			ID   string            `json:"id"`
			Hand []json.RawMessage `json:"hand"`
		} `json:"players"`
	}
	require.NoError(t, snap.Decode(&view))
	assert.Len(t, view.Deck, hearts.HandSize)
	for _, pl := range view.Players {
		for _, c := range pl.Hand {
			if pl.ID == watcher {
				assert.NotContains(t, string(c), "hidden")
			} else {
				assert.JSONEq(t, `{"hidden":true}`, string(c))
			}
		}
	}

	// a play out of turn earns a private message and changes nothing
	_, err = seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
		return event.Play(c, event.PlayPayload{PlayerID: watcher, CardIndex: 0})
	})
	require.NoError(t, err)
	msg := nextOfType(t, sub, event.MessageToPlayer)
	var m event.MessagePayload
	require.NoError(t, msg.Decode(&m))
	assert.Equal(t, hearts.ErrNotYourTurn.Error(), m.Message)
	assert.Equal(t, event.PlayerPlayed, m.Cause)
	assert.Empty(t, reg.Pile())

	for g.State() == hearts.Started {
		id, ok := reg.CurrentTurn()
		require.True(t, ok)
		p, _ := reg.Player(id)
		legal := hearts.LegalIndexes(g.Rules(), g.TrickState(), p)
		require.NotEmpty(t, legal)
		play := event.PlayPayload{PlayerID: id, CardIndex: legal[0]}
		_, err := seq.Primary().Emit(ctx, func(c *event.Counter) (event.Envelope, error) {
			return event.Play(c, play)
		})
		require.NoError(t, err)
		waitTurnPassed(t, g, id)
	}

	ended := nextOfType(t, sub, event.GameEnded)
	var res event.GameEndedPayload
	require.NoError(t, ended.Decode(&res))
	assert.Len(t, res.Standings, hearts.Seats)
	result, ok := g.Result()
	require.True(t, ok)
	assert.Equal(t, result.WinnerID, res.WinnerID)
	assert.False(t, reg.HaveAnyPlayersCards())

	cancel()
	select {
	case err := <-runErr:
		assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("sequencer did not stop")
	}
}

func TestNewFailsWhenBrokerIsDown(t *testing.T) {
	mem := broker.NewMemory(0, testLogger())
	require.NoError(t, mem.Close())
	_, err := New(context.Background(), testGameID, mem, WithLogger(testLogger()))
	require.ErrorIs(t, err, broker.ErrClosed)
}
