package sequencer

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/event"
	"github.com/lox/heartsrealm/internal/hearts"
	"github.com/lox/heartsrealm/internal/randutil"
)

const testGameID = "g1"

var testPlayers = []string{"p0", "p1", "p2", "p3"}

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestSequencer(t *testing.T, opts ...Option) (*Sequencer, *broker.Memory) {
	t.Helper()
	mem := broker.NewMemory(0, testLogger())
	t.Cleanup(func() { _ = mem.Close() })

	game := hearts.NewGame(testGameID, hearts.WithRNG(randutil.New(42)), hearts.WithLogger(testLogger()))
	opts = append([]Option{WithLogger(testLogger()), WithGame(game)}, opts...)
	seq, err := New(context.Background(), testGameID, mem, opts...)
	require.NoError(t, err)
	return seq, mem
}

// envelope builds a raw envelope with an explicit version.
func envelope(t *testing.T, typ event.Type, version uint64, payload any) []byte {
	t.Helper()
	env, err := event.New(&event.Counter{}, typ, payload)
	require.NoError(t, err)
	env.Version = version
	body, err := env.Marshal()
	require.NoError(t, err)
	return body
}

// nextOfType reads from sub until an envelope of typ arrives.
func nextOfType(t *testing.T, sub broker.Subscription, typ event.Type) event.Envelope {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case d, ok := <-sub.C():
			require.True(t, ok, "subscription closed waiting for %s", typ)
			env, err := event.Parse(d.Body)
			require.NoError(t, err)
			if env.Type == typ {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// playOut drives a dealt and started game to the end with the first legal
// card each turn.
func playOut(t *testing.T, g *hearts.Game) {
	t.Helper()
	ctx := context.Background()
	reg := g.Registry()
	for g.State() == hearts.Started {
		id, ok := reg.CurrentTurn()
		require.True(t, ok)
		p, _ := reg.Player(id)
		legal := hearts.LegalIndexes(g.Rules(), g.TrickState(), p)
		require.NotEmpty(t, legal)
		_, err := g.Play(ctx, id, legal[0])
		require.NoError(t, err)
	}
}

// startedSnapshot reads game-updated snapshots until one shows a running game.
func startedSnapshot(t *testing.T, sub broker.Subscription) event.Envelope {
	t.Helper()
	for {
		env := nextOfType(t, sub, event.GameUpdated)
		var head struct {
			GameState string `json:"gameState"`
		}
		require.NoError(t, env.Decode(&head))
		if head.GameState == hearts.Started.String() {
			return env
		}
	}
}

// waitTurnPassed blocks until id no longer holds the turn.
func waitTurnPassed(t *testing.T, g *hearts.Game, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		cur, _ := g.Registry().CurrentTurn()
		return cur != id || g.State() == hearts.Ended
	}, 5*time.Second, time.Millisecond)
}
