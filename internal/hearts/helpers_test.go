package hearts

import (
	"fmt"
	"io"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/lox/heartsrealm/internal/deck"
	"github.com/lox/heartsrealm/internal/randutil"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newTestGame(seed int64) *Game {
	return NewGame("g1", WithRNG(randutil.New(seed)), WithLogger(testLogger()))
}

// seatFour joins p0..p3 and returns the admission of the last one.
func seatFour(t *testing.T, g *Game) Admission {
	t.Helper()
	var adm Admission
	for i := range Seats {
		var err error
		adm, err = g.Join(fmt.Sprintf("Player %d", i), fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	return adm
}

// riggedGame seats four players holding the given hands and starts the game
// with the 2 of Clubs holder on turn.
func riggedGame(t *testing.T, hands ...string) *Game {
	t.Helper()
	require.Len(t, hands, Seats)
	g := newTestGame(1)
	seatFour(t, g)
	for i, p := range g.registry.seats {
		p.Hand = deck.MustParseCards(hands[i])
		holder := slices.Contains(p.Hand, deck.TwoOfClubs)
		p.IsTheirTurn = holder
		p.IsFirstPlayer = holder
	}
	g.state = Started
	return g
}

// playRandomGame plays legal cards until the game ends, checking hand
// conservation after every play.
func playRandomGame(t *testing.T, g *Game, pick func(legal []int) int) {
	t.Helper()
	for plays := 0; g.State() == Started; plays++ {
		require.Less(t, plays, deck.Size, "game did not end after every card was played")

		id, ok := g.registry.CurrentTurn()
		require.True(t, ok)
		p, _ := g.registry.Player(id)
		legal := LegalIndexes(g.Rules(), g.TrickState(), p)
		require.NotEmpty(t, legal, "player %s has no legal card", id)

		_, err := g.Play(t.Context(), id, legal[pick(legal)])
		require.NoError(t, err)

		for _, seat := range g.registry.Players() {
			require.Equal(t, HandSize, len(seat.Hand)+seat.Played, "hand conservation broken for %s", seat.ID)
		}
	}
}
