package hearts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/heartsrealm/internal/deck"
)

func hand(s string) Player {
	return Player{ID: "p", Hand: deck.MustParseCards(s)}
}

func pile(s string) []deck.Card {
	return deck.MustParseCards(s)
}

func TestHeartsRules(t *testing.T) {
	tests := []struct {
		name   string
		state  TrickState
		player Player
		index  int
		want   error
	}{
		{
			name:   "first lead must be two of clubs",
			player: hand("2c5dKh"),
			index:  1,
			want:   ErrMustLeadTwoOfClubs,
		},
		{
			name:   "two of clubs opens the game",
			player: hand("5d2cKh"),
			index:  1,
		},
		{
			name:   "index past the hand",
			player: hand("2c"),
			index:  1,
			want:   ErrCardIndex,
		},
		{
			name:   "negative index",
			player: hand("2c"),
			index:  -1,
			want:   ErrCardIndex,
		},
		{
			name:   "no hearts lead before broken",
			state:  TrickState{Pile: pile("2c3c4c5c")},
			player: hand("4h9d"),
			index:  0,
			want:   ErrHeartsNotBroken,
		},
		{
			name:   "hearts lead from an all hearts hand",
			state:  TrickState{Pile: pile("2c3c4c5c")},
			player: hand("4h9h"),
			index:  0,
		},
		{
			name:   "hearts lead once broken",
			state:  TrickState{Pile: pile("2c3c4c5c"), HeartsBroken: true},
			player: hand("4h9d"),
			index:  0,
		},
		{
			name:   "no hearts on the first trick",
			state:  TrickState{Pile: pile("2c")},
			player: hand("4h9d"),
			index:  0,
			want:   ErrNoPointsOnFirstTrick,
		},
		{
			name:   "no queen of spades on the first trick",
			state:  TrickState{Pile: pile("2c3c")},
			player: hand("Qs9d"),
			index:  0,
			want:   ErrNoPointsOnFirstTrick,
		},
		{
			name:   "first trick discard of a plain card",
			state:  TrickState{Pile: pile("2c")},
			player: hand("4h9d"),
			index:  1,
		},
		{
			name:   "first trick with only point cards",
			state:  TrickState{Pile: pile("2c")},
			player: hand("4hQs"),
			index:  1,
		},
		{
			name:   "must follow clubs on the first trick",
			state:  TrickState{Pile: pile("2c")},
			player: hand("9d3c"),
			index:  0,
			want:   ErrMustFollowSuit,
		},
		{
			name:   "must follow the led suit",
			state:  TrickState{Pile: pile("2c3c4c5cKd")},
			player: hand("7s2d"),
			index:  0,
			want:   ErrMustFollowSuit,
		},
		{
			name:   "void in the led suit may discard",
			state:  TrickState{Pile: pile("2c3c4c5cKd")},
			player: hand("7sAh"),
			index:  1,
		},
		{
			name:   "following suit is legal",
			state:  TrickState{Pile: pile("2c3c4c5cKd")},
			player: hand("7s2d"),
			index:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := HeartsRules{}.Validate(tt.state, tt.player, tt.index)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
			var v *RuleViolation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.want.Error(), v.Reason())
		})
	}
}

func TestHeartsRulesDeterministic(t *testing.T) {
	state := TrickState{Pile: pile("2c3c4c5cKd")}
	player := hand("7s2dAh")
	for i := range player.Hand {
		first := HeartsRules{}.Validate(state, player, i)
		for range 5 {
			assert.Equal(t, first, HeartsRules{}.Validate(state, player, i))
		}
	}
}

func TestHeartsRulesDoesNotMutate(t *testing.T) {
	state := TrickState{Pile: pile("2c")}
	player := hand("4h9d3c")
	before := append([]deck.Card(nil), player.Hand...)
	_ = HeartsRules{}.Validate(state, player, 0)
	assert.Equal(t, before, player.Hand)
	assert.Len(t, state.Pile, 1)
}

func TestLegalIndexes(t *testing.T) {
	assert.Equal(t, []int{1}, LegalIndexes(HeartsRules{}, TrickState{}, hand("5d2cKh")))
	assert.Equal(t, []int{1, 2}, LegalIndexes(HeartsRules{}, TrickState{Pile: pile("2c3c4c5cKd")}, hand("7s2dJd")))
}

func TestTrickState(t *testing.T) {
	s := TrickState{Pile: pile("2c3c4c5c9s")}
	assert.False(t, s.FirstTrick())
	assert.False(t, s.Leading())
	led, ok := s.LedSuit()
	require.True(t, ok)
	assert.Equal(t, deck.Spades, led)

	_, ok = TrickState{}.LedSuit()
	assert.False(t, ok)
}
