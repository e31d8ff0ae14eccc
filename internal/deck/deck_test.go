package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/heartsrealm/internal/randutil"
)

func TestDeckDealsEveryCardOnce(t *testing.T) {
	d := NewDeck(randutil.New(7))
	d.Shuffle()

	seen := make(map[Card]bool, Size)
	for range 4 {
		hand := d.DealN(13)
		require.Len(t, hand, 13)
		for _, c := range hand {
			require.True(t, c.Valid(), "invalid card %v", c)
			require.False(t, seen[c], "duplicate card %v", c)
			seen[c] = true
		}
	}
	assert.Len(t, seen, Size)
	assert.Equal(t, 0, d.CardsRemaining())

	_, ok := d.Deal()
	assert.False(t, ok)
	assert.Empty(t, d.DealN(3))
}

func TestDeckResetIsDeterministicPerSeed(t *testing.T) {
	a := NewDeck(randutil.New(42))
	b := NewDeck(randutil.New(42))
	a.Reset()
	b.Reset()
	assert.Equal(t, a.DealN(Size), b.DealN(Size))
}
