package bot

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/heartsrealm/internal/hearts"
)

// RandBot picks a uniformly random legal card.
type RandBot struct {
	rng *rand.Rand
}

// NewRandBot creates a RandBot drawing from rng.
func NewRandBot(rng *rand.Rand) *RandBot {
	return &RandBot{rng: rng}
}

func (r *RandBot) Name() string { return "random" }

func (r *RandBot) Choose(_ hearts.TrickState, _ hearts.Player, legal []int) int {
	return legal[r.rng.IntN(len(legal))]
}

// LowBot dumps its lowest legal card, keeping turn-weighted points small
// early on.
type LowBot struct{}

func (LowBot) Name() string { return "low" }

func (LowBot) Choose(_ hearts.TrickState, p hearts.Player, legal []int) int {
	best := legal[0]
	for _, i := range legal[1:] {
		if p.Hand[i].Rank < p.Hand[best].Rank {
			best = i
		}
	}
	return best
}

// HighBot plays its highest legal card.
type HighBot struct{}

func (HighBot) Name() string { return "high" }

func (HighBot) Choose(_ hearts.TrickState, p hearts.Player, legal []int) int {
	best := legal[0]
	for _, i := range legal[1:] {
		if p.Hand[i].Rank > p.Hand[best].Rank {
			best = i
		}
	}
	return best
}

// NewStrategy returns the strategy called name.
func NewStrategy(name string, rng *rand.Rand) (Strategy, error) {
	switch name {
	case "random", "rand":
		return NewRandBot(rng), nil
	case "low":
		return LowBot{}, nil
	case "high":
		return HighBot{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
