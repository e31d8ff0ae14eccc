package hearts

import (
	"slices"

	"github.com/lox/heartsrealm/internal/deck"
)

// Player is a seated player or a viewer. Viewers have Seat == -1 and never
// hold cards.
type Player struct {
	ID            string
	Name          string
	Seat          int
	Hand          []deck.Card
	Played        int // cards this seat has put on the pile
	Points        int
	IsTheirTurn   bool
	IsFirstPlayer bool
}

// IsViewer reports whether the player watches without a seat.
func (p Player) IsViewer() bool {
	return p.Seat < 0
}

// OnlyHearts reports whether every card in the hand is a heart.
func (p Player) OnlyHearts() bool {
	return len(p.Hand) > 0 && !slices.ContainsFunc(p.Hand, func(c deck.Card) bool { return !c.IsHeart() })
}

// HoldsSuit reports whether the hand contains a card of suit s.
func (p Player) HoldsSuit(s deck.Suit) bool {
	return slices.ContainsFunc(p.Hand, func(c deck.Card) bool { return c.Suit == s })
}

func (p *Player) clone() Player {
	cp := *p
	cp.Hand = slices.Clone(p.Hand)
	return cp
}

func sortHand(hand []deck.Card) {
	slices.SortFunc(hand, func(a, b deck.Card) int {
		if a.Suit != b.Suit {
			return int(a.Suit) - int(b.Suit)
		}
		return int(a.Rank) - int(b.Rank)
	})
}
