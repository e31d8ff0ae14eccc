package hearts

import (
	"errors"
	"fmt"

	"github.com/lox/heartsrealm/internal/deck"
)

// Reasons a card can be refused.
var (
	ErrCardIndex            = errors.New("no card at that index")
	ErrMustLeadTwoOfClubs   = errors.New("must lead 2 of Clubs")
	ErrHeartsNotBroken      = errors.New("hearts cannot be led until hearts are broken")
	ErrNoPointsOnFirstTrick = errors.New("hearts and the Queen of Spades cannot be played on the first trick")
	ErrMustFollowSuit       = errors.New("must follow the led suit")
)

// RuleViolation explains why a card was refused. Err is one of the reason
// sentinels above.
type RuleViolation struct {
	Index int
	Card  deck.Card
	Err   error
}

func (v *RuleViolation) Error() string {
	if errors.Is(v.Err, ErrCardIndex) {
		return fmt.Sprintf("card %d: %v", v.Index, v.Err)
	}
	return fmt.Sprintf("%s: %v", v.Card, v.Err)
}

func (v *RuleViolation) Unwrap() error { return v.Err }

// Reason is the human readable rejection sent back to the player.
func (v *RuleViolation) Reason() string { return v.Err.Error() }

// TrickState is the part of a game a rule engine may look at.
type TrickState struct {
	Pile         []deck.Card
	HeartsBroken bool
}

// FirstTrick reports whether the first four cards are still being played.
func (t TrickState) FirstTrick() bool {
	return len(t.Pile) < Seats
}

// Leading reports whether the next card opens a trick.
func (t TrickState) Leading() bool {
	return len(t.Pile)%Seats == 0
}

// LedSuit returns the suit of the card that opened the current trick.
func (t TrickState) LedSuit() (deck.Suit, bool) {
	if t.Leading() {
		return 0, false
	}
	return t.Pile[len(t.Pile)/Seats*Seats].Suit, true
}

// RuleEngine decides whether a player may play the card at index. It must
// not mutate its inputs; a nil error means the card is legal.
type RuleEngine interface {
	Validate(state TrickState, player Player, index int) error
}

// HeartsRules is the standard Hearts validity check.
type HeartsRules struct{}

var _ RuleEngine = HeartsRules{}

// Validate applies the checks in a fixed order and stops at the first failure.
func (HeartsRules) Validate(state TrickState, player Player, index int) error {
	if index < 0 || index >= len(player.Hand) {
		return &RuleViolation{Index: index, Err: ErrCardIndex}
	}
	card := player.Hand[index]
	refuse := func(err error) error {
		return &RuleViolation{Index: index, Card: card, Err: err}
	}

	if len(state.Pile) == 0 && card != deck.TwoOfClubs {
		return refuse(ErrMustLeadTwoOfClubs)
	}

	if state.Leading() && card.IsHeart() && !state.HeartsBroken && !player.OnlyHearts() {
		return refuse(ErrHeartsNotBroken)
	}

	// A hand of nothing but point cards has to be allowed to play one.
	if state.FirstTrick() && isPointCard(card) && !onlyPointCards(player.Hand) {
		return refuse(ErrNoPointsOnFirstTrick)
	}

	if led, ok := state.LedSuit(); ok && card.Suit != led && player.HoldsSuit(led) {
		return refuse(ErrMustFollowSuit)
	}

	return nil
}

// LegalIndexes lists every index rules accept for player.
func LegalIndexes(rules RuleEngine, state TrickState, player Player) []int {
	var legal []int
	for i := range player.Hand {
		if rules.Validate(state, player, i) == nil {
			legal = append(legal, i)
		}
	}
	return legal
}

func isPointCard(c deck.Card) bool {
	return c.IsHeart() || c == deck.QueenOfSpades
}

func onlyPointCards(hand []deck.Card) bool {
	for _, c := range hand {
		if !isPointCard(c) {
			return false
		}
	}
	return true
}
