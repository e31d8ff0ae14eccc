package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// Suits lists every suit in deck order.
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// Name returns the lowercase wire name of the suit.
func (s Suit) Name() string {
	switch s {
	case Spades:
		return "spades"
	case Hearts:
		return "hearts"
	case Diamonds:
		return "diamonds"
	case Clubs:
		return "clubs"
	default:
		return "unknown"
	}
}

// MarshalText encodes the suit by name so envelopes stay readable.
func (s Suit) MarshalText() ([]byte, error) {
	if s < Spades || s > Clubs {
		return nil, fmt.Errorf("invalid suit %d", int(s))
	}
	return []byte(s.Name()), nil
}

// UnmarshalText decodes a suit name.
func (s *Suit) UnmarshalText(text []byte) error {
	for _, candidate := range Suits {
		if candidate.Name() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("invalid suit %q", string(text))
}

// Rank represents a card rank. Ranks run from 1 (Two) to 13 (Ace) so the
// ordinal doubles as the rank's scoring weight.
type Rank int

const (
	Two Rank = iota + 1
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// MinRank and MaxRank bound valid ranks.
const (
	MinRank = Two
	MaxRank = Ace
)

var rankSymbols = "23456789TJQKA"

// String returns the string representation of a rank
func (r Rank) String() string {
	if r < MinRank || r > MaxRank {
		return "?"
	}
	return string(rankSymbols[r-1])
}

// Card represents a playing card
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// Cards the Hearts rules single out.
var (
	TwoOfClubs    = Card{Suit: Clubs, Rank: Two}
	QueenOfSpades = Card{Suit: Spades, Rank: Queen}
)

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// String returns the string representation of a card (e.g., "Q♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Valid reports whether the card has a known suit and rank.
func (c Card) Valid() bool {
	return c.Suit >= Spades && c.Suit <= Clubs && c.Rank >= MinRank && c.Rank <= MaxRank
}

// IsHeart returns true for any card of the Hearts suit.
func (c Card) IsHeart() bool {
	return c.Suit == Hearts
}

// ParseCard parses a two character card such as "2c" or "Qs".
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	rank := strings.IndexByte(rankSymbols, strings.ToUpper(s[:1])[0])
	if rank < 0 {
		return Card{}, fmt.Errorf("invalid rank in %q", s)
	}
	var suit Suit
	switch strings.ToLower(s[1:]) {
	case "s":
		suit = Spades
	case "h":
		suit = Hearts
	case "d":
		suit = Diamonds
	case "c":
		suit = Clubs
	default:
		return Card{}, fmt.Errorf("invalid suit in %q", s)
	}
	return NewCard(suit, Rank(rank+1)), nil
}

// ParseCards parses a concatenated card string such as "2cQsTh".
func ParseCards(s string) ([]Card, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("card string %q has odd length", s)
	}
	cards := make([]Card, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		card, err := ParseCard(s[i : i+2])
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// MustParseCards is ParseCards for fixtures; it panics on malformed input.
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}
