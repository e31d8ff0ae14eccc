package hearts

import (
	"encoding/json"

	"github.com/lox/heartsrealm/internal/deck"
)

// CardView is a card as one recipient may see it. Cards in other players'
// hands are hidden.
type CardView struct {
	Card   deck.Card
	Hidden bool
}

// MarshalJSON renders hidden cards as {"hidden":true}.
func (v CardView) MarshalJSON() ([]byte, error) {
	if v.Hidden {
		return []byte(`{"hidden":true}`), nil
	}
	return json.Marshal(v.Card)
}

// PlayerView is a player as one recipient may see them.
type PlayerView struct {
	Name          string     `json:"name"`
	ID            string     `json:"id"`
	Seat          int        `json:"seat"`
	Points        int        `json:"points"`
	IsTheirTurn   bool       `json:"isTheirTurn"`
	IsFirstPlayer bool       `json:"isFirstPlayer"`
	Hand          []CardView `json:"hand"`
}

// Snapshot is the state pushed to one subscriber after every accepted
// mutation. Deck is the recipient's own hand.
type Snapshot struct {
	GameID       string       `json:"gameId"`
	Deck         []CardView   `json:"deck"`
	PlayedDeck   []deck.Card  `json:"playedDeck"`
	Players      []PlayerView `json:"players"`
	GameState    State        `json:"gameState"`
	HeartsBroken bool         `json:"heartsBroken"`
	TurnNumber   int          `json:"turnNumber"`
}

// Snapshot renders the game for recipientID. Only the recipient's own cards
// are visible.
func (g *Game) Snapshot(recipientID string) Snapshot {
	snap := Snapshot{
		GameID:       g.ID,
		Deck:         []CardView{},
		PlayedDeck:   g.registry.Pile(),
		GameState:    g.State(),
		HeartsBroken: g.HeartsBroken(),
		TurnNumber:   g.registry.TurnNumber(),
	}
	if snap.PlayedDeck == nil {
		snap.PlayedDeck = []deck.Card{}
	}

	for _, p := range g.registry.Players() {
		own := p.ID == recipientID
		hand := make([]CardView, len(p.Hand))
		for i, c := range p.Hand {
			hand[i] = CardView{Card: c, Hidden: !own}
		}
		if own {
			snap.Deck = hand
		}
		snap.Players = append(snap.Players, PlayerView{
			Name:          p.Name,
			ID:            p.ID,
			Seat:          p.Seat,
			Points:        p.Points,
			IsTheirTurn:   p.IsTheirTurn,
			IsFirstPlayer: p.IsFirstPlayer,
			Hand:          hand,
		})
	}
	return snap
}
