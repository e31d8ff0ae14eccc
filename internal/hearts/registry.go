package hearts

import (
	rand "math/rand/v2"
	"slices"
	"sync"

	"github.com/lox/heartsrealm/internal/deck"
)

const (
	// Seats is the number of players a game needs.
	Seats = 4
	// HandSize is the number of cards dealt to each seat.
	HandSize = deck.Size / Seats
)

// Admission reports the outcome of AddPlayer.
type Admission struct {
	Seat      int
	Viewer    bool
	Duplicate bool
	// Ready is set when this admission filled the last seat.
	Ready bool
}

// PlayResult is what ExecutePlay hands back.
type PlayResult struct {
	Card       deck.Card
	Points     int
	TurnNumber int
}

// Registry owns the roster, the hands, the played pile and the turn of one
// game. Reads are safe from any goroutine; ExecutePlay and AdvanceTurn also
// require the caller to hold the registry's turn guard.
type Registry struct {
	mu         sync.RWMutex
	seats      []*Player
	viewers    []*Player
	byID       map[string]*Player
	pile       []deck.Card
	turnNumber int
	turn       *TurnMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:       make(map[string]*Player),
		turnNumber: 1,
		turn:       NewTurnMutex(),
	}
}

// Turn returns the mutex guarding plays.
func (r *Registry) Turn() *TurnMutex {
	return r.turn
}

// AddPlayer seats a new player, or admits a viewer once every seat is taken.
// A known id is a no-op. Seat 0 holds the turn until cards are dealt.
func (r *Registry) AddPlayer(name, id string) Admission {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byID[id]; ok {
		return Admission{Seat: p.Seat, Viewer: p.IsViewer(), Duplicate: true}
	}
	if len(r.seats) >= Seats {
		return Admission{Seat: -1, Viewer: r.addViewerLocked(name, id)}
	}

	p := &Player{ID: id, Name: name, Seat: len(r.seats)}
	if p.Seat == 0 {
		p.IsTheirTurn = true
		p.IsFirstPlayer = true
	}
	r.seats = append(r.seats, p)
	r.byID[id] = p
	return Admission{Seat: p.Seat, Ready: len(r.seats) == Seats}
}

// AddViewer admits id as a viewer unless it is already known. It reports
// whether a viewer was added.
func (r *Registry) AddViewer(name, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return false
	}
	return r.addViewerLocked(name, id)
}

func (r *Registry) addViewerLocked(name, id string) bool {
	v := &Player{ID: id, Name: name, Seat: -1}
	r.viewers = append(r.viewers, v)
	r.byID[id] = v
	return true
}

// DistributeCards deals a freshly shuffled deck, 13 cards to each seat. Prior
// hands, scores and the pile are cleared. The holder of the 2 of Clubs
// becomes first player and takes the turn.
func (r *Registry) DistributeCards(rng *rand.Rand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.seats) != Seats {
		return ErrNotEnoughPlayers
	}

	d := deck.NewDeck(rng)
	d.Shuffle()
	r.pile = nil
	r.turnNumber = 1
	for _, p := range r.seats {
		p.Hand = d.DealN(HandSize)
		sortHand(p.Hand)
		p.Played = 0
		p.Points = 0
		holder := slices.Contains(p.Hand, deck.TwoOfClubs)
		p.IsFirstPlayer = holder
		p.IsTheirTurn = holder
	}
	return nil
}

// ExecutePlay moves the card at index from the player's hand onto the pile
// and credits turnNumber × rank points. Nothing changes on error.
func (r *Registry) ExecutePlay(guard *TurnGuard, playerID string, index int) (PlayResult, error) {
	if !guard.Holds(r.turn) {
		return PlayResult{}, ErrTurnNotHeld
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[playerID]
	if !ok {
		return PlayResult{}, ErrUnknownPlayer
	}
	if p.IsViewer() {
		return PlayResult{}, ErrNotSeated
	}
	if !r.anyCardsLocked() {
		return PlayResult{}, ErrNoCards
	}
	if index < 0 || index >= len(p.Hand) {
		return PlayResult{}, &RuleViolation{Index: index, Err: ErrCardIndex}
	}

	card := p.Hand[index]
	p.Hand = slices.Delete(p.Hand, index, index+1)
	r.pile = append(r.pile, card)
	p.Played++

	result := PlayResult{
		Card:       card,
		Points:     r.turnNumber * int(card.Rank),
		TurnNumber: r.turnNumber,
	}
	p.Points += result.Points
	r.turnNumber++
	return result, nil
}

// AdvanceTurn passes the turn to the next seat in seating order.
func (r *Registry) AdvanceTurn(guard *TurnGuard) (string, error) {
	if !guard.Holds(r.turn) {
		return "", ErrTurnNotHeld
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := slices.IndexFunc(r.seats, func(p *Player) bool { return p.IsTheirTurn })
	if current < 0 {
		return "", ErrNoTurnHolder
	}
	next := (current + 1) % len(r.seats)
	r.seats[current].IsTheirTurn = false
	r.seats[next].IsTheirTurn = true
	return r.seats[next].ID, nil
}

// Winner returns the seat with the strictly highest total. ok is false on a
// tie for the lead or when nobody is seated.
func (r *Registry) Winner() (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Player
	tied := false
	for _, p := range r.seats {
		switch {
		case best == nil || p.Points > best.Points:
			best, tied = p, false
		case p.Points == best.Points:
			tied = true
		}
	}
	if best == nil || tied {
		return Player{}, false
	}
	return best.clone(), true
}

// HaveAnyPlayersCards reports whether any seat still holds a card.
func (r *Registry) HaveAnyPlayersCards() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.anyCardsLocked()
}

func (r *Registry) anyCardsLocked() bool {
	return slices.ContainsFunc(r.seats, func(p *Player) bool { return len(p.Hand) > 0 })
}

// Player returns a copy of a seated player or viewer.
func (r *Registry) Player(id string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return Player{}, false
	}
	return p.clone(), true
}

// Players returns copies of the seated players in seat order.
func (r *Registry) Players() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Player, len(r.seats))
	for i, p := range r.seats {
		out[i] = p.clone()
	}
	return out
}

// Viewers returns copies of the viewers in arrival order.
func (r *Registry) Viewers() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Player, len(r.viewers))
	for i, v := range r.viewers {
		out[i] = v.clone()
	}
	return out
}

// Recipients returns the ids of everyone who receives snapshots.
func (r *Registry) Recipients() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.seats)+len(r.viewers))
	for _, p := range r.seats {
		ids = append(ids, p.ID)
	}
	for _, v := range r.viewers {
		ids = append(ids, v.ID)
	}
	return ids
}

// SeatCount returns how many seats are taken.
func (r *Registry) SeatCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seats)
}

// CurrentTurn returns the id of the turn holder.
func (r *Registry) CurrentTurn() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.seats {
		if p.IsTheirTurn {
			return p.ID, true
		}
	}
	return "", false
}

// Pile returns the cards played since the deal.
func (r *Registry) Pile() []deck.Card {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.pile)
}

// TurnNumber returns the number the next play will score with.
func (r *Registry) TurnNumber() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.turnNumber
}

// Reset forgets every player, hand and played card.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seats = nil
	r.viewers = nil
	r.byID = make(map[string]*Player)
	r.pile = nil
	r.turnNumber = 1
}
