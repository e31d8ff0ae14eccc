package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/heartsrealm/internal/hearts"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true).
			Padding(0, 1)

	winnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// seatScore aggregates one seat across games.
type seatScore struct {
	Seat     int
	Strategy string
	Wins     int
	Points   int
	Games    int
}

func (s seatScore) average() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Points) / float64(s.Games)
}

type scoreboard struct {
	Seats []seatScore
	Ties  int
}

// tally adds up results by seat. Seat i is the player "seat-i".
func tally(results []hearts.Result, strategies []string) scoreboard {
	board := scoreboard{Seats: make([]seatScore, len(strategies))}
	index := make(map[string]int, len(strategies))
	for i, name := range strategies {
		board.Seats[i] = seatScore{Seat: i + 1, Strategy: name}
		index[fmt.Sprintf("seat-%d", i)] = i
	}

	for _, res := range results {
		if res.Tie {
			board.Ties++
		}
		for _, st := range res.Standings {
			i, ok := index[st.PlayerID]
			if !ok {
				continue
			}
			board.Seats[i].Games++
			board.Seats[i].Points += st.Points
			if st.PlayerID == res.WinnerID {
				board.Seats[i].Wins++
			}
		}
	}
	return board
}

func renderScoreboard(board scoreboard, games int, elapsed time.Duration, seed int64, announcements int) string {
	best := -1
	for i, s := range board.Seats {
		if best < 0 || s.Wins > board.Seats[best].Wins {
			best = i
		}
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Hearts simulation: %d games", games)))
	b.WriteString("\n\n")
	b.WriteString(rowStyle.Render(fmt.Sprintf("%-6s %-10s %6s %12s", "seat", "strategy", "wins", "avg points")))
	b.WriteString("\n")
	for i, s := range board.Seats {
		line := fmt.Sprintf("%-6d %-10s %6d %12.1f", s.Seat, s.Strategy, s.Wins, s.average())
		if i == best && s.Wins > 0 {
			b.WriteString(winnerStyle.Render(line))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("ties %d · seed %d · %d lobby announcements · %s",
		board.Ties, seed, announcements, elapsed.Round(time.Millisecond))))
	return b.String()
}
