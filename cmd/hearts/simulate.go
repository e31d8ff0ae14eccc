package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/heartsrealm/cmd/hearts/shared"
	"github.com/lox/heartsrealm/internal/bot"
	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/hearts"
	"github.com/lox/heartsrealm/internal/randutil"
	"github.com/lox/heartsrealm/internal/realm"
)

// SimulateCmd plays complete games between built-in bots over an in-memory
// broker and prints a scoreboard.
type SimulateCmd struct {
	Games      int           `short:"n" default:"20" help:"Number of games to play"`
	Parallel   int           `short:"j" default:"4" help:"Games played concurrently"`
	Strategies []string      `short:"s" default:"random,low,high,random" help:"Strategy for each of the four seats (random, low, high)"`
	Seed       *int64        `help:"Deterministic seed for dealing and bots"`
	Timeout    time.Duration `default:"2m" help:"Give up after this long"`
	Debug      bool          `help:"Enable debug logging"`
}

func (c *SimulateCmd) Run() error {
	if len(c.Strategies) != hearts.Seats {
		return fmt.Errorf("need %d strategies, got %d", hearts.Seats, len(c.Strategies))
	}
	level := log.WarnLevel
	if c.Debug {
		level = log.DebugLevel
	}
	logger := shared.SetupLogger(level)

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
	}
	seed = randutil.Seed(seed)

	ctx, cancel := context.WithTimeout(shared.SetupSignalHandler(logger), c.Timeout)
	defer cancel()

	mem := broker.NewMemory(0, logger)
	defer mem.Close()
	director, err := realm.New(ctx, mem, logger, realm.Config{Seed: seed, MaxRestarts: 0})
	if err != nil {
		return err
	}
	defer director.Stop()

	announcements, err := drainAnnouncements(ctx, mem)
	if err != nil {
		return err
	}

	rngs := randutil.NewSource(seed)
	driver := bot.NewDriver(director, quartz.NewReal(), logger)

	var (
		mu      sync.Mutex
		results []hearts.Result
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Parallel, 1))
	for range c.Games {
		seats, err := c.seats(rngs)
		if err != nil {
			return err
		}
		g.Go(func() error {
			id, err := director.CreateGame(gctx)
			if err != nil {
				return err
			}
			res, err := driver.PlayGame(gctx, id, seats)
			if err != nil {
				return fmt.Errorf("game %s: %w", id, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	board := tally(results, c.Strategies)
	fmt.Println(renderScoreboard(board, len(results), time.Since(start), seed, announcements()))
	return nil
}

func (c *SimulateCmd) seats(rngs *randutil.Source) ([]bot.Seat, error) {
	seats := make([]bot.Seat, hearts.Seats)
	for i, name := range c.Strategies {
		strategy, err := bot.NewStrategy(name, rngs.Next())
		if err != nil {
			return nil, err
		}
		seats[i] = bot.Seat{
			ID:       fmt.Sprintf("seat-%d", i),
			Name:     fmt.Sprintf("%s #%d", strategy.Name(), i+1),
			Strategy: strategy,
		}
	}
	return seats, nil
}

// drainAnnouncements consumes lobby announcements so their queue never
// fills, and returns a counter of how many arrived.
func drainAnnouncements(ctx context.Context, b broker.Broker) (func() int, error) {
	sub, err := b.Subscribe(ctx, broker.GeneralExchangeQueue)
	if err != nil {
		return nil, err
	}
	var (
		mu sync.Mutex
		n  int
	)
	go func() {
		defer sub.Close()
		for range sub.C() {
			mu.Lock()
			n++
			mu.Unlock()
		}
	}()
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return n
	}, nil
}
