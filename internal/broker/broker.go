// Package broker models the message broker the realm runs on: named queues
// that can be asserted, published to and consumed from. Delivery is
// at-least-once and ordered within a single queue only.
package broker

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once the broker has been shut down or lost.
	ErrClosed = errors.New("broker closed")
	// ErrNoQueue is returned when publishing to a queue nobody asserted.
	ErrNoQueue = errors.New("queue not declared")
	// ErrQueueFull is returned when a bounded queue cannot take more messages.
	ErrQueueFull = errors.New("queue full")
)

// Delivery is one message taken off a queue.
type Delivery struct {
	Queue string
	Body  []byte
}

// Subscription is a consumer attached to one queue. C is closed after Close
// or when the broker goes away.
type Subscription interface {
	C() <-chan Delivery
	Close() error
}

// Broker is the publish/subscribe surface the core depends on.
type Broker interface {
	AssertQueue(ctx context.Context, name string) error
	Publish(ctx context.Context, queue string, body []byte) error
	Subscribe(ctx context.Context, queue string) (Subscription, error)
	Close() error
}

// GeneralQueue carries lobby commands.
const GeneralQueue = "general"

// GeneralExchangeQueue carries lobby announcements to the boundary layer.
const GeneralExchangeQueue = "general.exchange"

// GameQueue is the primary queue of a game.
func GameQueue(gameID string) string {
	return fmt.Sprintf("game.%s", gameID)
}

// ExchangeQueue is the fan-out queue of a game.
func ExchangeQueue(gameID string) string {
	return fmt.Sprintf("game.%s.exchange", gameID)
}

// PlayerQueue is the private queue of one player in one game.
func PlayerQueue(gameID, playerID string) string {
	return fmt.Sprintf("game.%s.exchange.%s", gameID, playerID)
}
