// Package bridge is the boundary between websocket clients and the realm.
// Client commands become director calls; private game queues and lobby
// announcements are relayed back to the sockets.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/event"
)

// Commander is the part of the realm director the bridge drives.
type Commander interface {
	CreateGame(ctx context.Context) (string, error)
	QuickMatch(ctx context.Context, playerID, name string) (string, error)
	Join(ctx context.Context, gameID, playerID, name string) error
	Subscribe(ctx context.Context, gameID, playerID, name string) error
	RequestStart(ctx context.Context, gameID, playerID string) error
	Play(ctx context.Context, gameID, playerID string, index int) error
	Restart(ctx context.Context, gameID, playerID string) error
	ListGames() []event.GameSummary
}

// Server accepts websocket connections.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	broker      broker.Broker
	director    Commander
	secret      []byte
	clock       quartz.Clock
	logger      *log.Logger
	connections map[*Connection]bool
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	httpServer  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithJWTSecret requires clients to authenticate with an HS256 token signed
// with secret. An empty secret accepts any name.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

// WithClock sets the clock driving websocket pings.
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// NewServer creates a bridge listening on addr.
func NewServer(addr string, b broker.Broker, director Commander, logger *log.Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		broker:      b,
		director:    director,
		clock:       quartz.NewReal(),
		logger:      logger.WithPrefix("bridge"),
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the bridge's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/games", s.handleGames)
	return mux
}

// Start relays lobby announcements and serves until Stop.
func (s *Server) Start() error {
	if err := s.StartRelay(); err != nil {
		return err
	}
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	s.logger.Info("Starting WebSocket server", "addr", s.addr, "auth", s.secret != nil)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StartRelay subscribes to lobby announcements and forwards them to every
// authenticated connection.
func (s *Server) StartRelay() error {
	if err := s.broker.AssertQueue(s.ctx, broker.GeneralExchangeQueue); err != nil {
		return fmt.Errorf("assert lobby queue: %w", err)
	}
	sub, err := s.broker.Subscribe(s.ctx, broker.GeneralExchangeQueue)
	if err != nil {
		return fmt.Errorf("subscribe lobby: %w", err)
	}
	go func() {
		defer sub.Close()
		for d := range sub.C() {
			s.broadcast(d)
		}
	}()
	return nil
}

// Stop closes every connection and the HTTP listener.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(context.Background())
	}
	return nil
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()
	_ = conn.Close()
	s.logger.Info("Client disconnected", "player", conn.PlayerID(), "total", total)
}

func (s *Server) broadcast(d broker.Delivery) {
	msg, err := NewMessage(MessageTypeEvent, EventData{Queue: d.Queue, Envelope: d.Body})
	if err != nil {
		s.logger.Error("Failed to wrap announcement", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for conn := range s.connections {
		if conn.PlayerID() == "" {
			continue
		}
		if err := conn.SendMessage(msg); err == nil {
			count++
		}
	}
	s.logger.Debug("Relayed lobby announcement", "recipients", count)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(s.ctx, conn, s)
	s.register(client)
	client.Start()

	go func() {
		<-client.ctx.Done()
		s.unregister(client)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(event.LobbyUpdatedPayload{Games: s.director.ListGames()}); err != nil {
		s.logger.Error("Failed to write game list", "error", err)
	}
}
