package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
)

const (
	sendBufferSize   = 16
	idlePingInterval = 30 * time.Second
)

var ErrServerClosed = errors.New("websocket server is shutting down")

type Options struct {
	Difficulty entity.Difficulty
	// ThinkDelay is passed to every local match; zero answers immediately.
	ThinkDelay time.Duration
	// PingInterval is how long a connection may stay silent before a ping is written.
	PingInterval time.Duration
}

type Server struct {
	logger   *slog.Logger
	store    session.Store
	opts     Options
	upgrader websocket.Upgrader

	handlers map[string]func(ctx context.Context, client *client, message *Message) error

	mu      sync.Mutex
	closing bool
	conns   map[*websocket.Conn]struct{}
	active  sync.WaitGroup
}

func New(logger *slog.Logger, store session.Store, opts Options) *Server {
	if opts.Difficulty == "" {
		opts.Difficulty = entity.ImpossibleDifficulty
	}

	if opts.PingInterval <= 0 {
		opts.PingInterval = idlePingInterval
	}

	server := &Server{
		logger: logger.With("component", "websocket"),
		store:  store,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},

		handlers: make(map[string]func(context.Context, *client, *Message) error),
		conns:    make(map[*websocket.Conn]struct{}),
	}

	server.handlers[actionMatchNew] = server.handleMatchNew
	server.handlers[actionMatchTurn] = server.handleMatchTurn
	server.handlers[actionMatchReset] = server.handleMatchReset
	server.handlers[actionRoomJoin] = server.handleRoomJoin
	server.handlers[actionRoomTurn] = server.handleRoomTurn
	server.handlers[actionRoomLeave] = server.handleRoomLeave

	return server
}

// ServeHTTP upgrades the request and serves the connection until the client goes away.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	if !that.track(conn) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrServerClosed.Error()))
		_ = conn.Close()
		return
	}
	defer that.untrack(conn)

	c := newClient(that.logger, sendBufferSize)
	log.Info("websocket connection established", "remote_addr", req.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		if err := writeWithHeartbeat(conn, c.send, that.opts.PingInterval); err != nil {
			log.Debug("websocket writer stopped", "error", err)
		}
		_ = conn.Close()
	}()

	that.handleMessages(req.Context(), conn, c)

	// leave a joined room so the roster and record are released
	c.shutdown(context.WithoutCancel(req.Context()))
	<-writerDone

	log.Info("websocket connection closed", "remote_addr", req.RemoteAddr)
}

// Shutdown closes every live connection and waits until each has left its room.
// Connections arriving afterwards are closed right after the upgrade.
func (that *Server) Shutdown(ctx context.Context) error {
	that.mu.Lock()
	that.closing = true
	for conn := range that.conns {
		_ = conn.Close()
	}
	that.mu.Unlock()

	done := make(chan struct{})
	go func() {
		that.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain websocket connections: %w", ctx.Err())
	}
}

func (that *Server) track(conn *websocket.Conn) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closing {
		return false
	}

	that.conns[conn] = struct{}{}
	that.active.Add(1)

	return true
}

func (that *Server) untrack(conn *websocket.Conn) {
	that.mu.Lock()
	delete(that.conns, conn)
	that.mu.Unlock()

	that.active.Done()
}

// handleMessages reads client messages and dispatches them by action.
func (that *Server) handleMessages(ctx context.Context, conn *websocket.Conn, c *client) {
	log := that.logger.With("method", "handleMessages")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("unexpected close", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			c.sendError("", "malformed message")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			c.sendError(message.Action, "unknown action")
			continue
		}

		if err = handler(ctx, c, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func writeWithHeartbeat(conn *websocket.Conn, send <-chan []byte, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastWrite := time.Now()
	pingPayload := mustMarshal(Message{Action: actionPing})

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}

			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < interval {
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}
