package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
	"github.com/rocketscienceinc/tictactoe-duel/internal/tictactoe"
)

var (
	errAlreadyInRoom = errors.New("already in a room")
	errNoMatch       = errors.New("no match in progress")
	errNoRoom        = errors.New("not in a room")
)

// client is the per-connection state: at most one local match and one room at a time.
type client struct {
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	match      *tictactoe.GameController
	scoreboard *tictactoe.Scoreboard
	room       *session.Synchronizer
}

func newClient(logger *slog.Logger, buffer int) *client {
	return &client{
		logger:     logger.With("component", "websocket_client"),
		send:       make(chan []byte, buffer),
		scoreboard: tictactoe.NewScoreboard(),
	}
}

// sendJSON queues a message for the writer. Messages are dropped when the buffer is full or the client is gone.
func (that *client) sendJSON(action string, payload any) {
	data := mustMarshal(Message{Action: action, Payload: mustMarshal(payload)})

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	select {
	case that.send <- data:
	default:
		that.logger.Warn("send buffer full, message dropped", "action", action)
	}
}

func (that *client) sendError(action, text string) {
	that.sendJSON(action, ErrorPayload{Error: text})
}

// replaceMatch installs a new local match and stops the previous one.
func (that *client) replaceMatch(match *tictactoe.GameController) {
	that.mu.Lock()
	previous := that.match
	that.match = match
	that.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
}

func (that *client) currentMatch() (*tictactoe.GameController, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.match == nil {
		return nil, errNoMatch
	}

	return that.match, nil
}

func (that *client) enterRoom(room *session.Synchronizer) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.room != nil {
		return errAlreadyInRoom
	}

	that.room = room

	return nil
}

func (that *client) currentRoom() (*session.Synchronizer, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.room == nil {
		return nil, errNoRoom
	}

	return that.room, nil
}

// exitRoom detaches the room if it is still the given one.
func (that *client) exitRoom(room *session.Synchronizer) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.room != room {
		return false
	}

	that.room = nil

	return true
}

// shutdown stops the match, leaves the room and closes the send queue.
func (that *client) shutdown(ctx context.Context) {
	that.mu.Lock()
	match, room := that.match, that.room
	that.match, that.room = nil, nil
	that.mu.Unlock()

	if match != nil {
		match.Stop()
	}

	if room != nil {
		if err := room.Leave(ctx); err != nil {
			that.logger.Error("failed to leave room on disconnect", "room_id", room.RoomID(), "error", err)
		}
	}

	that.mu.Lock()
	that.closed = true
	close(that.send)
	that.mu.Unlock()
}
