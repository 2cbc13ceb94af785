package repository

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
)

// Store exposes the room and presence repositories as a session store.
type Store struct {
	logger   *slog.Logger
	rooms    RoomRepository
	presence PresenceRepository

	mu    sync.Mutex
	stops map[string]func()
}

func NewStore(logger *slog.Logger, rooms RoomRepository, presence PresenceRepository) *Store {
	return &Store{
		logger:   logger.With("component", "session_store"),
		rooms:    rooms,
		presence: presence,
		stops:    make(map[string]func()),
	}
}

func (that *Store) Fetch(ctx context.Context, roomID string) (*entity.Record, error) {
	return that.rooms.Fetch(ctx, roomID)
}

func (that *Store) Create(ctx context.Context, roomID string, record *entity.Record) error {
	return that.rooms.Create(ctx, roomID, record)
}

func (that *Store) Update(ctx context.Context, roomID string, record *entity.Record) error {
	return that.rooms.Update(ctx, roomID, record)
}

func (that *Store) Delete(ctx context.Context, roomID string) error {
	return that.rooms.Delete(ctx, roomID)
}

func (that *Store) SubscribeToChanges(ctx context.Context, roomID string, onUpdate func(entity.Record)) (session.Subscription, error) {
	stop, err := that.rooms.Watch(ctx, roomID, onUpdate)
	if err != nil {
		return session.Subscription{}, err
	}

	return that.register(roomID, stop), nil
}

func (that *Store) SubscribeToPresence(ctx context.Context, roomID string, onRosterChange func(session.Roster)) (session.Subscription, error) {
	stop, err := that.presence.Watch(ctx, roomID, func(members []string) {
		onRosterChange(session.Roster{Members: members})
	})
	if err != nil {
		return session.Subscription{}, err
	}

	return that.register(roomID, stop), nil
}

func (that *Store) TrackPresence(ctx context.Context, roomID, clientMarker string) (session.Subscription, error) {
	stop, err := that.presence.Track(ctx, roomID, clientMarker)
	if err != nil {
		return session.Subscription{}, err
	}

	return that.register(roomID, stop), nil
}

func (that *Store) Unsubscribe(sub session.Subscription) error {
	that.mu.Lock()
	stop, ok := that.stops[sub.ID]
	delete(that.stops, sub.ID)
	that.mu.Unlock()

	if !ok {
		return session.ErrSubscriptionNotFound
	}

	stop()
	that.logger.Debug("unsubscribed", "room_id", sub.RoomID, "subscription", sub.ID)

	return nil
}

func (that *Store) register(roomID string, stop func()) session.Subscription {
	sub := session.Subscription{RoomID: roomID, ID: uuid.NewString()}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.stops[sub.ID] = stop

	return sub
}
