package session

import (
	"context"
	"errors"

	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
)

var (
	ErrRecordNotFound       = errors.New("record not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Subscription is a handle returned by the store for a live feed or presence entry.
type Subscription struct {
	RoomID string
	ID     string
}

// Roster is the set of client markers currently present in a room.
type Roster struct {
	Members []string
}

func (that Roster) Size() int {
	return len(that.Members)
}

// Store is the shared record store plus presence tracking the synchronizer relies on.
// Update always writes the full record. Record feeds carry updates only, deletions are silent.
type Store interface {
	Fetch(ctx context.Context, roomID string) (*entity.Record, error)
	Create(ctx context.Context, roomID string, record *entity.Record) error
	Update(ctx context.Context, roomID string, record *entity.Record) error
	Delete(ctx context.Context, roomID string) error

	SubscribeToChanges(ctx context.Context, roomID string, onUpdate func(entity.Record)) (Subscription, error)
	SubscribeToPresence(ctx context.Context, roomID string, onRosterChange func(Roster)) (Subscription, error)
	TrackPresence(ctx context.Context, roomID, clientMarker string) (Subscription, error)
	Unsubscribe(sub Subscription) error
}
