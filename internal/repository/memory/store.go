// Package memory keeps rooms and presence in process memory. Callbacks run synchronously on the
// goroutine that caused the change, after the store lock is released.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
)

type subscriptionKind int

const (
	kindChanges subscriptionKind = iota
	kindPresence
	kindTracked
)

type subscription struct {
	kind     subscriptionKind
	roomID   string
	marker   string
	onUpdate func(entity.Record)
	onRoster func(session.Roster)
}

type Store struct {
	mu sync.Mutex

	records  map[string]entity.Record
	presence map[string][]string
	subs     map[string]*subscription

	// updates counts successful Update calls.
	updates int
}

func NewStore() *Store {
	return &Store{
		records:  make(map[string]entity.Record),
		presence: make(map[string][]string),
		subs:     make(map[string]*subscription),
	}
}

func (that *Store) Fetch(_ context.Context, roomID string) (*entity.Record, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	record, ok := that.records[roomID]
	if !ok {
		return nil, session.ErrRecordNotFound
	}

	return &record, nil
}

func (that *Store) Create(_ context.Context, roomID string, record *entity.Record) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.records[roomID]; !ok {
		that.records[roomID] = *record
	}

	return nil
}

func (that *Store) Update(_ context.Context, roomID string, record *entity.Record) error {
	that.mu.Lock()
	that.records[roomID] = *record
	that.updates++
	listeners := that.changeListenersLocked(roomID)
	that.mu.Unlock()

	for _, onUpdate := range listeners {
		onUpdate(*record)
	}

	return nil
}

func (that *Store) Delete(_ context.Context, roomID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.records, roomID)

	return nil
}

func (that *Store) SubscribeToChanges(_ context.Context, roomID string, onUpdate func(entity.Record)) (session.Subscription, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.addLocked(&subscription{kind: kindChanges, roomID: roomID, onUpdate: onUpdate}), nil
}

// SubscribeToPresence delivers the current roster immediately and then every change.
func (that *Store) SubscribeToPresence(_ context.Context, roomID string, onRosterChange func(session.Roster)) (session.Subscription, error) {
	that.mu.Lock()
	sub := that.addLocked(&subscription{kind: kindPresence, roomID: roomID, onRoster: onRosterChange})
	roster := that.rosterLocked(roomID)
	that.mu.Unlock()

	onRosterChange(roster)

	return sub, nil
}

func (that *Store) TrackPresence(_ context.Context, roomID, clientMarker string) (session.Subscription, error) {
	that.mu.Lock()
	sub := that.addLocked(&subscription{kind: kindTracked, roomID: roomID, marker: clientMarker})
	if !slices.Contains(that.presence[roomID], clientMarker) {
		that.presence[roomID] = append(that.presence[roomID], clientMarker)
	}
	roster, listeners := that.rosterLocked(roomID), that.presenceListenersLocked(roomID)
	that.mu.Unlock()

	for _, onRoster := range listeners {
		onRoster(roster)
	}

	return sub, nil
}

func (that *Store) Unsubscribe(sub session.Subscription) error {
	that.mu.Lock()

	entry, ok := that.subs[sub.ID]
	if !ok {
		that.mu.Unlock()
		return session.ErrSubscriptionNotFound
	}
	delete(that.subs, sub.ID)

	if entry.kind != kindTracked {
		that.mu.Unlock()
		return nil
	}

	that.presence[entry.roomID] = slices.DeleteFunc(that.presence[entry.roomID], func(marker string) bool {
		return marker == entry.marker
	})
	roster, listeners := that.rosterLocked(entry.roomID), that.presenceListenersLocked(entry.roomID)
	that.mu.Unlock()

	for _, onRoster := range listeners {
		onRoster(roster)
	}

	return nil
}

// Drop removes a client from the roster without its cooperation, as a lost connection would.
func (that *Store) Drop(roomID, clientMarker string) {
	that.mu.Lock()
	for id, entry := range that.subs {
		if entry.kind == kindTracked && entry.roomID == roomID && entry.marker == clientMarker {
			delete(that.subs, id)
		}
	}
	that.presence[roomID] = slices.DeleteFunc(that.presence[roomID], func(marker string) bool {
		return marker == clientMarker
	})
	roster, listeners := that.rosterLocked(roomID), that.presenceListenersLocked(roomID)
	that.mu.Unlock()

	for _, onRoster := range listeners {
		onRoster(roster)
	}
}

// Updates returns how many records were written through Update.
func (that *Store) Updates() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.updates
}

func (that *Store) addLocked(entry *subscription) session.Subscription {
	id := uuid.NewString()
	that.subs[id] = entry

	return session.Subscription{RoomID: entry.roomID, ID: id}
}

func (that *Store) rosterLocked(roomID string) session.Roster {
	return session.Roster{Members: slices.Clone(that.presence[roomID])}
}

func (that *Store) changeListenersLocked(roomID string) []func(entity.Record) {
	var listeners []func(entity.Record)
	for _, entry := range that.subs {
		if entry.kind == kindChanges && entry.roomID == roomID {
			listeners = append(listeners, entry.onUpdate)
		}
	}

	return listeners
}

func (that *Store) presenceListenersLocked(roomID string) []func(session.Roster) {
	var listeners []func(session.Roster)
	for _, entry := range that.subs {
		if entry.kind == kindPresence && entry.roomID == roomID {
			listeners = append(listeners, entry.onRoster)
		}
	}

	return listeners
}
