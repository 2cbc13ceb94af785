package memory

import (
	"context"
	"testing"

	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Records(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	// Given: a missing room
	_, err := store.Fetch(ctx, "ROOM1")
	require.ErrorIs(t, err, session.ErrRecordNotFound)

	// When: it is created twice and then updated
	first := entity.NewRecord("ROOM1")
	first.Board[0] = entity.PlayerX
	require.NoError(t, store.Create(ctx, "ROOM1", first))
	require.NoError(t, store.Create(ctx, "ROOM1", entity.NewRecord("ROOM1")))

	stored, err := store.Fetch(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, first, stored)

	updated := *first
	updated.IsXNext = false
	require.NoError(t, store.Update(ctx, "ROOM1", &updated))

	// Then: the update replaces the record and deletion removes it
	stored, err = store.Fetch(ctx, "ROOM1")
	require.NoError(t, err)
	assert.False(t, stored.IsXNext)
	assert.Equal(t, 1, store.Updates())

	require.NoError(t, store.Delete(ctx, "ROOM1"))
	_, err = store.Fetch(ctx, "ROOM1")
	require.ErrorIs(t, err, session.ErrRecordNotFound)
}

func TestStore_SubscribeToChanges(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	// Given: a subscriber on one room
	var received []entity.Record
	sub, err := store.SubscribeToChanges(ctx, "ROOM1", func(record entity.Record) {
		received = append(received, record)
	})
	require.NoError(t, err)

	// When: both rooms are updated and the subscriber leaves before another update
	require.NoError(t, store.Update(ctx, "ROOM1", entity.NewRecord("ROOM1")))
	require.NoError(t, store.Update(ctx, "ROOM2", entity.NewRecord("ROOM2")))
	require.NoError(t, store.Unsubscribe(sub))
	require.NoError(t, store.Update(ctx, "ROOM1", entity.NewRecord("ROOM1")))

	// Then: only the first ROOM1 update was delivered
	require.Len(t, received, 1)
	assert.Equal(t, "ROOM1", received[0].ID)

	require.ErrorIs(t, store.Unsubscribe(sub), session.ErrSubscriptionNotFound)
}

func TestStore_Presence(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	// Given: a presence subscriber
	var sizes []int
	_, err := store.SubscribeToPresence(ctx, "ROOM1", func(roster session.Roster) {
		sizes = append(sizes, roster.Size())
	})
	require.NoError(t, err)

	// When: two clients come and one leaves
	alice, err := store.TrackPresence(ctx, "ROOM1", "alice")
	require.NoError(t, err)
	_, err = store.TrackPresence(ctx, "ROOM1", "bob")
	require.NoError(t, err)
	require.NoError(t, store.Unsubscribe(alice))
	store.Drop("ROOM1", "bob")

	// Then: every roster change was observed starting with the empty room
	assert.Equal(t, []int{0, 1, 2, 1, 0}, sizes)
}
