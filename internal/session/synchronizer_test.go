package session_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/rocketscienceinc/tictactoe-duel/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/repository/memory"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const roomID = "ABCDE"

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func join(t *testing.T, store session.Store) *session.Synchronizer {
	t.Helper()

	sync := session.NewSynchronizer(newLogger(), store, roomID)
	require.NoError(t, sync.Join(context.Background()))

	return sync
}

func TestSynchronizer_Join(t *testing.T) {
	t.Run("Seeds the record and assigns X to the first client", func(t *testing.T) {
		// Given: an empty store
		store := memory.NewStore()

		// When: the first client joins
		alice := join(t, store)

		// Then: the room exists with an empty board and alice plays X while waiting
		record, err := store.Fetch(context.Background(), roomID)
		require.NoError(t, err)
		assert.Equal(t, entity.NewRecord(roomID), record)

		view := alice.View()
		assert.Equal(t, entity.PlayerX, view.Role)
		assert.Equal(t, session.PhaseRoleAssigned, view.Phase)
		assert.Equal(t, 1, view.RosterSize)
		assert.True(t, view.IsXNext)
	})

	t.Run("Second client plays O and both become active", func(t *testing.T) {
		// Given: alice already in the room
		store := memory.NewStore()
		alice := join(t, store)

		// When: bob joins
		bob := join(t, store)

		// Then: roles are X and O and the match has started for both
		assert.Equal(t, entity.PlayerX, alice.View().Role)
		assert.Equal(t, entity.PlayerO, bob.View().Role)
		assert.Equal(t, session.PhaseActive, alice.View().Phase)
		assert.Equal(t, session.PhaseActive, bob.View().Phase)
		assert.Equal(t, 2, alice.View().RosterSize)
	})

	t.Run("Third client watches without a role", func(t *testing.T) {
		// Given: a room that already has two players
		store := memory.NewStore()
		alice := join(t, store)
		join(t, store)

		// When: carol joins
		carol := join(t, store)

		// Then: carol has no role and cannot move
		view := carol.View()
		assert.Equal(t, entity.EmptyCell, view.Role)
		assert.Equal(t, session.PhaseSpectating, view.Phase)
		assert.Equal(t, session.AdvisoryRoomFull, view.Advisory)
		require.ErrorIs(t, carol.SubmitMove(context.Background(), 0), apperror.ErrRoomFull)
		assert.Equal(t, 0, store.Updates())

		// Then: carol still follows the players' moves
		require.NoError(t, alice.SubmitMove(context.Background(), 4))
		assert.Equal(t, entity.PlayerX, carol.View().Board[4])
		assert.False(t, carol.View().PeerLost)
	})

	t.Run("Adopts an existing record", func(t *testing.T) {
		// Given: a room with a move already played
		store := memory.NewStore()
		existing := entity.NewRecord(roomID)
		existing.Board[4] = entity.PlayerX
		existing.IsXNext = false
		require.NoError(t, store.Create(context.Background(), roomID, existing))

		// When: a client joins
		alice := join(t, store)

		// Then: it sees the stored board
		view := alice.View()
		assert.Equal(t, entity.PlayerX, view.Board[4])
		assert.False(t, view.IsXNext)
	})

	t.Run("Joining twice is rejected", func(t *testing.T) {
		// Given: a joined client
		alice := join(t, memory.NewStore())

		// When: it joins again
		err := alice.Join(context.Background())

		// Then: ErrAlreadyJoined is returned
		require.ErrorIs(t, err, session.ErrAlreadyJoined)
	})

	t.Run("Fetch failure is returned and nothing is subscribed", func(t *testing.T) {
		// Given: a store that cannot be reached
		store := &mocks.Store{}
		unavailable := errors.New("connection refused")
		store.On("Fetch", mock.Anything, roomID).Return(nil, unavailable)

		// When: joining
		sync := session.NewSynchronizer(newLogger(), store, roomID)
		err := sync.Join(context.Background())

		// Then: the store error is wrapped and no subscription was attempted
		require.ErrorIs(t, err, unavailable)
		store.AssertNotCalled(t, "SubscribeToChanges", mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, session.PhaseNotJoined, sync.View().Phase)
	})

	t.Run("Presence failure releases earlier subscriptions", func(t *testing.T) {
		// Given: a store whose presence tracking fails
		store := &mocks.Store{}
		changes := session.Subscription{RoomID: roomID, ID: "changes"}
		unavailable := errors.New("presence down")

		store.On("Fetch", mock.Anything, roomID).Return(entity.NewRecord(roomID), nil)
		store.On("SubscribeToChanges", mock.Anything, roomID, mock.Anything).Return(changes, nil)
		store.On("TrackPresence", mock.Anything, roomID, mock.Anything).Return(session.Subscription{}, unavailable)
		store.On("Unsubscribe", changes).Return(nil).Once()

		// When: joining
		err := session.NewSynchronizer(newLogger(), store, roomID).Join(context.Background())

		// Then: the error is returned and the record feed is released
		require.ErrorIs(t, err, unavailable)
		store.AssertExpectations(t)
	})
}

func TestSynchronizer_SubmitMove(t *testing.T) {
	t.Run("Move reaches the opponent through the store", func(t *testing.T) {
		// Given: two clients in the room
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)

		// When: alice plays the center
		require.NoError(t, alice.SubmitMove(context.Background(), 4))

		// Then: both views show the move and O is to move
		for _, view := range []session.View{alice.View(), bob.View()} {
			assert.Equal(t, entity.PlayerX, view.Board[4])
			assert.False(t, view.IsXNext)
		}
		assert.Equal(t, 1, store.Updates())
	})

	t.Run("Out of turn move is rejected without a store write", func(t *testing.T) {
		// Given: alice (X) already moved so the turn favors O
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)
		require.Equal(t, entity.PlayerX, alice.View().Role)
		require.Equal(t, entity.PlayerO, bob.View().Role)
		require.NoError(t, alice.SubmitMove(context.Background(), 0))
		before, err := store.Fetch(context.Background(), roomID)
		require.NoError(t, err)

		// When: alice tries to move again
		err = alice.SubmitMove(context.Background(), 1)

		// Then: it is rejected locally and the store is unchanged
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, session.AdvisoryNotYourTurn, alice.View().Advisory)
		assert.Equal(t, 1, store.Updates())

		after, err := store.Fetch(context.Background(), roomID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("Moves wait for an opponent", func(t *testing.T) {
		// Given: alice alone in the room
		store := memory.NewStore()
		alice := join(t, store)

		// When: she tries to move
		err := alice.SubmitMove(context.Background(), 0)

		// Then: the match has not started
		require.ErrorIs(t, err, apperror.ErrGameIsNotStarted)
		assert.Equal(t, session.AdvisoryWaiting, alice.View().Advisory)
		assert.Zero(t, store.Updates())
	})

	t.Run("Occupied cell is rejected", func(t *testing.T) {
		// Given: alice took the center
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)
		require.NoError(t, alice.SubmitMove(context.Background(), 4))

		// When: bob plays the same cell
		err := bob.SubmitMove(context.Background(), 4)

		// Then: ErrCellOccupied is returned and nothing is written
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		assert.Equal(t, session.AdvisoryCellTaken, bob.View().Advisory)
		assert.Equal(t, 1, store.Updates())
	})

	t.Run("Not joined", func(t *testing.T) {
		// Given: a synchronizer that never joined
		sync := session.NewSynchronizer(newLogger(), memory.NewStore(), roomID)

		// When: a move is submitted
		err := sync.SubmitMove(context.Background(), 0)

		// Then: ErrNotJoined is returned
		require.ErrorIs(t, err, apperror.ErrNotJoined)
	})

	t.Run("Winning move writes the winner and ends the match", func(t *testing.T) {
		// Given: two clients
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)

		// When: X completes the top row
		for i, cell := range []int{0, 3, 1, 4, 2} {
			player := alice
			if i%2 == 1 {
				player = bob
			}
			require.NoError(t, player.SubmitMove(context.Background(), cell))
		}

		// Then: the stored record carries the winner and further moves are rejected
		record, err := store.Fetch(context.Background(), roomID)
		require.NoError(t, err)
		assert.Equal(t, &entity.WinnerData{Winner: "X", Line: []int{0, 1, 2}}, record.Winner)
		assert.Equal(t, entity.StatusWon, bob.View().Outcome.Status)
		require.ErrorIs(t, bob.SubmitMove(context.Background(), 5), apperror.ErrGameFinished)
	})

	t.Run("Failed write is returned and the optimistic move is rolled back", func(t *testing.T) {
		// Given: an active session over a store whose writes fail
		store := &mocks.Store{}
		unavailable := errors.New("write timeout")

		store.On("Fetch", mock.Anything, roomID).Return(entity.NewRecord(roomID), nil)
		store.On("SubscribeToChanges", mock.Anything, roomID, mock.Anything).Return(session.Subscription{ID: "changes"}, nil)
		store.On("TrackPresence", mock.Anything, roomID, mock.Anything).Return(session.Subscription{ID: "tracked"}, nil)
		store.On("SubscribeToPresence", mock.Anything, roomID, mock.Anything).
			Run(func(args mock.Arguments) {
				args.Get(2).(func(session.Roster))(session.Roster{Members: []string{"me"}})
				args.Get(2).(func(session.Roster))(session.Roster{Members: []string{"me", "peer"}})
			}).
			Return(session.Subscription{ID: "presence"}, nil)
		store.On("Update", mock.Anything, roomID, mock.Anything).Return(unavailable)

		sync := session.NewSynchronizer(newLogger(), store, roomID)
		require.NoError(t, sync.Join(context.Background()))
		require.Equal(t, session.PhaseActive, sync.View().Phase)

		// When: a move is submitted
		err := sync.SubmitMove(context.Background(), 0)

		// Then: the store error is returned and the board is empty again
		require.ErrorIs(t, err, unavailable)
		view := sync.View()
		assert.Equal(t, entity.Board{}, view.Board)
		assert.True(t, view.IsXNext)
		assert.Equal(t, session.AdvisoryConnection, view.Advisory)
	})
}

func TestSynchronizer_Disconnect(t *testing.T) {
	t.Run("Peer lost after the match started", func(t *testing.T) {
		// Given: two clients that started a match
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)
		require.NoError(t, alice.SubmitMove(context.Background(), 0))

		// When: bob's connection drops
		store.Drop(roomID, bob.Marker())

		// Then: alice sees a frozen board in the peer lost state
		view := alice.View()
		assert.True(t, view.PeerLost)
		assert.Equal(t, session.PhasePeerLost, view.Phase)
		assert.Equal(t, session.AdvisoryPeerLost, view.Advisory)
		require.ErrorIs(t, alice.SubmitMove(context.Background(), 1), apperror.ErrPeerLost)
	})

	t.Run("Late record after peer lost keeps the board frozen", func(t *testing.T) {
		// Given: alice moved and bob dropped
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)
		require.NoError(t, alice.SubmitMove(context.Background(), 0))
		store.Drop(roomID, bob.Marker())
		require.Equal(t, session.PhasePeerLost, alice.View().Phase)

		// When: bob's in-flight move is delivered afterwards
		late := *entity.NewRecord(roomID)
		late.Board[0] = entity.PlayerX
		late.Board[4] = entity.PlayerO
		alice.Apply(session.RecordChanged{Record: late})

		// Then: alice's board is unchanged
		view := alice.View()
		assert.Equal(t, entity.Board{0: entity.PlayerX}, view.Board)
		assert.False(t, view.IsXNext)
		assert.Equal(t, session.PhasePeerLost, view.Phase)
	})

	t.Run("No signal while still waiting for an opponent", func(t *testing.T) {
		// Given: alice alone in the room
		store := memory.NewStore()
		alice := join(t, store)

		// When: the roster is reported again with a single client and then an unknown client drops
		alice.Apply(session.RosterChanged{Size: 1})
		store.Drop(roomID, "someone-else")

		// Then: no disconnect is raised
		view := alice.View()
		assert.False(t, view.PeerLost)
		assert.Equal(t, session.PhaseRoleAssigned, view.Phase)
	})

	t.Run("No signal after the match is over", func(t *testing.T) {
		// Given: a finished match
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)
		for i, cell := range []int{0, 3, 1, 4, 2} {
			player := alice
			if i%2 == 1 {
				player = bob
			}
			require.NoError(t, player.SubmitMove(context.Background(), cell))
		}

		// When: bob drops
		store.Drop(roomID, bob.Marker())

		// Then: alice keeps the result instead of a peer lost state
		assert.False(t, alice.View().PeerLost)
	})

	t.Run("Role survives the roster shrinking and regrowing", func(t *testing.T) {
		// Given: alice as X with bob dropped
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)
		store.Drop(roomID, bob.Marker())

		// When: a new client joins
		carol := join(t, store)

		// Then: alice is still X and carol takes O from the roster size
		assert.Equal(t, entity.PlayerX, alice.View().Role)
		assert.Equal(t, entity.PlayerO, carol.View().Role)
		assert.Equal(t, session.PhasePeerLost, alice.View().Phase)
	})
}

func TestSynchronizer_Apply(t *testing.T) {
	t.Run("Replaying a record change is idempotent", func(t *testing.T) {
		// Given: an active session
		store := memory.NewStore()
		alice := join(t, store)
		join(t, store)

		record := *entity.NewRecord(roomID)
		record.Board[8] = entity.PlayerX
		record.IsXNext = false

		// When: the same change is delivered twice
		alice.Apply(session.RecordChanged{Record: record})
		first := alice.View()
		alice.Apply(session.RecordChanged{Record: record})

		// Then: the second delivery changes nothing
		assert.Equal(t, first, alice.View())
	})

	t.Run("Incoming record overwrites the optimistic local move", func(t *testing.T) {
		// Given: alice played optimistically
		store := memory.NewStore()
		alice := join(t, store)
		join(t, store)
		require.NoError(t, alice.SubmitMove(context.Background(), 0))

		// When: the store delivers a different authoritative record
		authoritative := *entity.NewRecord(roomID)
		authoritative.Board[2] = entity.PlayerX
		authoritative.IsXNext = false
		alice.Apply(session.RecordChanged{Record: authoritative})

		// Then: alice adopts it unconditionally
		view := alice.View()
		assert.Equal(t, entity.Board{2: entity.PlayerX}, view.Board)
		assert.False(t, view.IsXNext)
	})

	t.Run("Changes are signalled", func(t *testing.T) {
		// Given: a joined client with the join notifications drained
		alice := join(t, memory.NewStore())
		<-alice.Changes()

		// When: the roster changes
		alice.Apply(session.RosterChanged{Size: 1})

		// Then: a change is signalled
		select {
		case <-alice.Changes():
		default:
			t.Fatal("no change signalled")
		}
	})
}

func TestSynchronizer_Leave(t *testing.T) {
	t.Run("Last occupant deletes the record", func(t *testing.T) {
		// Given: bob left and alice is alone
		store := memory.NewStore()
		alice := join(t, store)
		bob := join(t, store)
		require.NoError(t, bob.Leave(context.Background()))

		_, err := store.Fetch(context.Background(), roomID)
		require.NoError(t, err, "record is kept while alice is present")

		// When: alice leaves
		require.NoError(t, alice.Leave(context.Background()))

		// Then: the room record is gone and the change feed is closed
		_, err = store.Fetch(context.Background(), roomID)
		require.ErrorIs(t, err, session.ErrRecordNotFound)

		for range alice.Changes() {
		}
		assert.Equal(t, session.PhaseLeft, alice.View().Phase)
	})

	t.Run("Leaving twice is a no-op", func(t *testing.T) {
		// Given: a client that left
		alice := join(t, memory.NewStore())
		require.NoError(t, alice.Leave(context.Background()))

		// Then: leaving again succeeds and joining is refused
		require.NoError(t, alice.Leave(context.Background()))
		require.ErrorIs(t, alice.Join(context.Background()), session.ErrSessionClosed)
	})

	t.Run("Events after leaving are ignored", func(t *testing.T) {
		// Given: a client that left
		alice := join(t, memory.NewStore())
		require.NoError(t, alice.Leave(context.Background()))

		// When: a late event arrives
		alice.Apply(session.RosterChanged{Size: 2})

		// Then: the state is unchanged
		assert.Equal(t, 1, alice.View().RosterSize)
	})
}
