package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-duel/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
)

const (
	PhaseNotJoined    Phase = "not_joined"
	PhaseRoleAssigned Phase = "role_assigned"
	PhaseActive       Phase = "active"
	PhaseSpectating   Phase = "spectating"
	PhasePeerLost     Phase = "peer_lost"
	PhaseLeft         Phase = "left"
)

const (
	AdvisoryNotJoined   = "Join a room first."
	AdvisoryWaiting     = "Waiting for an opponent to join."
	AdvisoryNotYourTurn = "Not your turn."
	AdvisoryCellTaken   = "That cell is already taken."
	AdvisoryInvalidCell = "That cell is not on the board."
	AdvisoryGameOver    = "The game is over."
	AdvisoryPeerLost    = "Opponent disconnected."
	AdvisoryConnection  = "Connection to the room was lost."
	AdvisoryRoomFull    = "The room is full, you are watching."
)

var (
	ErrAlreadyJoined = errors.New("session already joined")
	ErrSessionClosed = errors.New("session closed")
)

// Phase is the lifecycle stage of a client in a room.
type Phase string

// Event is an input folded into the synchronizer state.
type Event interface {
	isEvent()
}

// RosterChanged reports the number of clients currently present in the room.
type RosterChanged struct {
	Size int
}

// RecordChanged carries the authoritative record delivered by the store.
type RecordChanged struct {
	Record entity.Record
}

func (RosterChanged) isEvent() {}
func (RecordChanged) isEvent() {}

// View is a read-only snapshot of a session.
type View struct {
	RoomID     string         `json:"room_id"`
	Board      entity.Board   `json:"board"`
	IsXNext    bool           `json:"isXNext"`
	Outcome    entity.Outcome `json:"outcome"`
	Role       entity.Mark    `json:"role"`
	RosterSize int            `json:"roster_size"`
	PeerLost   bool           `json:"peer_lost"`
	Phase      Phase          `json:"phase"`
	Advisory   string         `json:"advisory,omitempty"`
}

// Synchronizer derives one client's view of a two-party match from the shared record
// and the room's presence roster.
//
// The role is latched on the first non-empty roster observation after Join: a roster of one
// makes this client X, a roster of two makes it O and a larger one leaves it watching without a
// role. Once the roster has held two clients the match counts as started, and a later drop below
// two while the game is in progress freezes the session in PhasePeerLost. Records delivered after
// that are ignored.
type Synchronizer struct {
	mu sync.Mutex

	logger *slog.Logger
	store  Store
	roomID string
	marker string

	phase      Phase
	joining    bool
	role       entity.Mark
	started    bool
	rosterSize int
	record     entity.Record
	advisory   string
	subs       []Subscription

	changes chan struct{}
}

func NewSynchronizer(logger *slog.Logger, store Store, roomID string) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Synchronizer{
		logger:  logger.With("component", "session", "room_id", roomID),
		store:   store,
		roomID:  roomID,
		marker:  uuid.NewString(),
		phase:   PhaseNotJoined,
		record:  *entity.NewRecord(roomID),
		changes: make(chan struct{}, 1),
	}
}

func (that *Synchronizer) RoomID() string {
	return that.roomID
}

// Marker is the presence identifier this client registers in the room.
func (that *Synchronizer) Marker() string {
	return that.marker
}

// Changes signals after every state change. Signals are coalesced; the channel is closed by Leave.
func (that *Synchronizer) Changes() <-chan struct{} {
	return that.changes
}

// Join loads or seeds the room record, then subscribes to record changes and presence.
func (that *Synchronizer) Join(ctx context.Context) error {
	log := that.logger.With("method", "Join")

	that.mu.Lock()
	switch {
	case that.phase == PhaseLeft:
		that.mu.Unlock()
		return ErrSessionClosed
	case that.joining:
		that.mu.Unlock()
		return ErrAlreadyJoined
	}
	that.joining = true
	that.mu.Unlock()

	record, err := that.store.Fetch(ctx, that.roomID)
	if errors.Is(err, ErrRecordNotFound) {
		record = entity.NewRecord(that.roomID)

		if err = that.store.Create(ctx, that.roomID, record); err != nil {
			return that.abortJoin(fmt.Errorf("failed to create room record: %w", err))
		}

		log.Info("room record created")
	} else if err != nil {
		return that.abortJoin(fmt.Errorf("failed to fetch room record: %w", err))
	}

	that.Apply(RecordChanged{Record: *record})

	sub, err := that.store.SubscribeToChanges(ctx, that.roomID, func(record entity.Record) {
		that.Apply(RecordChanged{Record: record})
	})
	if err != nil {
		return that.abortJoin(fmt.Errorf("failed to subscribe to room changes: %w", err))
	}
	that.addSubscription(sub)

	sub, err = that.store.TrackPresence(ctx, that.roomID, that.marker)
	if err != nil {
		return that.abortJoin(fmt.Errorf("failed to track presence: %w", err))
	}
	that.addSubscription(sub)

	sub, err = that.store.SubscribeToPresence(ctx, that.roomID, func(roster Roster) {
		that.Apply(RosterChanged{Size: roster.Size()})
	})
	if err != nil {
		return that.abortJoin(fmt.Errorf("failed to subscribe to presence: %w", err))
	}
	that.addSubscription(sub)

	log.Debug("joined room", "marker", that.marker)

	return nil
}

// SubmitMove plays cell for this client's role. Rejected moves set an advisory and never reach the store.
func (that *Synchronizer) SubmitMove(ctx context.Context, cell int) error {
	log := that.logger.With("method", "SubmitMove")

	that.mu.Lock()

	if err := that.validateMoveLocked(); err != nil {
		that.notifyLocked()
		that.mu.Unlock()
		return err
	}

	previous := that.record
	next := previous
	if err := next.Board.Place(cell, that.role); err != nil {
		that.advisory = AdvisoryCellTaken
		if errors.Is(err, apperror.ErrInvalidCell) {
			that.advisory = AdvisoryInvalidCell
		}
		that.notifyLocked()
		that.mu.Unlock()
		return fmt.Errorf("invalid turn: %w", err)
	}

	next.IsXNext = !previous.IsXNext
	next.Winner = entity.NewWinnerData(entity.Evaluate(next.Board))

	that.record = next
	that.advisory = ""
	that.notifyLocked()
	that.mu.Unlock()

	if err := that.store.Update(ctx, that.roomID, &next); err != nil {
		that.mu.Lock()
		if that.record.Board == next.Board && that.record.IsXNext == next.IsXNext {
			that.record = previous
		}
		that.advisory = AdvisoryConnection
		that.notifyLocked()
		that.mu.Unlock()

		return fmt.Errorf("failed to update room record: %w", err)
	}

	log.Debug("move submitted", "cell", cell, "mark", that.role)

	return nil
}

// Leave cancels every subscription. The last occupant also deletes the room record.
func (that *Synchronizer) Leave(ctx context.Context) error {
	log := that.logger.With("method", "Leave")

	that.mu.Lock()
	if that.phase == PhaseLeft {
		that.mu.Unlock()
		return nil
	}

	subs := that.subs
	joined := that.joining
	lastSize := that.rosterSize

	that.subs = nil
	that.phase = PhaseLeft
	that.advisory = ""
	close(that.changes)
	that.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := that.store.Unsubscribe(sub); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe %s: %w", sub.ID, err))
		}
	}

	if joined && lastSize <= 1 {
		if err := that.store.Delete(ctx, that.roomID); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete room record: %w", err))
		} else {
			log.Info("room record deleted")
		}
	}

	return errors.Join(errs...)
}

// Apply folds an event into the session state. Replaying an event leaves the state unchanged.
func (that *Synchronizer) Apply(event Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.phase == PhaseLeft {
		return
	}

	switch ev := event.(type) {
	case RosterChanged:
		that.applyRosterLocked(ev.Size)
	case RecordChanged:
		if that.phase == PhasePeerLost {
			return
		}
		that.record = ev.Record
	}

	that.notifyLocked()
}

func (that *Synchronizer) View() View {
	that.mu.Lock()
	defer that.mu.Unlock()

	return View{
		RoomID:     that.roomID,
		Board:      that.record.Board,
		IsXNext:    that.record.IsXNext,
		Outcome:    that.record.Outcome(),
		Role:       that.role,
		RosterSize: that.rosterSize,
		PeerLost:   that.phase == PhasePeerLost,
		Phase:      that.phase,
		Advisory:   that.advisory,
	}
}

func (that *Synchronizer) applyRosterLocked(size int) {
	that.rosterSize = size

	if that.phase == PhaseNotJoined && that.joining && size > 0 {
		switch {
		case size == 1:
			that.role = entity.PlayerX
			that.phase = PhaseRoleAssigned
		case size == 2:
			that.role = entity.PlayerO
			that.phase = PhaseRoleAssigned
		default:
			that.phase = PhaseSpectating
			that.advisory = AdvisoryRoomFull
		}

		that.logger.Info("role assigned", "role", that.role, "phase", that.phase, "roster_size", size)
	}

	if that.role == entity.EmptyCell {
		return
	}

	if size >= 2 && !that.started {
		that.started = true
		that.phase = PhaseActive
		that.advisory = ""
	}

	if that.phase == PhaseActive && size < 2 && that.record.Outcome().IsInProgress() {
		that.phase = PhasePeerLost
		that.advisory = AdvisoryPeerLost

		that.logger.Info("peer lost", "roster_size", size)
	}
}

func (that *Synchronizer) validateMoveLocked() error {
	switch {
	case that.phase == PhaseNotJoined || that.phase == PhaseLeft:
		that.advisory = AdvisoryNotJoined
		return apperror.ErrNotJoined
	case that.phase == PhaseSpectating:
		that.advisory = AdvisoryRoomFull
		return apperror.ErrRoomFull
	case that.phase == PhasePeerLost:
		that.advisory = AdvisoryPeerLost
		return apperror.ErrPeerLost
	case that.record.Outcome().IsTerminal():
		that.advisory = AdvisoryGameOver
		return apperror.ErrGameFinished
	case !that.started:
		that.advisory = AdvisoryWaiting
		return apperror.ErrGameIsNotStarted
	case that.record.Turn() != that.role:
		that.advisory = AdvisoryNotYourTurn
		return apperror.ErrNotYourTurn
	}

	return nil
}

func (that *Synchronizer) addSubscription(sub Subscription) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.subs = append(that.subs, sub)
}

// abortJoin drops the subscriptions made so far so a failed Join leaves nothing behind.
func (that *Synchronizer) abortJoin(err error) error {
	that.mu.Lock()
	subs := that.subs
	that.subs = nil
	that.joining = false
	that.mu.Unlock()

	for _, sub := range subs {
		if unsubErr := that.store.Unsubscribe(sub); unsubErr != nil {
			that.logger.Warn("failed to unsubscribe after join error", "subscription", sub.ID, "error", unsubErr)
		}
	}

	return err
}

func (that *Synchronizer) notifyLocked() {
	if that.phase == PhaseLeft {
		return
	}

	select {
	case that.changes <- struct{}{}:
	default:
	}
}
