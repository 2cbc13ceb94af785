package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-duel/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
	"github.com/rocketscienceinc/tictactoe-duel/internal/tictactoe"
)

const roomIDLength = 6

func (that *Server) handleMatchNew(_ context.Context, c *client, msg *Message) error {
	log := that.logger.With("method", "handleMatchNew")

	request := NewMatchRequest{Mode: tictactoe.ModeAI}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &request); err != nil {
			c.sendError(msg.Action, "invalid payload")
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	if request.Mode != tictactoe.ModeAI && request.Mode != tictactoe.ModeFriend {
		c.sendError(msg.Action, "mode must be ai or friend")
		return nil
	}

	difficulty := that.opts.Difficulty
	if request.Difficulty != "" {
		parsed, err := entity.ParseDifficulty(request.Difficulty)
		if err != nil {
			c.sendError(msg.Action, err.Error())
			return nil
		}
		difficulty = parsed
	}

	computer := request.Computer
	if computer == entity.EmptyCell {
		computer = entity.PlayerO
	}

	payload := func(state tictactoe.MatchState) MatchPayload {
		return that.matchPayload(c, request.Mode, difficulty, computer, state)
	}

	match := tictactoe.NewGameController(tictactoe.Options{
		Mode:         request.Mode,
		Difficulty:   difficulty,
		ComputerMark: computer,
		ThinkDelay:   that.opts.ThinkDelay,
		Scoreboard:   c.scoreboard,
		Logger:       that.logger,
		OnChange: func(state tictactoe.MatchState) {
			c.sendJSON(actionMatchState, payload(state))
		},
	})
	c.replaceMatch(match)

	c.sendJSON(actionMatchState, payload(match.State()))
	log.Info("match started", "mode", request.Mode, "difficulty", difficulty)

	return nil
}

func (that *Server) handleMatchTurn(_ context.Context, c *client, msg *Message) error {
	match, err := c.currentMatch()
	if err != nil {
		c.sendError(msg.Action, "start a match first")
		return nil
	}

	cell, err := parseCell(msg)
	if err != nil {
		c.sendError(msg.Action, err.Error())
		return nil
	}

	if err = match.ApplyMove(cell); err != nil {
		c.sendError(msg.Action, advisory(err))
	}

	return nil
}

func (that *Server) handleMatchReset(_ context.Context, c *client, msg *Message) error {
	match, err := c.currentMatch()
	if err != nil {
		c.sendError(msg.Action, "start a match first")
		return nil
	}

	match.Reset()

	return nil
}

func (that *Server) handleRoomJoin(ctx context.Context, c *client, msg *Message) error {
	log := that.logger.With("method", "handleRoomJoin")

	var request JoinRoomRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &request); err != nil {
			c.sendError(msg.Action, "invalid payload")
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	roomID := strings.ToUpper(strings.TrimSpace(request.RoomID))
	if roomID == "" {
		roomID = newRoomID()
	}

	room := session.NewSynchronizer(that.logger, that.store, roomID)
	if err := c.enterRoom(room); err != nil {
		c.sendError(msg.Action, "leave the current room first")
		return nil
	}

	go func() {
		for range room.Changes() {
			c.sendJSON(actionRoomState, RoomPayload{Room: room.View(), Status: roomStatus(room.View())})
		}
	}()

	if err := room.Join(ctx); err != nil {
		c.exitRoom(room)
		if leaveErr := room.Leave(ctx); leaveErr != nil {
			log.Warn("failed to release room after join error", "error", leaveErr)
		}

		c.sendError(msg.Action, "room is unavailable")
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	log.Info("joined room", "room_id", roomID)

	return nil
}

func (that *Server) handleRoomTurn(ctx context.Context, c *client, msg *Message) error {
	room, err := c.currentRoom()
	if err != nil {
		c.sendError(msg.Action, "join a room first")
		return nil
	}

	cell, err := parseCell(msg)
	if err != nil {
		c.sendError(msg.Action, err.Error())
		return nil
	}

	if err = room.SubmitMove(ctx, cell); err != nil {
		c.sendError(msg.Action, advisory(err))

		if !isRejection(err) {
			return fmt.Errorf("failed to submit move: %w", err)
		}
	}

	return nil
}

func (that *Server) handleRoomLeave(ctx context.Context, c *client, msg *Message) error {
	room, err := c.currentRoom()
	if err != nil {
		c.sendError(msg.Action, "join a room first")
		return nil
	}

	if !c.exitRoom(room) {
		return nil
	}

	if err = room.Leave(ctx); err != nil {
		c.sendError(msg.Action, "failed to leave room cleanly")
		return fmt.Errorf("failed to leave room: %w", err)
	}

	c.sendJSON(actionRoomLeft, JoinRoomRequest{RoomID: room.RoomID()})

	return nil
}

func (that *Server) matchPayload(
	c *client, mode tictactoe.Mode, difficulty entity.Difficulty, computer entity.Mark, state tictactoe.MatchState,
) MatchPayload {
	payload := MatchPayload{
		Mode:   mode,
		State:  state,
		Status: tictactoe.StatusMessage(mode, computer, state),
		Score:  c.scoreboard.Score(),
	}

	if mode == tictactoe.ModeAI {
		payload.Difficulty = difficulty
		payload.Computer = computer
		payload.Thinking = state.Outcome.IsInProgress() && state.Turn() == computer
	}

	return payload
}

func parseCell(msg *Message) (int, error) {
	var request TurnRequest
	if err := json.Unmarshal(msg.Payload, &request); err != nil || request.Cell == nil {
		return 0, errors.New("cell is required")
	}

	return *request.Cell, nil
}

func newRoomID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:roomIDLength])
}

// isRejection reports whether err is a refused move rather than a store failure.
func isRejection(err error) bool {
	for _, target := range []error{
		apperror.ErrGameFinished,
		apperror.ErrGameIsNotStarted,
		apperror.ErrNotYourTurn,
		apperror.ErrCellOccupied,
		apperror.ErrPeerLost,
		apperror.ErrNotJoined,
		apperror.ErrRoomFull,
		apperror.ErrInvalidCell,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func advisory(err error) string {
	switch {
	case errors.Is(err, apperror.ErrGameFinished):
		return session.AdvisoryGameOver
	case errors.Is(err, apperror.ErrGameIsNotStarted):
		return session.AdvisoryWaiting
	case errors.Is(err, apperror.ErrNotYourTurn):
		return session.AdvisoryNotYourTurn
	case errors.Is(err, apperror.ErrCellOccupied):
		return session.AdvisoryCellTaken
	case errors.Is(err, apperror.ErrInvalidCell):
		return session.AdvisoryInvalidCell
	case errors.Is(err, apperror.ErrPeerLost):
		return session.AdvisoryPeerLost
	case errors.Is(err, apperror.ErrNotJoined):
		return session.AdvisoryNotJoined
	case errors.Is(err, apperror.ErrRoomFull):
		return session.AdvisoryRoomFull
	default:
		return session.AdvisoryConnection
	}
}
