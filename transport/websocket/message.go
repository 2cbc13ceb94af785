package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/session"
	"github.com/rocketscienceinc/tictactoe-duel/internal/tictactoe"
)

const (
	actionPing = "ping"

	actionMatchNew   = "match:new"
	actionMatchTurn  = "match:turn"
	actionMatchReset = "match:reset"
	actionMatchState = "match:state"

	actionRoomJoin  = "room:join"
	actionRoomTurn  = "room:turn"
	actionRoomLeave = "room:leave"
	actionRoomState = "room:state"
	actionRoomLeft  = "room:left"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type NewMatchRequest struct {
	Mode       tictactoe.Mode `json:"mode"`
	Difficulty string         `json:"difficulty,omitempty"`
	// Computer is the mark the computer plays in an ai match; empty means O.
	Computer entity.Mark `json:"computer,omitempty"`
}

type TurnRequest struct {
	Cell *int `json:"cell"`
}

type JoinRoomRequest struct {
	RoomID string `json:"room_id,omitempty"`
}

type MatchPayload struct {
	Mode       tictactoe.Mode       `json:"mode"`
	Difficulty entity.Difficulty    `json:"difficulty,omitempty"`
	Computer   entity.Mark          `json:"computer,omitempty"`
	State      tictactoe.MatchState `json:"state"`
	Thinking   bool                 `json:"thinking"`
	Status     string               `json:"status"`
	Score      tictactoe.Score      `json:"score"`
}

type RoomPayload struct {
	Room   session.View `json:"room"`
	Status string       `json:"status"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return b
}

// roomStatus is the headline shown for a room view.
func roomStatus(view session.View) string {
	switch {
	case view.PeerLost:
		return "Opponent disconnected"
	case view.Outcome.Status == entity.StatusDraw:
		return "Stalemate"
	case view.Outcome.Status == entity.StatusWon:
		return string(view.Outcome.Winner) + " Wins"
	case view.Phase == session.PhaseSpectating:
		return "Watching, turn: " + string(turnOf(view))
	case view.Phase == session.PhaseRoleAssigned:
		return "Waiting for opponent"
	default:
		return "Turn: " + string(turnOf(view))
	}
}

func turnOf(view session.View) entity.Mark {
	if view.IsXNext {
		return entity.PlayerX
	}

	return entity.PlayerO
}
