package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/minimax"
)

const maxBodyBytes = 1 << 12

var (
	errGameFinished = errors.New("board is already decided")
	errInvalidMark  = errors.New("mark must be X or O")
)

type Handlers interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)

	Evaluate(w http.ResponseWriter, r *http.Request)
	Move(w http.ResponseWriter, r *http.Request)
}

type EvaluateRequest struct {
	Board entity.Board `json:"board"`
}

type MoveRequest struct {
	Board      entity.Board `json:"board"`
	Difficulty string       `json:"difficulty,omitempty"`
	Mark       entity.Mark  `json:"mark,omitempty"`
}

type MoveResponse struct {
	Cell    int            `json:"cell"`
	Board   entity.Board   `json:"board"`
	Outcome entity.Outcome `json:"outcome"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	logger     *slog.Logger
	difficulty entity.Difficulty
	random     minimax.Random
}

// NewHandlers builds the stateless game endpoints. A nil random falls back to minimax.SecureRandom.
func NewHandlers(logger *slog.Logger, difficulty entity.Difficulty, random minimax.Random) Handlers {
	if random == nil {
		random = minimax.SecureRandom
	}

	return &handlers{
		logger:     logger.With("component", "rest"),
		difficulty: difficulty,
		random:     random,
	}
}

func (that *handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var request EvaluateRequest
	if err := decode(w, r, &request); err != nil {
		that.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	that.writeJSON(w, http.StatusOK, entity.Evaluate(request.Board))
}

func (that *handlers) Move(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Move")

	request := MoveRequest{Mark: entity.PlayerO}
	if err := decode(w, r, &request); err != nil {
		that.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if !request.Mark.IsPlayer() {
		that.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errInvalidMark.Error()})
		return
	}

	difficulty := that.difficulty
	if request.Difficulty != "" {
		parsed, err := entity.ParseDifficulty(request.Difficulty)
		if err != nil {
			that.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		difficulty = parsed
	}

	if entity.Evaluate(request.Board).IsTerminal() {
		that.writeJSON(w, http.StatusConflict, ErrorResponse{Error: errGameFinished.Error()})
		return
	}

	cell := minimax.ChooseMove(request.Board, difficulty, request.Mark, that.random)

	board := request.Board
	if err := board.Place(cell, request.Mark); err != nil {
		log.Error("search returned an unplayable cell", "cell", cell, "error", err)
		that.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to choose a move"})
		return
	}

	log.Debug("move chosen", "cell", cell, "difficulty", difficulty, "mark", request.Mark)

	that.writeJSON(w, http.StatusOK, MoveResponse{
		Cell:    cell,
		Board:   board,
		Outcome: entity.Evaluate(board),
	})
}

func decode(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(out); err != nil {
		return errors.New("invalid request body")
	}

	return nil
}

func (that *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}
