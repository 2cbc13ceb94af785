package tictactoe

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-duel/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-duel/internal/minimax"
)

const (
	ModeAI     Mode = "ai"
	ModeFriend Mode = "friend"
)

// Mode selects single-player against the computer or pass-and-play.
type Mode string

// MatchState is the local state of one match.
type MatchState struct {
	Board   entity.Board   `json:"board"`
	IsXNext bool           `json:"isXNext"`
	Outcome entity.Outcome `json:"outcome"`
}

func newMatchState() MatchState {
	return MatchState{IsXNext: true, Outcome: entity.Outcome{Status: entity.StatusInProgress}}
}

func (that *MatchState) Turn() entity.Mark {
	if that.IsXNext {
		return entity.PlayerX
	}

	return entity.PlayerO
}

type Options struct {
	Mode       Mode
	Difficulty entity.Difficulty
	// ComputerMark defaults to O.
	ComputerMark entity.Mark
	// ThinkDelay postpones the computer move; zero plays it before ApplyMove returns.
	ThinkDelay time.Duration
	Random     minimax.Random
	Scoreboard *Scoreboard
	Logger     *slog.Logger
	// OnChange is called outside the controller lock after every state change.
	OnChange func(MatchState)
}

// GameController runs a match on a single device: AwaitingMove(turn) until the outcome is terminal.
type GameController struct {
	mu sync.Mutex

	logger *slog.Logger
	opts   Options

	state      MatchState
	thinking   bool
	generation uint64
	timer      *time.Timer
}

func NewGameController(opts Options) *GameController {
	if opts.Mode == "" {
		opts.Mode = ModeFriend
	}

	if opts.Difficulty == "" {
		opts.Difficulty = entity.ImpossibleDifficulty
	}

	if !opts.ComputerMark.IsPlayer() {
		opts.ComputerMark = entity.PlayerO
	}

	if opts.Random == nil {
		opts.Random = minimax.SecureRandom
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	controller := &GameController{
		logger: opts.Logger.With("component", "game_controller", "mode", string(opts.Mode)),
		opts:   opts,
		state:  newMatchState(),
	}

	// the computer opens when it plays X
	controller.mu.Lock()
	controller.scheduleComputerLocked()
	controller.mu.Unlock()

	return controller
}

// ApplyMove plays cell for the side to move. Illegal moves are rejected and leave the state untouched.
func (that *GameController) ApplyMove(cell int) error {
	that.mu.Lock()

	if err := that.validateHumanMoveLocked(); err != nil {
		that.mu.Unlock()
		return err
	}

	if err := that.applyLocked(cell); err != nil {
		that.mu.Unlock()
		return fmt.Errorf("invalid turn: %w", err)
	}

	that.scheduleComputerLocked()
	state := that.state
	that.mu.Unlock()

	that.notify(state)

	return nil
}

// Reset starts a fresh match and drops any pending computer move. The scoreboard is kept.
func (that *GameController) Reset() {
	that.mu.Lock()

	that.generation++
	if that.timer != nil {
		that.timer.Stop()
		that.timer = nil
	}

	that.thinking = false
	that.state = newMatchState()
	that.scheduleComputerLocked()
	state := that.state
	that.mu.Unlock()

	that.logger.Debug("match reset")
	that.notify(state)
}

// Stop cancels a pending computer move without touching the board.
func (that *GameController) Stop() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.generation++
	if that.timer != nil {
		that.timer.Stop()
		that.timer = nil
	}
	that.thinking = false
}

func (that *GameController) State() MatchState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state
}

// Thinking reports whether a computer move is pending.
func (that *GameController) Thinking() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.thinking
}

func (that *GameController) Mode() Mode {
	return that.opts.Mode
}

func (that *GameController) ComputerMark() entity.Mark {
	return that.opts.ComputerMark
}

func (that *GameController) validateHumanMoveLocked() error {
	if that.state.Outcome.IsTerminal() {
		return apperror.ErrGameFinished
	}

	if that.opts.Mode == ModeAI && (that.thinking || that.state.Turn() == that.opts.ComputerMark) {
		return apperror.ErrNotYourTurn
	}

	return nil
}

func (that *GameController) applyLocked(cell int) error {
	mark := that.state.Turn()

	if err := that.state.Board.Place(cell, mark); err != nil {
		return err
	}

	that.state.IsXNext = !that.state.IsXNext
	that.state.Outcome = entity.Evaluate(that.state.Board)

	if that.state.Outcome.IsTerminal() {
		that.logger.Info("match finished", "status", that.state.Outcome.Status, "winner", that.state.Outcome.Winner)

		if that.opts.Scoreboard != nil {
			that.opts.Scoreboard.Record(that.state.Outcome)
		}
	}

	return nil
}

// scheduleComputerLocked plays or schedules the computer move when it is the computer's turn.
func (that *GameController) scheduleComputerLocked() {
	if that.opts.Mode != ModeAI || that.thinking {
		return
	}

	if !that.state.Outcome.IsInProgress() || that.state.Turn() != that.opts.ComputerMark {
		return
	}

	that.thinking = true

	if that.opts.ThinkDelay <= 0 {
		that.playComputerLocked()
		return
	}

	generation := that.generation
	that.timer = time.AfterFunc(that.opts.ThinkDelay, func() {
		that.playComputer(generation)
	})
}

func (that *GameController) playComputer(generation uint64) {
	that.mu.Lock()

	if generation != that.generation || !that.thinking {
		that.mu.Unlock()
		return
	}

	that.timer = nil
	that.playComputerLocked()
	state := that.state
	that.mu.Unlock()

	that.notify(state)
}

func (that *GameController) playComputerLocked() {
	log := that.logger.With("method", "playComputer")
	defer func() { that.thinking = false }()

	cell := minimax.ChooseMove(that.state.Board, that.opts.Difficulty, that.opts.ComputerMark, that.opts.Random)
	if err := that.applyLocked(cell); err != nil {
		log.Error("computer failed to make turn", "cell", cell, "error", err)
		return
	}

	log.Debug("computer made a turn", "cell", cell, "difficulty", that.opts.Difficulty)
}

func (that *GameController) notify(state MatchState) {
	if that.opts.OnChange != nil {
		that.opts.OnChange(state)
	}
}
