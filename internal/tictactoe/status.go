package tictactoe

import (
	"sync"

	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
)

// Score is the cumulative tally of finished matches.
type Score struct {
	X     int `json:"x"`
	O     int `json:"o"`
	Draws int `json:"draws"`
}

// Scoreboard counts finished matches across resets. It lives only in memory.
type Scoreboard struct {
	mu    sync.Mutex
	score Score
}

func NewScoreboard() *Scoreboard {
	return &Scoreboard{}
}

func (that *Scoreboard) Record(outcome entity.Outcome) {
	that.mu.Lock()
	defer that.mu.Unlock()

	switch {
	case outcome.Status == entity.StatusDraw:
		that.score.Draws++
	case outcome.Status == entity.StatusWon && outcome.Winner == entity.PlayerX:
		that.score.X++
	case outcome.Status == entity.StatusWon && outcome.Winner == entity.PlayerO:
		that.score.O++
	}
}

func (that *Scoreboard) Score() Score {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.score
}

// StatusMessage is the line shown to the player for the current outcome.
func StatusMessage(mode Mode, computer entity.Mark, state MatchState) string {
	outcome := state.Outcome

	switch {
	case outcome.Status == entity.StatusDraw && mode == ModeAI:
		return "AI: A well-fought draw. Stalemated."
	case outcome.Status == entity.StatusDraw:
		return "A well-fought draw. Stalemated."
	case outcome.Status == entity.StatusWon && mode == ModeAI && outcome.Winner == computer:
		return "AI: As expected, logic prevails. Better luck next time!"
	case outcome.Status == entity.StatusWon && mode == ModeAI:
		return "AI: Incredible! You've bested me. I'll definitely win the next one!"
	case outcome.Status == entity.StatusWon:
		return "Player " + string(outcome.Winner) + " Wins!"
	default:
		return "Turn: " + string(state.Turn())
	}
}
