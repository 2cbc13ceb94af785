// Package minimax picks computer moves: an exhaustive adversarial search plus
// difficulty tiers that mix it with uniformly random play.
//
// O is the maximizing side and X the minimizing side, so scores are always
// read from O's point of view: +10 O wins, -10 X wins, 0 draw. There is no
// depth discount; ties between equally scored moves go to the lowest cell index.
//
// Callers must not search a board that is already terminal or full.
package minimax

import (
	"math"

	"github.com/rocketscienceinc/tictactoe-duel/internal/entity"
	"lukechampine.com/frand"
)

const (
	scoreOWins = 10
	scoreXWins = -10
	scoreDraw  = 0

	noMove = -1
)

// Random is the source of randomness for the Easy and Medium tiers.
// *math/rand.Rand satisfies it.
type Random interface {
	Intn(n int) int
}

// Move is a searched cell and the score it leads to under perfect play.
type Move struct {
	Index int `json:"index"`
	Score int `json:"score"`
}

type secureRandom struct{}

func (secureRandom) Intn(n int) int {
	return frand.Intn(n)
}

// SecureRandom is the default unseeded source.
var SecureRandom Random = secureRandom{}

// BestMove runs the exact search for mover. The board is taken by value and never mutated.
// On a board without empty cells it returns the terminal score with Index -1.
func BestMove(board entity.Board, mover entity.Mark) Move {
	if score, ok := terminalScore(board); ok {
		return Move{Index: noMove, Score: score}
	}

	best := Move{Index: noMove}
	if mover == entity.PlayerO {
		best.Score = math.MinInt
	} else {
		best.Score = math.MaxInt
	}

	for i, cell := range board {
		if cell != entity.EmptyCell {
			continue
		}

		next := board
		next[i] = mover
		score := BestMove(next, mover.Opponent()).Score

		// strict comparison keeps the first cell among equal scores
		if (mover == entity.PlayerO && score > best.Score) || (mover != entity.PlayerO && score < best.Score) {
			best = Move{Index: i, Score: score}
		}
	}

	return best
}

// ChooseMove returns the cell the computer plays as aiMark at the given difficulty.
func ChooseMove(board entity.Board, difficulty entity.Difficulty, aiMark entity.Mark, rnd Random) int {
	if rnd == nil {
		rnd = SecureRandom
	}

	emptyCells := board.EmptyCells()
	if len(emptyCells) == 0 {
		return noMove
	}

	switch difficulty {
	case entity.EasyDifficulty:
		return randomCell(emptyCells, rnd)
	case entity.MediumDifficulty:
		if rnd.Intn(2) == 0 {
			return BestMove(board, aiMark).Index
		}
		return randomCell(emptyCells, rnd)
	default:
		return BestMove(board, aiMark).Index
	}
}

func randomCell(emptyCells []int, rnd Random) int {
	return emptyCells[rnd.Intn(len(emptyCells))]
}

func terminalScore(board entity.Board) (int, bool) {
	outcome := entity.Evaluate(board)

	switch {
	case outcome.Status == entity.StatusWon && outcome.Winner == entity.PlayerO:
		return scoreOWins, true
	case outcome.Status == entity.StatusWon:
		return scoreXWins, true
	case outcome.Status == entity.StatusDraw:
		return scoreDraw, true
	default:
		return 0, false
	}
}
