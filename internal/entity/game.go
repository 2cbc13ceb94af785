package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-duel/internal/apperror"
)

const BoardSize = 9

// Mark is the content of a single cell: empty, X or O.
type Mark string

const (
	EmptyCell Mark = ""
	PlayerX   Mark = "X"
	PlayerO   Mark = "O"
)

const (
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusDraw       Status = "draw"
)

var (
	ErrInvalidMark = errors.New("invalid mark")

	// WinLines is scanned in this exact order: rows, columns, diagonals.
	WinLines = [8]Line{
		{0, 1, 2},
		{3, 4, 5},
		{6, 7, 8},
		{0, 3, 6},
		{1, 4, 7},
		{2, 5, 8},
		{0, 4, 8},
		{2, 4, 6},
	}
)

// Line is an index-triple of cells that wins when all three hold the same mark.
type Line [3]int

// Board is a 3x3 grid stored row-major.
type Board [BoardSize]Mark

// Status of a board as seen by Evaluate.
type Status string

// Outcome is the terminal state of a board. Winner and Line are only set when Status is StatusWon.
type Outcome struct {
	Status Status `json:"status"`
	Winner Mark   `json:"winner,omitempty"`
	Line   *Line  `json:"line,omitempty"`
}

// Opponent returns the other player's mark. EmptyCell has no opponent.
func (that Mark) Opponent() Mark {
	switch that {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	default:
		return EmptyCell
	}
}

func (that Mark) IsPlayer() bool {
	return that == PlayerX || that == PlayerO
}

// MarshalJSON encodes an empty cell as null, matching the shared record shape.
func (that Mark) MarshalJSON() ([]byte, error) {
	if that == EmptyCell {
		return []byte("null"), nil
	}

	return json.Marshal(string(that))
}

func (that *Mark) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*that = EmptyCell
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal mark: %w", err)
	}

	mark, err := ParseMark(raw)
	if err != nil {
		return err
	}

	*that = mark

	return nil
}

func ParseMark(raw string) (Mark, error) {
	switch Mark(raw) {
	case EmptyCell, PlayerX, PlayerO:
		return Mark(raw), nil
	default:
		return EmptyCell, fmt.Errorf("%w: %q", ErrInvalidMark, raw)
	}
}

// EmptyCells returns the indexes of the empty cells in ascending order.
func (that *Board) EmptyCells() []int {
	cells := make([]int, 0, BoardSize)
	for i, cell := range that {
		if cell == EmptyCell {
			cells = append(cells, i)
		}
	}

	return cells
}

func (that *Board) IsFull() bool {
	for _, cell := range that {
		if cell == EmptyCell {
			return false
		}
	}

	return true
}

// Place writes mark into an empty cell.
func (that *Board) Place(cell int, mark Mark) error {
	if cell < 0 || cell >= BoardSize {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that[cell] != EmptyCell {
		return fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, cell)
	}

	that[cell] = mark

	return nil
}

func (that Outcome) IsTerminal() bool {
	return that.Status == StatusWon || that.Status == StatusDraw
}

func (that Outcome) IsInProgress() bool {
	return that.Status == StatusInProgress || that.Status == ""
}

// Evaluate returns the first winning line in scan order, a draw on a full board, or in progress.
func Evaluate(board Board) Outcome {
	for _, line := range WinLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != EmptyCell && a == b && b == c {
			won := line
			return Outcome{Status: StatusWon, Winner: a, Line: &won}
		}
	}

	// the game will continue until all the squares are full
	if !board.IsFull() {
		return Outcome{Status: StatusInProgress}
	}

	return Outcome{Status: StatusDraw}
}
