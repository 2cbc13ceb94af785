package entity

import (
	"errors"
	"fmt"
	"strings"
)

const (
	EasyDifficulty       Difficulty = "easy"
	MediumDifficulty     Difficulty = "medium"
	ImpossibleDifficulty Difficulty = "impossible"
)

const winnerDraw = "Draw"

var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Difficulty selects how much of the exact search the computer opponent uses.
type Difficulty string

func ParseDifficulty(raw string) (Difficulty, error) {
	switch difficulty := Difficulty(strings.ToLower(strings.TrimSpace(raw))); difficulty {
	case EasyDifficulty, MediumDifficulty, ImpossibleDifficulty:
		return difficulty, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, raw)
	}
}

// Record is the shared room state kept in the external store.
// Every write carries the complete board/turn/outcome triple.
type Record struct {
	ID      string      `json:"id"`
	Board   Board       `json:"board"`
	IsXNext bool        `json:"isXNext"`
	Winner  *WinnerData `json:"winner"`
}

// WinnerData is the terminal outcome as stored in a record: "X", "O" or "Draw" plus the winning line.
type WinnerData struct {
	Winner string `json:"winner"`
	Line   []int  `json:"line,omitempty"`
}

// NewRecord returns the seed record of a room: empty board, X to move.
func NewRecord(roomID string) *Record {
	return &Record{
		ID:      roomID,
		IsXNext: true,
	}
}

// Turn returns the mark whose move it is.
func (that *Record) Turn() Mark {
	if that.IsXNext {
		return PlayerX
	}

	return PlayerO
}

// Outcome restores the outcome of the record, falling back to evaluating the board when no winner was written.
func (that *Record) Outcome() Outcome {
	if that.Winner == nil {
		return Evaluate(that.Board)
	}

	if that.Winner.Winner == winnerDraw {
		return Outcome{Status: StatusDraw}
	}

	outcome := Outcome{Status: StatusWon, Winner: Mark(that.Winner.Winner)}
	if len(that.Winner.Line) == len(Line{}) {
		var line Line
		copy(line[:], that.Winner.Line)
		outcome.Line = &line
	}

	return outcome
}

// NewWinnerData converts an outcome into its stored form; in-progress outcomes have none.
func NewWinnerData(outcome Outcome) *WinnerData {
	switch outcome.Status {
	case StatusWon:
		data := &WinnerData{Winner: string(outcome.Winner)}
		if outcome.Line != nil {
			data.Line = append([]int(nil), outcome.Line[:]...)
		}

		return data
	case StatusDraw:
		return &WinnerData{Winner: winnerDraw}
	default:
		return nil
	}
}
