package apperror

import "errors"

var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrCellOccupied     = errors.New("cell is already occupied")
	ErrInvalidCell      = errors.New("invalid cell index")
	ErrPeerLost         = errors.New("opponent left the game")
	ErrNotJoined        = errors.New("not joined to a room")
	ErrRoomFull         = errors.New("room already has two players")
)
