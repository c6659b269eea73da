package room

import "errors"

var (
	ErrRoomNotFound      = errors.New("this room does not exist")
	ErrRoomFull          = errors.New("the room is full of players")
	ErrInvalidCredential = errors.New("wrong password")
	ErrNotMember         = errors.New("you are not a member of this room")
	ErrNotOwner          = errors.New("you are not the owner")
	ErrInvalidRoom       = errors.New("invalid room parameters")
)
