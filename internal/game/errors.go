package game

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomFull             = errors.New("room full")
	ErrBadPassword          = errors.New("bad password")
	ErrAlreadyStarted       = errors.New("match already started")
	ErrNotAuthority         = errors.New("not room authority")
	ErrWouldDisplacePlayers = errors.New("settings change would displace players")
	ErrInvalidSlotIndex     = errors.New("invalid slot index")
	ErrInvalidSettings      = errors.New("invalid room settings")
	ErrNotReady             = errors.New("not all players ready")
	ErrUnknownPlayer        = errors.New("unknown player")
	ErrRoomClosed           = errors.New("room closed")

	ErrUnknownShooter     = errors.New("unknown shooter")
	ErrStaleOrFutureShot  = errors.New("shot outside validity window")
	ErrImplausibleOrigin  = errors.New("implausible shot origin")
	ErrMalformedDirection = errors.New("malformed shot direction")
	ErrOutOfAmmo          = errors.New("out of ammunition")
)
