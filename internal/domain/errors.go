package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNoFreeSlot    = errors.New("no free slot")
	ErrDuplicateSlot = errors.New("symbol already managed")
	ErrValidation    = errors.New("invalid parameters")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")
)
