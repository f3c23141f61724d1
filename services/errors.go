package services

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidMode       = errors.New("unknown game mode")
	ErrSessionFull       = errors.New("session is full")
	ErrSessionClosed     = errors.New("session is not accepting players")
	ErrInvalidTransition = errors.New("invalid session status change")
	ErrNotInSession      = errors.New("player is not in this session")
	ErrNotHost           = errors.New("only the host can do that")
	ErrInsufficientFunds = errors.New("insufficient coins")
	ErrAlreadyOwned      = errors.New("character already owned")
	ErrNotOwned          = errors.New("character not owned")
	ErrUnknownCharacter  = errors.New("unknown character")
	ErrPriceMismatch     = errors.New("price does not match catalog")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrInvalidUsername   = errors.New("username must be 3-24 letters, digits, '_' or '-'")
	ErrInvitationClosed  = errors.New("invitation is no longer pending")
	ErrInvitationExpired = errors.New("invitation has expired")
	ErrDuplicateInvite   = errors.New("a pending invitation already exists")
	ErrSelfInvite        = errors.New("cannot invite yourself")
	ErrForbidden         = errors.New("not allowed")
	ErrInvalidState      = errors.New("invalid player state")
	ErrZeroAmount        = errors.New("coin amount must not be zero")
)
