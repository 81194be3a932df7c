package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthorized    = errors.New("unauthorized access")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSignedOut       = errors.New("session signed out")
	ErrMissingDealID   = errors.New("deal id is required")
	ErrMissingEndpoint = errors.New("chat service unavailable")

	// Realtime channel.
	ErrNotConnected       = errors.New("chat not connected")
	ErrReconnectExhausted = errors.New("chat disconnected permanently, refresh needed")

	// Composer and deal actions.
	ErrEmptyMessage      = errors.New("message is empty")
	ErrSendInProgress    = errors.New("a message is already being sent")
	ErrUploadInProgress  = errors.New("an upload is already in progress")
	ErrActionInProgress  = errors.New("another deal action is in progress")
	ErrActionNotAllowed  = errors.New("action not allowed for the current deal status")
	ErrInvalidSignedLink = errors.New("invalid link received")
)
