package service

import "errors"

// Service level errors.
var (
	// ErrEmptyEventID indicates a bid or query without an event.
	ErrEmptyEventID = errors.New("event id cannot be empty")
	// ErrEmptySongTitle indicates a bid whose song title is blank.
	ErrEmptySongTitle = errors.New("song title cannot be empty")
	// ErrUnknownStoreMode indicates an unrecognized persistence mode in
	// configuration.
	ErrUnknownStoreMode = errors.New("unknown store mode")
	// ErrRemoteURLRequired indicates remote mode without a ledger URL.
	ErrRemoteURLRequired = errors.New("remote store mode requires a ledger url")
)
