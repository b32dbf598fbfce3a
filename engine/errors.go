package engine

import "errors"

var (
	// ErrBusy means another resolution for the game holds its token.
	ErrBusy = errors.New("round resolution already in progress")
	// ErrNotFound covers missing games and participants, and games that are
	// not accepting actions.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps store failures. A failed commit leaves the game
	// exactly as it was before the attempt.
	ErrPersistence = errors.New("persistence failure")
)
