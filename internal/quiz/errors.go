package quiz

import "errors"

var (
	// ErrInvalidConfiguration rejects a start request before generation; the
	// session state is left unchanged.
	ErrInvalidConfiguration = errors.New("invalid quiz configuration")

	// ErrGeneration means the question generator failed or returned unusable
	// data. The session moves to the error state.
	ErrGeneration = errors.New("question generation failed")

	// ErrNotActive is returned by answer, navigation and finish calls made
	// outside the active state.
	ErrNotActive = errors.New("quiz is not active")

	// ErrInvalidTransition is returned when an operation is not allowed from
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGenerationInFlight rejects a start while questions are being generated.
	ErrGenerationInFlight = errors.New("question generation already in progress")

	// ErrSuperseded is returned to a start call whose result was discarded
	// because the session was reset or restarted meanwhile.
	ErrSuperseded = errors.New("generation result discarded")

	// ErrAuthRequired blocks new generation after the provider reported
	// expired credentials, until the client re-authenticates.
	ErrAuthRequired = errors.New("re-authentication required")

	ErrClosed          = errors.New("session closed")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidOption   = errors.New("option index out of range")
)
