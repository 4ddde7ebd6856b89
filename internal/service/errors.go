package service

import (
	"errors"
	"fmt"
)

var (
	ErrEntryNotFound     = errors.New("queue entry not found")
	ErrVersionConflict   = errors.New("entry version conflict")
	ErrInvalidTransition = errors.New("status does not permit this operation")
	ErrEmptyQueue        = errors.New("no waiting entries in queue")
	ErrProviderBusy      = errors.New("provider already has an entry called or in service")
	ErrInvalidState      = errors.New("invalid queue state")

	ErrProviderNotFound = errors.New("provider not found")

	// InvalidState refinements. errors.Is against ErrInvalidState matches
	// all of them.
	ErrQueueClosed         = fmt.Errorf("%w: provider queue is closed", ErrInvalidState)
	ErrWalkInsNotAccepted  = fmt.Errorf("%w: provider does not accept walk-ins", ErrInvalidState)
	ErrScheduleConflict    = fmt.Errorf("%w: scheduled slot already taken", ErrInvalidState)
	ErrMissingScheduleTime = fmt.Errorf("%w: scheduled entry requires a slot time", ErrInvalidState)
)
