package domain

import "errors"

var (
	// ErrRunUnavailable signals that a run's archive has not been published yet.
	// It is the normal outcome for the newest runs and is never fatal.
	ErrRunUnavailable = errors.New("run not available")

	// ErrResolve wraps failures to geocode a single station.
	ErrResolve = errors.New("resolve location")

	// ErrDecodeShape is returned when a member does not decode into exactly
	// GroupCount datasets, or a dataset lacks a required variable.
	ErrDecodeShape = errors.New("unexpected decoded shape")

	// ErrSchemaDrift is returned when tables of the same group disagree on columns.
	ErrSchemaDrift = errors.New("schema drift")
)
