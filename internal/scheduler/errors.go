package scheduler

import "errors"

// Errors returned across the Control API (spec.md §6's error column).
var (
	ErrDuplicateID       = errors.New("scheduler: duplicate id")
	ErrUnknownDependency = errors.New("scheduler: unknown dependency")
	ErrWouldCycle        = errors.New("scheduler: edge would introduce a cycle")
	ErrInvalidConstraint = errors.New("scheduler: invalid constraint")
	ErrUnknownID         = errors.New("scheduler: unknown id")
	ErrWrongState        = errors.New("scheduler: task is not in the expected state")
	ErrTimeout           = errors.New("scheduler: command deadline exceeded")
	ErrIO                = errors.New("scheduler: storage io error")
	ErrLocked            = errors.New("scheduler: storage locked by another writer")
	ErrCorrupt           = errors.New("scheduler: snapshot failed validation")
	ErrIncompatible      = errors.New("scheduler: snapshot schema incompatible")
	ErrShuttingDown      = errors.New("scheduler: shutting down")
)
