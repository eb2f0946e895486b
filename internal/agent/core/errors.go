package core

import (
	"errors"
	"fmt"
)

// ErrNoAgentsAvailable is returned when a project has no agents at all.
// A pool where every agent is busy is not fatal; the selector falls back
// instead.
var ErrNoAgentsAvailable = errors.New("no agents available for project")

// ErrEmptyPath is returned when path selection is invoked with no node ids.
var ErrEmptyPath = errors.New("thought path is empty")

// ErrSynthesisFailure is returned when no thought content exists to
// synthesize from.
var ErrSynthesisFailure = errors.New("no thoughts available for synthesis")

// ErrSessionNotFound is returned for operations against an unknown or
// already closed session.
var ErrSessionNotFound = errors.New("collaboration session not found")

// ErrVoteTimeout marks a single participant's vote that did not arrive in
// time. It never fails a decision round; the vote is recorded as abstained.
var ErrVoteTimeout = errors.New("vote timed out")

// DisconnectedPathError reports the first adjacent node pair that violates
// the path connectivity rule.
type DisconnectedPathError struct {
	FromID string
	ToID   string
}

func (e DisconnectedPathError) Error() string {
	return fmt.Sprintf("thought path disconnected between %s and %s", e.FromID, e.ToID)
}

// ExternalServiceError wraps a failure from one of the external
// collaborators (reasoning engine, completion service, repository,
// transport) with the collaborator's name.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e ExternalServiceError) Unwrap() error { return e.Err }
