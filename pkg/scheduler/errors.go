package scheduler

import "github.com/pkg/errors"

// ErrAlreadyResolved is returned when resolving a checkpoint that is no
// longer pending. The losing caller gets a conflict and nothing is mutated.
var ErrAlreadyResolved = errors.New("checkpoint already resolved")

// ErrDependencyUnsatisfied is returned when a unit is asked to run while
// its dependencies are not terminal successful. The readiness engine
// prevents this in-process; out-of-process workers release the entry back
// to the queue instead of retrying blindly.
var ErrDependencyUnsatisfied = errors.New("unit dependencies not satisfied")

// ErrWorkflowTerminal is returned for operations that require a live
// workflow (cancel, unit execution) against a terminal one.
var ErrWorkflowTerminal = errors.New("workflow already terminal")

// ErrUnauthorized is returned when the acting user may not resolve
// checkpoints for the owning workflow.
var ErrUnauthorized = errors.New("actor not authorized for workflow")
