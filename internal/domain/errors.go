package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is.
var (
	// ErrClosedByPeer is returned when the remote side closed a connection
	// the program expected to keep using.
	ErrClosedByPeer = errors.New("socklab: connection closed by peer")

	// ErrAuthFailed is returned when the transfer server rejects credentials.
	ErrAuthFailed = errors.New("socklab: authentication failed")

	// ErrInvalidPath is returned for paths that do not exist or escape the
	// server root.
	ErrInvalidPath = errors.New("socklab: invalid path")

	// ErrUnknownCommand is returned for commands the transfer server does
	// not implement.
	ErrUnknownCommand = errors.New("socklab: unknown command")

	// ErrProtocol is returned when a peer sends an unexpected message.
	ErrProtocol = errors.New("socklab: protocol violation")
)

// Step names the socket call that failed.
type Step string

const (
	StepSocket  Step = "socket"
	StepBind    Step = "bind"
	StepAccept  Step = "accept"
	StepRead    Step = "read"
	StepSend    Step = "send"
	StepConnect Step = "connect"
)

// exitCodes follows the lab programs: socket 1, bind 2, accept 3, read 4.
// The clients exited 1 for any failure before sending.
var exitCodes = map[Step]int{
	StepSocket:  1,
	StepBind:    2,
	StepAccept:  3,
	StepRead:    4,
	StepSend:    5,
	StepConnect: 1,
}

// StepError wraps a socket failure with the step it happened in.
type StepError struct {
	Step Step
	Err  error
}

// NewStepError wraps err, or returns nil when err is nil.
func NewStepError(step Step, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ExitCode returns the process status for the failed step.
func (e *StepError) ExitCode() int {
	if c, ok := exitCodes[e.Step]; ok {
		return c
	}
	return 1
}

// ExitCode returns the process status for err: 0 for nil, the step code
// for a StepError anywhere in the chain, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.ExitCode()
	}
	return 1
}
