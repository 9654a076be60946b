package mcp

import (
	"errors"
	"fmt"
)

// Bridge error taxonomy. Call paths surface these; the agent loop
// treats them all as tool errors.
var (
	ErrServerNotFound     = errors.New("mcp: server not found")
	ErrAlreadyConnected   = errors.New("mcp: server already connected")
	ErrServerDisconnected = errors.New("mcp: server disconnected")
	ErrTimeout            = errors.New("mcp: request timed out")
	ErrInvalidResponse    = errors.New("mcp: invalid response")
)

// LaunchError reports a failure to spawn the child process.
type LaunchError struct {
	Server string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("mcp: launch %s: %v", e.Server, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// InitializeError reports a failed handshake; the child has already
// been terminated when it surfaces.
type InitializeError struct {
	Server string
	Err    error
}

func (e *InitializeError) Error() string {
	return fmt.Sprintf("mcp: initialize %s: %v", e.Server, e.Err)
}

func (e *InitializeError) Unwrap() error { return e.Err }

// WriteError reports a failed write to the child's stdin.
type WriteError struct {
	Server string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("mcp: write to %s: %v", e.Server, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
