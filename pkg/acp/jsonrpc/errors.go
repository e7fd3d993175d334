package jsonrpc

import "errors"

var (
	// ErrConnectionClosed is returned for calls in flight (or attempted)
	// after the connection to the agent has torn down.
	ErrConnectionClosed = errors.New("jsonrpc: connection closed")

	// ErrCallTimeout is returned when a call exceeds the configured call
	// timeout. The pending entry is removed; a late response is treated as
	// unmatched and dropped.
	ErrCallTimeout = errors.New("jsonrpc: call timed out")

	// ErrNoStdin and ErrNoStdout indicate the child process handle did not
	// expose the required pipe.
	ErrNoStdin  = errors.New("jsonrpc: child process stdin unavailable")
	ErrNoStdout = errors.New("jsonrpc: child process stdout unavailable")
)
