// Package errs defines the error taxonomy used by the graph engine: the
// kinds the parallel executor is allowed to catch and surface as
// GraphErrors, and the kinds that propagate and crash the process because
// they indicate a programming error.
package errs

import (
	stdErrors "errors"
	"fmt"
)

// ErrPromiseAlreadySet is returned by future.Promise.Set when the
// promise's value has already been assigned.
var ErrPromiseAlreadySet = stdErrors.New("errs: promise already set")

// recoverableMarker is implemented by every error kind the parallel executor
// is permitted to catch from a node's HasInput/Produce call.
type recoverableMarker interface {
	error
	recoverable()
}

// NoActiveSourcesError is raised by a sequential Step when it is invoked
// again after every source has already gone inactive. The parallel Step
// never raises it; it reports the same condition by returning false.
type NoActiveSourcesError struct {
	Op string
}

func (e *NoActiveSourcesError) Error() string {
	return fmt.Sprintf("no active sources: %s", e.Op)
}
func (e *NoActiveSourcesError) recoverable() {}

func NewNoActiveSources(op string) error { return &NoActiveSourcesError{Op: op} }

// WrongTileConfigurationError is raised by tile-producing nodes when the
// declared tile geometry does not match the input stream.
type WrongTileConfigurationError struct {
	Op  string
	Err error
}

func (e *WrongTileConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wrong tile configuration: %s", e.Op)
	}
	return fmt.Sprintf("wrong tile configuration: %s: %v", e.Op, e.Err)
}
func (e *WrongTileConfigurationError) Unwrap() error { return e.Err }
func (e *WrongTileConfigurationError) recoverable()  {}

func NewWrongTileConfiguration(op string, cause error) error {
	return &WrongTileConfigurationError{Op: op, Err: cause}
}

// UnsupportedVideoInputError is raised by tile-producing nodes when input
// resolution or codec violates the preset's preconditions.
type UnsupportedVideoInputError struct {
	Op  string
	Err error
}

func (e *UnsupportedVideoInputError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unsupported video input: %s", e.Op)
	}
	return fmt.Sprintf("unsupported video input: %s: %v", e.Op, e.Err)
}
func (e *UnsupportedVideoInputError) Unwrap() error { return e.Err }
func (e *UnsupportedVideoInputError) recoverable()  {}

func NewUnsupportedVideoInput(op string, cause error) error {
	return &UnsupportedVideoInputError{Op: op, Err: cause}
}

// CannotOpenFileError is raised by file-backed nodes (Save, DebugSave,
// AzureSave) when the underlying file or object cannot be opened/created.
type CannotOpenFileError struct {
	Op   string
	Path string
	Err  error
}

func (e *CannotOpenFileError) Error() string {
	return fmt.Sprintf("cannot open file: %s %q: %v", e.Op, e.Path, e.Err)
}
func (e *CannotOpenFileError) Unwrap() error { return e.Err }
func (e *CannotOpenFileError) recoverable()  {}

func NewCannotOpenFile(op, path string, cause error) error {
	return &CannotOpenFileError{Op: op, Path: path, Err: cause}
}

// CannotWriteFileError is raised by file-backed nodes when a write fails
// part-way through (disk full, permission revoked mid-run, etc).
type CannotWriteFileError struct {
	Op   string
	Path string
	Err  error
}

func (e *CannotWriteFileError) Error() string {
	return fmt.Sprintf("cannot write file: %s %q: %v", e.Op, e.Path, e.Err)
}
func (e *CannotWriteFileError) Unwrap() error { return e.Err }
func (e *CannotWriteFileError) recoverable()  {}

func NewCannotWriteFile(op, path string, cause error) error {
	return &CannotWriteFileError{Op: op, Path: path, Err: cause}
}

// ConfigError is raised for configuration problems (sink file-template
// validation, a malformed or invalid pipeline description in config.Load
// or config.JSONLoader, ...) and surfaced through GraphError.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config error: %s", e.Op)
	}
	return fmt.Sprintf("config error: %s: %v", e.Op, e.Err)
}
func (e *ConfigError) Unwrap() error { return e.Err }
func (e *ConfigError) recoverable()  {}

func NewConfigError(op string, cause error) error { return &ConfigError{Op: op, Err: cause} }

// IsRecoverable reports whether err (or anything it wraps) is one of the
// taxonomy entries the parallel executor may catch from a node body. Any
// other error is expected to propagate as a panic and crash the process.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var rm recoverableMarker
	return stdErrors.As(err, &rm)
}

// GraphError pairs a human-readable message (naming the offending node)
// with the underlying recoverable error, if any.
type GraphError struct {
	Message string
	Err     error
}

func (e GraphError) Error() string { return e.Message }
func (e GraphError) Unwrap() error { return e.Err }

// GraphErrors is the list returned by a Step call when one or more nodes
// raised a recoverable error during that step.
type GraphErrors []GraphError

func (es GraphErrors) Error() string {
	if len(es) == 0 {
		return "no errors"
	}
	if len(es) == 1 {
		return es[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", es[0].Error(), len(es)-1)
}
