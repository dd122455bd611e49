package protocol

import "fmt"

// strError is a simple string-based error type that implements the error interface.
// It allows creating lightweight error values from string constants without
// allocating a new error for each instance.
type strError string

// Error implements the error interface by returning the string value of the error.
func (e strError) Error() string {
	return string(e)
}

// Sentinel errors for the protocol layer. Compare with errors.Is; the
// struct variants below carry the context a caller needs to build a wire
// reply (a `ng <ref> <reason>` line or an ERR side-band message).
const (
	// ErrRefNotFound means a ref command named a ref that does not exist
	// in the target repository path.
	ErrRefNotFound = strError("ref not found")

	// ErrRefPreconditionFailed means a ref update command's old-id did not
	// match the ref's current value (non-fast-forward, or a concurrent
	// update raced it).
	ErrRefPreconditionFailed = strError("ref precondition failed")

	// ErrStoreUnavailable means the object store could not service a
	// request. Surfaced to the client as an ERR side-band message, never
	// as a per-ref failure.
	ErrStoreUnavailable = strError("object store unavailable")

	// ErrProtocolParse means the incoming byte stream did not conform to
	// the pkt-line/command grammar. The connection is closed on this
	// error; there is no partial-recovery path.
	ErrProtocolParse = strError("protocol parse error")

	// ErrRefCommandInvalid means a ref update command carried the zero
	// hash as both its old and new id, which names no real create,
	// update, or delete.
	ErrRefCommandInvalid = strError("invalid ref command")
)

// RefNotFoundError names the ref a command referenced that does not exist
// in the repository path.
type RefNotFoundError struct {
	RefName string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("ref not found: %s", e.RefName)
}

func (e *RefNotFoundError) Is(target error) bool {
	return target == ErrRefNotFound
}

func NewRefNotFoundError(refName string) *RefNotFoundError {
	return &RefNotFoundError{RefName: refName}
}

// RefPreconditionFailedError reports the ref's actual value at the time an
// update carrying a stale old-id was rejected.
type RefPreconditionFailedError struct {
	RefName  string
	OldID    string
	ActualID string
}

func (e *RefPreconditionFailedError) Error() string {
	return fmt.Sprintf("ref %s: expected old id %s, found %s", e.RefName, e.OldID, e.ActualID)
}

func (e *RefPreconditionFailedError) Is(target error) bool {
	return target == ErrRefPreconditionFailed
}

func NewRefPreconditionFailedError(refName, oldID, actualID string) *RefPreconditionFailedError {
	return &RefPreconditionFailedError{RefName: refName, OldID: oldID, ActualID: actualID}
}

// RefCommandInvalidError names the ref a command referenced zero-to-zero,
// neither creating, updating, nor deleting anything.
type RefCommandInvalidError struct {
	RefName string
}

func (e *RefCommandInvalidError) Error() string {
	return fmt.Sprintf("invalid ref command for %s: old and new id are both zero", e.RefName)
}

func (e *RefCommandInvalidError) Is(target error) bool {
	return target == ErrRefCommandInvalid
}

func NewRefCommandInvalidError(refName string) *RefCommandInvalidError {
	return &RefCommandInvalidError{RefName: refName}
}

// StoreUnavailableError wraps an underlying store failure (a driver error,
// a timeout) behind a stable sentinel so transport adapters can translate
// it to a 500 response or ERR band without inspecting driver internals.
type StoreUnavailableError struct {
	Underlying error
}

func (e *StoreUnavailableError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("object store unavailable: %v", e.Underlying)
	}
	return "object store unavailable"
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Underlying
}

func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func NewStoreUnavailableError(underlying error) *StoreUnavailableError {
	return &StoreUnavailableError{Underlying: underlying}
}

// ProtocolParseError names the phase of the state machine where parsing
// failed (e.g. "command-list", "want-line") and the offending line, if any.
type ProtocolParseError struct {
	Phase string
	Line  string
}

func (e *ProtocolParseError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("protocol parse error in %s: %q", e.Phase, e.Line)
	}
	return fmt.Sprintf("protocol parse error in %s", e.Phase)
}

func (e *ProtocolParseError) Is(target error) bool {
	return target == ErrProtocolParse
}

func NewProtocolParseError(phase, line string) *ProtocolParseError {
	return &ProtocolParseError{Phase: phase, Line: line}
}
