package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry, reporting, and exit-code mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindInstrument
	KindAuthenticationFailed
	KindConnectionFailed
	KindRateLimited
	KindDataNotFound
	KindAllowanceExceeded
	KindLowData
	KindProvider
	KindCircuitOpen
	KindStoragePermissionDenied
	KindStorageDiskSpace
	KindStorageFileNotFound
	KindStorageFileCorrupted
	KindStorage
	KindCLI
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInstrument:
		return "instrument"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindConnectionFailed:
		return "connection_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindDataNotFound:
		return "data_not_found"
	case KindAllowanceExceeded:
		return "allowance_exceeded"
	case KindLowData:
		return "low_data"
	case KindProvider:
		return "provider"
	case KindCircuitOpen:
		return "circuit_open"
	case KindStoragePermissionDenied:
		return "storage_permission_denied"
	case KindStorageDiskSpace:
		return "storage_disk_space"
	case KindStorageFileNotFound:
		return "storage_file_not_found"
	case KindStorageFileCorrupted:
		return "storage_file_corrupted"
	case KindStorage:
		return "storage"
	case KindCLI:
		return "cli"
	default:
		return "unknown"
	}
}

// Error is the single error type flowing through the download pipeline.
// Every error carries a stable code and enough context to tell the operator
// what to do next.
type Error struct {
	Kind          Kind
	Code          string
	Message       string
	Help          string
	UserAction    string
	CorrelationID string
	Context       map[string]any

	// RetryAfter is set on rate-limit errors when the provider declared one.
	RetryAfter time.Duration
	// Attempts is filled in by the retry policy on final failure.
	Attempts int

	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on kind via the sentinel helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
	}
	return false
}

// New builds an Error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

func (e *Error) WithHelp(help, action string) *Error {
	e.Help = help
	e.UserAction = action
	return e
}

func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) WithCorrelation(id string) *Error {
	e.CorrelationID = id
	return e
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// KindOf extracts the Kind from any error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AsError returns the typed error in the chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Retryable reports whether the retry policy may re-attempt after this error.
// Connection failures, rate limits, and generic provider failures retry;
// everything else surfaces immediately.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnectionFailed, KindRateLimited, KindProvider:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the declared retry-after of a rate-limit error, if any.
func RetryAfterOf(err error) time.Duration {
	if e := AsError(err); e != nil {
		return e.RetryAfter
	}
	return 0
}

// Exit codes are part of the CLI contract; scripts depend on them.
const (
	ExitConfiguration = 3
	ExitConnection    = 4
	ExitPermission    = 5
	ExitStorage       = 6
	ExitProvider      = 7
	ExitInstrument    = 8
	ExitCLI           = 9
	ExitGeneric       = 10
	ExitSystem        = 11
	ExitImport        = 12
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfiguration:
		return ExitConfiguration
	case KindConnectionFailed:
		return ExitConnection
	case KindStoragePermissionDenied:
		return ExitPermission
	case KindStorage, KindStorageDiskSpace, KindStorageFileNotFound, KindStorageFileCorrupted:
		return ExitStorage
	case KindAuthenticationFailed, KindRateLimited, KindDataNotFound,
		KindAllowanceExceeded, KindLowData, KindProvider, KindCircuitOpen:
		return ExitProvider
	case KindInstrument:
		return ExitInstrument
	case KindCLI:
		return ExitCLI
	default:
		return ExitGeneric
	}
}
