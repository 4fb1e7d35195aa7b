package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

// Kind identifies the failure point of a download attempt.
type Kind string

const (
	KindMalformedURL       Kind = "MALFORMED_URL"
	KindURLTooLong         Kind = "URL_TOO_LONG"
	KindDNSFailure         Kind = "DNS_FAILURE"
	KindConnectFailure     Kind = "CONNECT_FAILURE"
	KindSendIncomplete     Kind = "SEND_INCOMPLETE"
	KindHeaderParseFailure Kind = "HEADER_PARSE_FAILURE"
	KindUnexpectedStatus   Kind = "UNEXPECTED_STATUS"
	KindRecvError          Kind = "RECV_ERROR"
	KindBodyLengthMismatch Kind = "BODY_LENGTH_MISMATCH"
	KindFlashOpenFailure   Kind = "FLASH_OPEN_FAILURE"
	KindFlashWriteFailure  Kind = "FLASH_WRITE_FAILURE"
	KindFlashCommitFailure Kind = "FLASH_COMMIT_FAILURE"
	KindBootSetFailure     Kind = "BOOT_SET_FAILURE"
	KindUnknown            Kind = "UNKNOWN"
)

// Class tells the engine what to do after a failure.
type Class int

const (
	// ClassRetryLocal is retried in place by the caller (receive timeouts).
	ClassRetryLocal Class = iota
	// ClassAbort ends the attempt: release the socket, skip commit, report failure.
	ClassAbort
	// ClassHalt stops the engine; the flash subsystem is in an unknown state.
	ClassHalt
)

func (c Class) String() string {
	switch c {
	case ClassRetryLocal:
		return "retry-local"
	case ClassAbort:
		return "abort"
	case ClassHalt:
		return "halt"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// OTAError represents a failure at one step of a download attempt
type OTAError struct {
	Err       error     // Original error
	Kind      Kind      // Failure point
	Op        string    // Operation being performed
	Resource  string    // Host, URL or partition being accessed
	Timestamp time.Time // When the error occurred
	Details   map[string]interface{}
}

// Error implements the error interface
func (e *OTAError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Resource, e.Err)
	}
	return fmt.Sprintf("[%s] %s %s: %v", e.Kind, e.Op, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *OTAError) Unwrap() error {
	return e.Err
}

// Class returns the recovery class for the error kind.
func (e *OTAError) Class() Class {
	return ClassOf(e.Kind)
}

// ClassOf maps a kind to its recovery class. Every flash-subsystem failure halts.
func ClassOf(k Kind) Class {
	switch k {
	case KindFlashOpenFailure, KindFlashWriteFailure, KindFlashCommitFailure, KindBootSetFailure:
		return ClassHalt
	default:
		return ClassAbort
	}
}

// NewError creates an OTAError of the given kind
func NewError(kind Kind, op, resource string, err error) *OTAError {
	return &OTAError{
		Err:       err,
		Kind:      kind,
		Op:        op,
		Resource:  resource,
		Timestamp: time.Now(),
	}
}

// KindOf extracts the kind from an error, or KindUnknown
func KindOf(err error) Kind {
	var otaErr *OTAError
	if As(err, &otaErr) {
		return otaErr.Kind
	}
	return KindUnknown
}

// IsHalting determines if the error requires the engine to halt
func IsHalting(err error) bool {
	var otaErr *OTAError
	return As(err, &otaErr) && otaErr.Class() == ClassHalt
}

// IsKind reports whether err is an OTAError of kind k
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// WithDetails adds additional context to an OTAError
func WithDetails(err error, details map[string]interface{}) error {
	var otaErr *OTAError
	if !As(err, &otaErr) {
		return err
	}

	if otaErr.Details == nil {
		otaErr.Details = make(map[string]interface{})
	}

	for k, v := range details {
		otaErr.Details[k] = v
	}

	return otaErr
}
