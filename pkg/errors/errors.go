package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	// CodeNetwork covers transport-level failures where no response arrived.
	CodeNetwork Code = "NETWORK_ERROR"
	// CodeHTTP covers non-2xx responses other than 401.
	CodeHTTP Code = "HTTP_ERROR"
	// CodeSessionExpired is the 401 special case.
	CodeSessionExpired Code = "SESSION_EXPIRED"
	// CodeBackend covers HTTP 200 responses whose envelope reports success=0.
	// The message carries the backend's joined error array verbatim.
	CodeBackend Code = "BACKEND_ERROR"
	// CodeValidation is a client-side short-circuit before any network call.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeUnimplemented marks payment method codes this client cannot handle.
	CodeUnimplemented Code = "UNIMPLEMENTED"
	// CodeTimeout marks a bounded wait that elapsed without resolution.
	CodeTimeout Code = "TIMEOUT"
	CodeInternal Code = "INTERNAL_ERROR"
)

type Metadata struct {
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeNetwork: {
		Retryable:     true,
		PublicMessage: "network error, please try again",
	},
	CodeHTTP: {
		Retryable:     true,
		PublicMessage: "the server could not process the request",
	},
	CodeSessionExpired: {
		Retryable:     false,
		PublicMessage: "session expired, please log in again",
	},
	CodeBackend: {
		Retryable:     false,
		PublicMessage: "the request was rejected",
	},
	CodeValidation: {
		Retryable:     false,
		PublicMessage: "validation failed",
	},
	CodeUnimplemented: {
		Retryable:     false,
		PublicMessage: "this payment method is not supported",
	},
	CodeTimeout: {
		Retryable:     false,
		PublicMessage: "the operation timed out",
	},
	CodeInternal: {
		Retryable:     false,
		PublicMessage: "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// FromHTTPStatus maps an HTTP-level failure to the client taxonomy:
// 401 becomes a session-expired error, everything else a generic HTTP error.
func FromHTTPStatus(status int) *Error {
	if status == http.StatusUnauthorized {
		return New(CodeSessionExpired, "session expired")
	}
	return New(CodeHTTP, fmt.Sprintf("http error %d", status))
}

// FromBackend builds a backend error from the envelope's error array. The
// joined string is surfaced verbatim as the user-facing message.
func FromBackend(messages []string) *Error {
	joined := strings.TrimSpace(strings.Join(messages, " "))
	if joined == "" {
		joined = "request rejected by backend"
	}
	return New(CodeBackend, joined)
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// UserMessage returns the string a UI should render. Backend and validation
// errors carry their own message; other codes fall back to the public message.
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	switch e.code {
	case CodeBackend, CodeValidation, CodeHTTP, CodeSessionExpired:
		return e.message
	default:
		return MetadataFor(e.code).PublicMessage
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the taxonomy code for any error, defaulting to CodeInternal
// for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
