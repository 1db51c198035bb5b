package voysis

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration is returned when the session is missing something an
	// operation needs, such as a refresh token for token issuance.
	ErrConfiguration = errors.New("voysis: configuration error")

	// ErrTimeout is returned when a stream's deadline elapses before the
	// query completes.
	ErrTimeout = errors.New("voysis: no response received within the timeout")

	// ErrServer is returned when the service reports an internal server error
	// notification for the streaming query.
	ErrServer = errors.New("voysis: a server error occurred")

	// ErrPermissionDenied should be returned (or wrapped) by a MediaProvider
	// when access to the capture device is refused.
	ErrPermissionDenied = errors.New("voysis: permission denied")

	// ErrUnsupported should be returned (or wrapped) by a MediaProvider when
	// audio capture is not available on this platform.
	ErrUnsupported = errors.New("voysis: streaming audio is not supported")
)

var (
	errNotOpen            = errors.New("connection is not open")
	errClosedBeforeResult = errors.New("connection closed before query response sent")
)

// Error is a non-2xx response from the service.
type Error struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	RequestID       string `json:"requestId,omitempty"`
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("voysis: %d %s (request_id=%s)", e.ResponseCode, e.ResponseMessage, e.RequestID)
	}
	return fmt.Sprintf("voysis: %d %s", e.ResponseCode, e.ResponseMessage)
}

// IsAuth checks if the service rejected the credentials.
func (e *Error) IsAuth() bool {
	return e.ResponseCode == http.StatusUnauthorized || e.ResponseCode == http.StatusForbidden
}

// IsServerError checks if the error is a server-side error.
func (e *Error) IsServerError() bool {
	return e.ResponseCode >= 500
}

// AsError attempts to cast an error to *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TransportError reports a failure of the WebSocket connection.
type TransportError struct {
	Op         string // "open", "send", "stream", "close"
	Code       int    // close code, when the connection was closed by the peer
	HTTPStatus int    // handshake status, when the upgrade was rejected
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("voysis: transport %s: %v", e.Op, e.Err)
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (http_status=%d)", e.HTTPStatus)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (close_code=%d)", e.Code)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// CaptureReason classifies a capture failure.
type CaptureReason string

const (
	ReasonPermissionDenied CaptureReason = "permission-denied"
	ReasonUnsupported      CaptureReason = "unsupported"
	ReasonCaptureFailure   CaptureReason = "capture-error"
)

// CaptureError reports that audio could not be acquired or recorded.
type CaptureError struct {
	Reason CaptureReason
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("voysis: capture %s: %v", e.Reason, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// classifyCaptureError wraps a MediaProvider or Recorder error.
func classifyCaptureError(err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &CaptureError{Reason: ReasonPermissionDenied, Err: err}
	case errors.Is(err, ErrUnsupported):
		return &CaptureError{Reason: ReasonUnsupported, Err: err}
	default:
		return &CaptureError{Reason: ReasonCaptureFailure, Err: err}
	}
}

// UnknownNotificationError is delivered to the active stream when the
// service sends a notification type this client does not understand.
type UnknownNotificationError struct {
	Type string
}

func (e *UnknownNotificationError) Error() string {
	return fmt.Sprintf("voysis: unknown notification type %q", e.Type)
}
