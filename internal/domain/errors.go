package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures that end a voice session.
type ErrorKind string

const (
	ConnectionError   ErrorKind = "connection_error"
	PermissionDenied  ErrorKind = "permission_denied"
	DeviceUnavailable ErrorKind = "device_unavailable"
	NegotiationFailed ErrorKind = "negotiation_failed"
	PlaybackFailed    ErrorKind = "playback_failed"
	ProtocolError     ErrorKind = "protocol_error"
)

// VoiceError wraps a cause with the kind the UI layer keys its status text on.
// Every kind is terminal to the current session; nothing here is retried.
type VoiceError struct {
	Kind  ErrorKind
	Cause error
}

func (e *VoiceError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *VoiceError) Unwrap() error { return e.Cause }

func NewVoiceError(kind ErrorKind, cause error) *VoiceError {
	return &VoiceError{Kind: kind, Cause: cause}
}

// KindOf extracts the error kind, defaulting to ConnectionError for
// causes that were never classified.
func KindOf(err error) ErrorKind {
	var ve *VoiceError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ConnectionError
}
