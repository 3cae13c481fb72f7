package domain

import "errors"

// Call-setup and in-call failure taxonomy. Adapters and the coordinator
// wrap these with context; callers branch with errors.Is.
var (
	ErrBusy                   = errors.New("line busy")
	ErrNetworkUnavailable     = errors.New("network unavailable")
	ErrPermissionDenied       = errors.New("microphone permission denied")
	ErrInvalidSessionID       = errors.New("invalid session id")
	ErrInvalidDescription     = errors.New("invalid remote description")
	ErrUnknownPeer            = errors.New("unknown peer")
	ErrDescriptionConstruct   = errors.New("local description construction failed")
	ErrDescriptionApplication = errors.New("remote description application failed")
	ErrMediaClientFailure     = errors.New("media client failure")
	ErrTelephonyReporting     = errors.New("telephony reporting failed")
)
