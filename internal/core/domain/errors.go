package domain

import "errors"

var (
	ErrPermissionDenied     = errors.New("media permission denied")
	ErrDeviceUnavailable    = errors.New("media device unavailable")
	ErrSignalingUnavailable = errors.New("signaling transport unavailable")
	ErrNegotiation          = errors.New("negotiation error")
	ErrNegotiationTimeout   = errors.New("negotiation timed out")
	ErrAuthRequired         = errors.New("authentication required")
	ErrCallActive           = errors.New("a call is already active")
	ErrNoActiveCall         = errors.New("no active call")
	ErrInvalidAmount        = errors.New("tip amount must be positive")
	ErrTransferFailed       = errors.New("transfer failed")
)
