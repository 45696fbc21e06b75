package transport

import "errors"

var (
	// ErrPeerOffline is returned when a message can't be delivered directly
	// because the peer is not reachable.
	ErrPeerOffline = errors.New("peer is offline")
	// ErrInvalidEnvelopeSignature ...
	ErrInvalidEnvelopeSignature = errors.New("invalid envelope signature")
	// ErrNullMessageHandler ...
	ErrNullMessageHandler = errors.New("message handler must not be null")
)
