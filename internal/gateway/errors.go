package gateway

import "errors"

var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	// ErrInvalidProtocol is returned for frames that do not decode or carry an unknown identifier
	ErrInvalidProtocol = errors.New("invalid protocol")
	ErrUserIdMismatch  = errors.New("send_id does not match the token")
	ErrTokenInvalid    = errors.New("token invalid")
	ErrTopicForbidden  = errors.New("topic not subscribable")
)
