package sdk

import (
	"errors"
	"fmt"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// IsSuccess checks if the error code indicates success
func (e *Error) IsSuccess() bool {
	return e.Code == 0
}

// Is matches on code so errors.Is works against the predefined values
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Common error codes
const (
	// Success
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam   = 1001
	CodeInternalServer = 1002
	CodeUnauthorized   = 1003
	CodeForbidden      = 1004
	CodeNotFound       = 1005
	CodeConflict       = 1006
	CodeTransientIO    = 1007
	CodeNoPermission   = 1008

	// Auth errors (2xxx)
	CodeTokenInvalid  = 2001
	CodeTokenExpired  = 2002
	CodeTokenMissing  = 2003
	CodeTokenMismatch = 2004
	CodeLoginFailed   = 2005
	CodeUserNotFound  = 2006
	CodeUserExists    = 2007
	CodePasswordWrong = 2008

	// Membership errors (3xxx)
	CodeNotParticipant       = 3001
	CodeNotGroupAdmin        = 3002
	CodeAlreadyParticipant   = 3003
	CodeCannotRemoveOwner    = 3004
	CodeNotGroupConversation = 3005
	CodeBlocked              = 3006

	// Message errors (4xxx)
	CodeMessageNotFound   = 4001
	CodeConvNotFound      = 4002
	CodeEditWindowExpired = 4003
	CodeSendFailed        = 4004
	CodeEmptyMessage      = 4005
	CodeAttachmentMissing = 4006

	// Realtime errors (5xxx)
	CodePublishTimeout  = 5001
	CodePublishFailed   = 5002
	CodeConnOverLimit   = 5003
	CodeConnClosed      = 5004
	CodeInvalidProtocol = 5005
)

// Predefined errors
var (
	ErrInvalidParam      = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized      = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden         = NewError(CodeForbidden, "forbidden")
	ErrNotFound          = NewError(CodeNotFound, "not found")
	ErrTokenInvalid      = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired      = NewError(CodeTokenExpired, "token expired")
	ErrNotParticipant    = NewError(CodeNotParticipant, "not a conversation participant")
	ErrBlocked           = NewError(CodeBlocked, "blocked")
	ErrMessageNotFound   = NewError(CodeMessageNotFound, "message not found")
	ErrEditWindowExpired = NewError(CodeEditWindowExpired, "edit window expired")
)

// Client-side failures that never come from the server
var (
	ErrStreamClosed      = errors.New("sdk: stream closed")
	ErrNotConnected      = errors.New("sdk: stream not connected")
	ErrConversationShut  = errors.New("sdk: conversation is not open")
	ErrUnknownMessage    = errors.New("sdk: message not in timeline")
	ErrOperationPending  = errors.New("sdk: message has a pending operation")
	ErrKickedByServer    = errors.New("sdk: connection kicked by server")
	ErrUnexpectedReplyId = errors.New("sdk: reply does not match request")
)
