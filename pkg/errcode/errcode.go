package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// Is reports whether err carries the same code as target
func Is(err error, target *Error) bool {
	var e *Error
	if !errors.As(err, &e) || target == nil {
		return false
	}
	return e.Code == target.Code
}

// Class is the coarse category a caller reacts to
type Class string

const (
	ClassNone           Class = ""
	ClassInvalid        Class = "invalid"
	ClassUnauthorized   Class = "unauthorized"
	ClassForbidden      Class = "forbidden"
	ClassNotFound       Class = "not_found"
	ClassConflict       Class = "conflict"
	ClassTransientIO    Class = "transient_io"
	ClassPublishTimeout Class = "publish_timeout"
)

// classes maps codes whose class differs from their numeric range
var classes = map[int]Class{
	1001: ClassInvalid,
	1002: ClassTransientIO,
	1003: ClassUnauthorized,
	1004: ClassForbidden,
	1005: ClassNotFound,
	1006: ClassConflict,
	1007: ClassTransientIO,
	1008: ClassForbidden,

	3001: ClassForbidden,
	3002: ClassForbidden,
	3003: ClassConflict,
	3004: ClassForbidden,
	3005: ClassInvalid,
	3006: ClassForbidden,

	4001: ClassNotFound,
	4002: ClassNotFound,
	4003: ClassConflict,
	4004: ClassTransientIO,
	4005: ClassInvalid,
	4006: ClassNotFound,

	5001: ClassPublishTimeout,
	5002: ClassTransientIO,
}

// ClassOf returns the class of err, or ClassNone when err is not a business error
func ClassOf(err error) Class {
	var e *Error
	if !errors.As(err, &e) {
		return ClassNone
	}
	if c, ok := classes[e.Code]; ok {
		return c
	}
	if e.Code >= 2000 && e.Code < 3000 {
		return ClassUnauthorized
	}
	return ClassNone
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam   = New(1001, "invalid parameter")
	ErrInternalServer = New(1002, "internal server error")
	ErrUnauthorized   = New(1003, "unauthorized")
	ErrForbidden      = New(1004, "forbidden")
	ErrNotFound       = New(1005, "not found")
	ErrConflict       = New(1006, "conflict")
	ErrTransientIO    = New(1007, "storage temporarily unavailable")
	ErrNoPermission   = New(1008, "no permission to access this resource")

	// Auth errors (2xxx)
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")
	ErrLoginFailed   = New(2005, "login failed")
	ErrUserNotFound  = New(2006, "user not found")
	ErrUserExists    = New(2007, "user already exists")
	ErrPasswordWrong = New(2008, "password wrong")

	// Membership errors (3xxx)
	ErrNotParticipant       = New(3001, "not a conversation participant")
	ErrNotGroupAdmin        = New(3002, "not group admin")
	ErrAlreadyParticipant   = New(3003, "already a conversation participant")
	ErrCannotRemoveOwner    = New(3004, "cannot remove conversation owner")
	ErrNotGroupConversation = New(3005, "not a group conversation")
	ErrBlocked              = New(3006, "blocked")

	// Message errors (4xxx)
	ErrMessageNotFound   = New(4001, "message not found")
	ErrConvNotFound      = New(4002, "conversation not found")
	ErrEditWindowExpired = New(4003, "edit window expired")
	ErrSendFailed        = New(4004, "message send failed")
	ErrEmptyMessage      = New(4005, "message is empty")
	ErrAttachmentMissing = New(4006, "attachment not found")

	// Realtime errors (5xxx)
	ErrPublishTimeout  = New(5001, "publish timeout")
	ErrPublishFailed   = New(5002, "publish failed")
	ErrConnOverLimit   = New(5003, "connection over max limit")
	ErrConnClosed      = New(5004, "connection closed")
	ErrInvalidProtocol = New(5005, "invalid protocol")
)
