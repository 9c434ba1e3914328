package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationFailed = fmt.Errorf("authentication failed")
	ErrNotAMember           = fmt.Errorf("not a member of this room")
	ErrRoomNotFound         = fmt.Errorf("room not found")
	ErrTransportLost        = fmt.Errorf("transport lost")
	ErrNotOwner             = fmt.Errorf("cannot act on behalf of another session")
	ErrInvalidEvent         = fmt.Errorf("invalid event")
	ErrForbidden            = fmt.Errorf("forbidden")
	ErrUserNotFound         = fmt.Errorf("user not found")
)

// Wire codes sent in error events.
const (
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeNotAMember           = "NOT_A_MEMBER"
	CodeRoomNotFound         = "ROOM_NOT_FOUND"
	CodeNotOwner             = "NOT_OWNER"
	CodeInvalidEvent         = "INVALID_EVENT"
	CodeForbidden            = "FORBIDDEN"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeInternal             = "INTERNAL"
)

// CloseAuthenticationFailed is the WebSocket close code used when the
// handshake credential is rejected.
const CloseAuthenticationFailed = 4001

// Code maps an error to the code carried by an error event.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return CodeAuthenticationFailed
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, ErrInvalidEvent):
		return CodeInvalidEvent
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	default:
		return CodeInternal
	}
}
