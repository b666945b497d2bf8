package service

import "net/http"

// Kind classifies an operation failure for the HTTP envelope.
type Kind string

const (
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindBadRequest   Kind = "bad_request"
	KindInternal     Kind = "internal"
)

// Error is the structured failure surfaced to callers. Messages are generic
// enough not to disclose account existence where that matters (login,
// forgot-password) but specific enough to guide legitimate users.
type Error struct {
	Kind    Kind
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

func errConflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message, Status: http.StatusConflict}
}

func errUnauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

func errForbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message, Status: http.StatusForbidden}
}

func errNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Status: http.StatusNotFound}
}

func errBadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message, Status: http.StatusBadRequest}
}
