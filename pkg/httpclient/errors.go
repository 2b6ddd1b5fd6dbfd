package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request.
type Kind int

const (
	KindNetwork Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
	KindServer
	KindOther
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindOther:
		return "other"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// InvalidatesSession reports whether the failure means the stored credential
// can no longer be used.
func (k Kind) InvalidatesSession() bool {
	return k == KindUnauthorized || k == KindValidation
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusInternalServerError:
		return KindServer
	default:
		return KindOther
	}
}

func fallbackMessage(k Kind) string {
	switch k {
	case KindNetwork:
		return "Network error, please check your connection"
	case KindUnauthorized:
		return "Unauthorized, please log in again"
	case KindForbidden:
		return "Permission denied"
	case KindNotFound:
		return "The requested resource does not exist"
	case KindValidation:
		return "Token validation failed, please log in again"
	case KindServer:
		return "Server error"
	case KindConfig:
		return "Request configuration error"
	default:
		return "Request failed"
	}
}

// Error is returned for every request that did not produce a 2xx response.
// Status and Body are set only when the server responded.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Body    []byte
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, and false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
