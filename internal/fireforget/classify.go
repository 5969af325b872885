package fireforget

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"syscall"
)

// Class is the failure classification attached to a finished action.
type Class string

const (
	ClassTimeout            Class = "timeout"
	ClassNetwork            Class = "network"
	ClassPermission         Class = "permission"
	ClassServiceUnavailable Class = "service_unavailable"
	ClassValidation         Class = "validation"
	ClassInternal           Class = "internal"

	// ClassCancelled marks explicit cancellation; it is never retried and
	// never counts towards the critical-failure threshold.
	ClassCancelled Class = "cancelled"
)

// Sentinels handlers wrap their errors with to steer classification.
var (
	// ErrServiceUnavailable marks a failure of a dependency the action
	// needs (device offline, provider down). Retryable by default.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrValidation marks bad inputs detected inside the action body.
	// Never retryable.
	ErrValidation = errors.New("validation failed")
)

// DefaultRetryable is the stock retry policy: transient failure classes
// retry, deterministic ones do not.
func DefaultRetryable(c Class) bool {
	switch c {
	case ClassTimeout, ClassNetwork, ClassServiceUnavailable:
		return true
	}
	return false
}

// criticalClass reports whether a class participates in the critical-failure
// threshold check.
func criticalClass(c Class) bool {
	switch c {
	case ClassTimeout, ClassPermission, ClassInternal:
		return true
	}
	return false
}

// Classify maps an action error to its failure class. Wrapped sentinels win
// over structural checks so handlers can force a class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrServiceUnavailable):
		return ClassServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return ClassPermission
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return ClassNetwork
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return ClassNetwork
	}
	return ClassInternal
}
