package database

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
)

const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// IsRetryable reports whether err is a lock timeout, serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

// ToHTTPError converts a storage failure into the error returned to callers.
// Retryable contention maps to 503, anything else to an opaque 500.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	if httperror.IsHTTPError(err) {
		return err
	}
	if IsRetryable(err) {
		return BusyError()
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
}

// BusyError is the retryable 503 returned when contact locks cannot be taken in time.
func BusyError() error {
	return httperror.NewHTTPError(http.StatusServiceUnavailable, "Contact store is busy, retry the request").
		AddMetaValue("retryable", true)
}
