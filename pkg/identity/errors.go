package identity

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/clover/pkg/database"
)

// ErrInvalidInput is returned when neither email nor phone number is present.
var ErrInvalidInput = httperror.NewHTTPError(http.StatusBadRequest, "Either email or phoneNumber must be provided")

func contactNotFound(id int64) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, "contact %d not found", id)
}

// storageFailure hides store details from callers; contention stays retryable.
func storageFailure(err error) error {
	return database.ToHTTPError(err)
}
