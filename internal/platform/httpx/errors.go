package httpx

import (
	"errors"
	"net/http"

	"github.com/motoparts/motoparts/internal/shared"
)

// StatusFor maps the shared error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrReferenced):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err using the shared taxonomy. title is the short error
// label for the failed operation; internal errors never leak their text.
func RespondError(w http.ResponseWriter, err error, title string) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Fail(w, status, title, "Database error", "")
		return
	}
	var code string
	var coded shared.CodedError
	if errors.As(err, &coded) {
		code = coded.Code()
	}
	Fail(w, status, title, err.Error(), code)
}
