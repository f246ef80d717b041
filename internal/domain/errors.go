package domain

import (
	"errors"
	"net/http"

	apperrors "github.com/utafrali/showcase-search/pkg/errors"
)

// ErrDataInconsistency marks a backend-ranked ID with no relational record.
var ErrDataInconsistency = errors.New("data inconsistency")

// NoResultsError reports a search with zero matches. Transliterate carries
// the backend's hint that the query looks like Cyrillic typed on a Latin
// layout.
type NoResultsError struct {
	Query         string
	Transliterate bool
}

func (e *NoResultsError) Error() string {
	return "no search products result for " + `"` + e.Query + `"`
}

// Unwrap exposes the HTTP mapping so httputil renders a 404 NO_RESULTS.
func (e *NoResultsError) Unwrap() error {
	return &apperrors.AppError{
		Code:    "NO_RESULTS",
		Message: "no products found",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}
}

// IsNoResults reports whether err is, or wraps, a NoResultsError.
func IsNoResults(err error) (*NoResultsError, bool) {
	var nr *NoResultsError
	if errors.As(err, &nr) {
		return nr, true
	}
	return nil, false
}
