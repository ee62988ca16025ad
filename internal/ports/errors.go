package ports

import (
	"errors"
	"fmt"

	"SpotFinder/internal/domain"
)

var (
	ErrInvalidRadius   = errors.New("radius must be positive")
	ErrUnknownCategory = errors.New("category is not searchable")
)

// SearchFailedError is returned by a PlaceSearcher when one category search fails.
// Discovery treats it as recoverable and moves on to the next category.
type SearchFailedError struct {
	Category domain.Category
	Cause    error
}

func (e *SearchFailedError) Error() string {
	return fmt.Sprintf("search %s failed: %v", e.Category, e.Cause)
}

func (e *SearchFailedError) Unwrap() error {
	return e.Cause
}
