package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/providers"
)

// Category is the user-facing reason a search produced no results.
type Category string

const (
	CategoryValidation          Category = "validation"
	CategoryNetwork             Category = "network"
	CategoryProviderRejected    Category = "provider_rejected"
	CategoryProviderUnavailable Category = "provider_unavailable"
	CategoryMalformedResponse   Category = "malformed_response"
	CategoryCancelled           Category = "cancelled"
)

type SearchFailedError struct {
	Category Category
	Err      error
}

func (e *SearchFailedError) Error() string {
	return fmt.Sprintf("search failed (%s): %v", e.Category, e.Err)
}

func (e *SearchFailedError) Unwrap() error {
	return e.Err
}

func categorize(err error) Category {
	var verr models.ValidationError
	if errors.As(err, &verr) {
		return CategoryValidation
	}
	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}

	switch providers.KindOf(err) {
	case providers.KindClient:
		return CategoryProviderRejected
	case providers.KindServer:
		return CategoryProviderUnavailable
	case providers.KindMalformed:
		return CategoryMalformedResponse
	default:
		return CategoryNetwork
	}
}

// IsCategory reports whether err is a SearchFailedError of the given category.
func IsCategory(err error, c Category) bool {
	var serr *SearchFailedError
	return errors.As(err, &serr) && serr.Category == c
}
