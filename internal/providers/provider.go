package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/dharmasatrya/skysearch/internal/baggage"
	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/window"
)

type Provider interface {
	Name() string
	Search(ctx context.Context, q window.Query) ([]models.RawFlight, error)
}

type PriceChecker interface {
	CheckPrice(ctx context.Context, req PriceCheckRequest) (*models.PriceConfirmation, error)
}

type PriceCheckRequest struct {
	BookingToken string
	Bags         baggage.Allocation
	Passengers   models.Passengers
	Currency     string
}

type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindServer    ErrorKind = "server"
	KindClient    ErrorKind = "client"
	KindMalformed ErrorKind = "malformed"
)

type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed. Timeouts,
// connectivity loss and 5xx responses are transient; 4xx and undecodable
// bodies are not.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

func NewProviderError(provider string, kind ErrorKind, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Err:        err,
	}
}

// IsRetryable treats unclassified errors as transient.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

// KindOf returns the error kind, or KindNetwork for unclassified errors.
func KindOf(err error) ErrorKind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindNetwork
}
