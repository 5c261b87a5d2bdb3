package types

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLyricsUnavailable = errors.New("lyrics unavailable")
)

// ResolutionError is returned when a reference cannot be mapped to catalog
// entities.
type ResolutionError interface {
	error
	resolution()
}

func IsResolutionError(err error) bool {
	var re ResolutionError
	return errors.As(err, &re)
}

type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return "reference not found: " + e.Ref
}

func (*NotFoundError) resolution() {}

type UnsupportedReferenceError struct {
	Ref    string
	Reason string
}

func (e *UnsupportedReferenceError) Error() string {
	return fmt.Sprintf("unsupported reference %q: %s", e.Ref, e.Reason)
}

func (*UnsupportedReferenceError) resolution() {}

type InvalidFilterError struct {
	Filter   string
	Category string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("filter %q cannot be used with %s search", e.Filter, e.Category)
}

func (*InvalidFilterError) resolution() {}

type MetadataMissingError struct {
	ID string
}

func (e *MetadataMissingError) Error() string {
	return "metadata missing for item " + e.ID
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return "rate limited, retry after " + e.RetryAfter.String()
	}

	return "rate limited"
}

func (e *RateLimitedError) Temporary() bool {
	return true
}

func (e *RateLimitedError) ThrottledFor() time.Duration {
	return e.RetryAfter
}

type AcquisitionDeniedError struct {
	ID     string
	Reason string
}

func (e *AcquisitionDeniedError) Error() string {
	return fmt.Sprintf("acquisition denied for item %s: %s", e.ID, e.Reason)
}

// UpstreamError is an unexpected response status. Server side failures are
// considered temporary.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if len(e.Message) > 0 {
		return fmt.Sprintf("unexpected status %d (%s): %s", e.Status, http.StatusText(e.Status), e.Message)
	}

	return fmt.Sprintf("unexpected status %d (%s)", e.Status, http.StatusText(e.Status))
}

func (e *UpstreamError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError
}
