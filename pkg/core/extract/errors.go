package extract

import (
	"errors"
	"fmt"
	"time"
)

// Reason classifies why a fetch failed.
type Reason string

const (
	ReasonUnavailable Reason = "unavailable"
	ReasonRateLimited Reason = "rate_limited"
	ReasonFormat      Reason = "format"
	ReasonTimeout     Reason = "timeout"
	ReasonUpstream    Reason = "upstream"
)

// Sentinels matched with errors.Is against any *DataFetchError.
var (
	ErrDataFetch       = errors.New("data fetch failed")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrRateLimited     = errors.New("rate limited")
	ErrFormat          = errors.New("unreadable source format")
	ErrTimeout         = errors.New("request timed out")
)

// DataFetchError is the base error for every extractor failure.
type DataFetchError struct {
	Source     string // extractor or backend name
	Reason     Reason
	Message    string
	RetryAfter time.Duration // set for rate limits when the upstream said so
	Err        error
}

func (e *DataFetchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Source, e.Reason)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// Is lets callers test the failure family with errors.Is.
func (e *DataFetchError) Is(target error) bool {
	switch target {
	case ErrDataFetch:
		return true
	case ErrDataUnavailable:
		return e.Reason == ReasonUnavailable
	case ErrRateLimited:
		return e.Reason == ReasonRateLimited
	case ErrFormat:
		return e.Reason == ReasonFormat
	case ErrTimeout:
		return e.Reason == ReasonTimeout
	}
	return false
}

// Unavailable reports that the source holds no usable data.
func Unavailable(source, format string, args ...any) *DataFetchError {
	return &DataFetchError{Source: source, Reason: ReasonUnavailable, Message: fmt.Sprintf(format, args...)}
}

// RateLimited reports that the upstream refused the call because of quota.
func RateLimited(source string, retryAfter time.Duration, err error) *DataFetchError {
	return &DataFetchError{Source: source, Reason: ReasonRateLimited, RetryAfter: retryAfter, Err: err}
}

// Malformed reports a corrupt or unrecognized source format.
func Malformed(source string, err error) *DataFetchError {
	return &DataFetchError{Source: source, Reason: ReasonFormat, Err: err}
}

// TimedOut reports a per-request timeout inside an extractor.
func TimedOut(source string, after time.Duration, err error) *DataFetchError {
	return &DataFetchError{Source: source, Reason: ReasonTimeout, Message: fmt.Sprintf("no response after %s", after), Err: err}
}

// Upstream wraps any other transport or server failure.
func Upstream(source string, err error) *DataFetchError {
	return &DataFetchError{Source: source, Reason: ReasonUpstream, Err: err}
}

// AsFetchError extracts the *DataFetchError from an error chain.
func AsFetchError(err error) (*DataFetchError, bool) {
	var fe *DataFetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
