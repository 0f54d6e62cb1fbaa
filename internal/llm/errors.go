package llm

import (
	"errors"
	"strings"
)

// ErrFatalAPI marks API failures that retrying cannot fix: bad
// credentials, exhausted billing, revoked keys. Callers stop the run
// instead of burning retries.
var ErrFatalAPI = errors.New("fatal API error")

// fatalMarkers are substrings of provider error messages that indicate
// an account-level problem rather than a transient failure.
var fatalMarkers = []string{
	"credit balance",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError classifies an error as fatal by message inspection.
// Providers surface these as plain strings, so matching is the only
// option.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal errors with ErrFatalAPI so callers can use
// errors.Is. Non-fatal errors pass through unchanged.
func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return errors.Join(ErrFatalAPI, err)
	}
	return err
}

// IsFatal reports whether err is a non-retryable API failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalAPI) || isFatalAPIError(err)
}
