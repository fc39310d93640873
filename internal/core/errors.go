package core

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorClass buckets failures for retry decisions and the final report.
type ErrorClass string

const (
	ClassRateLimit  ErrorClass = "rate_limit"
	ClassNetwork    ErrorClass = "network"
	ClassExtraction ErrorClass = "extraction"
	ClassAuth       ErrorClass = "auth"
	ClassOther      ErrorClass = "other"
)

// ErrExtraction marks unreadable or corrupt source files. Wrap it with
// fmt.Errorf("...: %w", ErrExtraction) so Classify can recognize it.
var ErrExtraction = errors.New("extraction failed")

// ErrAuth marks provider credential failures. These abort the whole run:
// retrying cannot succeed and every further call burns budget.
var ErrAuth = errors.New("provider authentication failed")

// Classify maps an error onto the taxonomy. Provider errors arrive as
// *googleapi.Error with an HTTP status; everything else is inspected for
// timeouts and the usual rate-limit phrasing.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOther
	}

	if errors.Is(err, ErrExtraction) {
		return ClassExtraction
	}
	if errors.Is(err, ErrAuth) {
		return ClassAuth
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429:
			return ClassRateLimit
		case gerr.Code == 401 || gerr.Code == 403:
			return ClassAuth
		case gerr.Code >= 500 || gerr.Code == 408:
			return ClassNetwork
		default:
			return ClassOther
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "quota"):
		return ClassRateLimit
	case strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "api key"):
		return ClassAuth
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "unavailable"):
		return ClassNetwork
	}
	return ClassOther
}

// Retryable reports whether a class is worth another attempt. Extraction and
// auth failures never are; an unknown error gets one shot via the retry
// policy's non-rate-limit path.
func Retryable(class ErrorClass) bool {
	return class == ClassRateLimit || class == ClassNetwork
}
