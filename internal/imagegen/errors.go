package imagegen

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"imageloop/internal/providers/image"
)

// ErrInvalidRequest marks requests rejected before any provider call.
var ErrInvalidRequest = errors.New("invalid request")

// ErrorKind tags a classified failure.
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missingCredential"
	KindInvalidRequest    ErrorKind = "invalidRequest"
	KindQuotaExceeded     ErrorKind = "quotaExceeded"
	KindNoResult          ErrorKind = "noResult"
	KindFatal             ErrorKind = "fatal"
	KindUnknown           ErrorKind = "unknown"
)

// ClassifiedError is the only error type the orchestrator returns.
type ClassifiedError struct {
	Kind              ErrorKind
	Message           string
	RetryDelaySeconds *int
	HTTPStatus        int
	Err               error
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// RetryDelay returns the provider-suggested delay, capped at MaxRetryDelay,
// or fallback when absent.
func (e *ClassifiedError) RetryDelay(fallback time.Duration) time.Duration {
	if e == nil || e.RetryDelaySeconds == nil || *e.RetryDelaySeconds < 0 {
		return fallback
	}
	if secs := *e.RetryDelaySeconds; secs > int(MaxRetryDelay/time.Second) {
		return MaxRetryDelay
	}
	return time.Duration(*e.RetryDelaySeconds) * time.Second
}

// Fallbackable reports whether the secondary provider should be tried after
// this primary failure.
func (e *ClassifiedError) Fallbackable() bool {
	return e != nil && (e.Kind == KindQuotaExceeded || e.Kind == KindNoResult)
}

type statusCoder interface {
	StatusCode() int
}

type bodyCarrier interface {
	ResponseBody() string
}

var (
	retryDelayPattern = regexp.MustCompile(`retryDelay"?\s*:\s*"(\d+)(?:\.\d+)?s"`)
	quotaMarkers      = []string{"resource_exhausted", "quota", "rate limit", "too many requests"}
)

// Classify maps any provider error onto the failure taxonomy.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	message := err.Error()
	switch {
	case errors.Is(err, image.ErrMissingCredential):
		return &ClassifiedError{Kind: KindMissingCredential, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
	case errors.Is(err, ErrInvalidRequest):
		return &ClassifiedError{Kind: KindInvalidRequest, Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
	}

	status := 0
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}
	body := ""
	var bc bodyCarrier
	if errors.As(err, &bc) {
		body = bc.ResponseBody()
	}

	lower := strings.ToLower(message + " " + body)
	if status == http.StatusTooManyRequests || containsAny(lower, quotaMarkers) {
		return &ClassifiedError{
			Kind:              KindQuotaExceeded,
			Message:           message,
			RetryDelaySeconds: parseRetryDelay(message + " " + body),
			HTTPStatus:        http.StatusTooManyRequests,
			Err:               err,
		}
	}

	if errors.Is(err, image.ErrNoImage) || strings.Contains(lower, "no image") {
		return &ClassifiedError{Kind: KindNoResult, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
	}

	if status > 0 {
		return &ClassifiedError{Kind: KindFatal, Message: message, HTTPStatus: status, Err: err}
	}

	return &ClassifiedError{Kind: KindUnknown, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

func parseRetryDelay(text string) *int {
	m := retryDelayPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	limit := int(MaxRetryDelay / time.Second)
	seconds, err := strconv.Atoi(m[1])
	if err != nil || seconds > limit {
		// Only out-of-range digits reach here; the hint still means "long".
		seconds = limit
	}
	return &seconds
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func invalidRequest(message string) *ClassifiedError {
	return &ClassifiedError{
		Kind:       KindInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}
