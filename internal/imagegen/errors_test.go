package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"imageloop/internal/providers/genai"
	"imageloop/internal/providers/image"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   ErrorKind
		wantStatus int
	}{
		{name: "missing credential", err: fmt.Errorf("gemini: %w", image.ErrMissingCredential), wantKind: KindMissingCredential, wantStatus: http.StatusInternalServerError},
		{name: "invalid request", err: fmt.Errorf("bad: %w", ErrInvalidRequest), wantKind: KindInvalidRequest, wantStatus: http.StatusBadRequest},
		{name: "resource exhausted text", err: errors.New("RESOURCE_EXHAUSTED: try later"), wantKind: KindQuotaExceeded, wantStatus: http.StatusTooManyRequests},
		{name: "quota text", err: errors.New("Quota exceeded for metric"), wantKind: KindQuotaExceeded, wantStatus: http.StatusTooManyRequests},
		{name: "rate limit text", err: errors.New("hit a Rate Limit"), wantKind: KindQuotaExceeded, wantStatus: http.StatusTooManyRequests},
		{name: "too many requests text", err: errors.New("Too Many Requests"), wantKind: KindQuotaExceeded, wantStatus: http.StatusTooManyRequests},
		{name: "status 429", err: &genai.APIError{Provider: "gemini", Status: 429, Message: "slow down"}, wantKind: KindQuotaExceeded, wantStatus: http.StatusTooManyRequests},
		{name: "no image sentinel", err: fmt.Errorf("gemini: %w", image.ErrNoImage), wantKind: KindNoResult, wantStatus: http.StatusBadGateway},
		{name: "no image text", err: errors.New("provider returned no image"), wantKind: KindNoResult, wantStatus: http.StatusBadGateway},
		{name: "explicit status", err: &genai.APIError{Provider: "gemini", Status: 403, Message: "permission denied"}, wantKind: KindFatal, wantStatus: http.StatusForbidden},
		{name: "transport", err: errors.New("connection reset by peer"), wantKind: KindUnknown, wantStatus: http.StatusInternalServerError},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: KindUnknown, wantStatus: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s", got.Kind, tc.wantKind)
			}
			if got.HTTPStatus != tc.wantStatus {
				t.Fatalf("status = %d, want %d", got.HTTPStatus, tc.wantStatus)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("classified error should wrap the cause")
			}
		})
	}
}

func TestClassifyNilAndIdempotent(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("nil error should classify to nil")
	}
	first := Classify(errors.New("quota"))
	if again := Classify(fmt.Errorf("wrapped: %w", first)); again != first {
		t.Fatalf("classified errors should pass through unchanged")
	}
}

func TestClassifyRetryDelay(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{
			name: "from body",
			err: &genai.APIError{
				Provider: "gemini",
				Status:   429,
				Message:  "Resource has been exhausted",
				Body:     `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"45s"}]}}`,
			},
			want: 45 * time.Second,
		},
		{name: "from message with spaces and fraction", err: errors.New(`RESOURCE_EXHAUSTED retryDelay" : "12.5s"`), want: 12 * time.Second},
		{name: "absent", err: errors.New("RESOURCE_EXHAUSTED"), want: DefaultRetryDelay},
		{name: "huge hint capped", err: errors.New(`RESOURCE_EXHAUSTED {"retryDelay":"9999999999s"}`), want: MaxRetryDelay},
		{name: "overflowing hint capped", err: errors.New(`RESOURCE_EXHAUSTED {"retryDelay":"99999999999999999999999s"}`), want: MaxRetryDelay},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != KindQuotaExceeded {
				t.Fatalf("kind = %s, want quota", got.Kind)
			}
			if d := got.RetryDelay(DefaultRetryDelay); d != tc.want {
				t.Fatalf("retry delay = %s, want %s", d, tc.want)
			}
		})
	}
	if d := (&ClassifiedError{RetryDelaySeconds: new(int)}).RetryDelay(DefaultRetryDelay); d != 0 {
		t.Fatalf("zero hint = %s, want 0", d)
	}
	neg := -5
	if d := (&ClassifiedError{RetryDelaySeconds: &neg}).RetryDelay(DefaultRetryDelay); d != DefaultRetryDelay {
		t.Fatalf("negative hint = %s, want default", d)
	}
	if Classify(errors.New("RESOURCE_EXHAUSTED")).RetryDelaySeconds != nil {
		t.Fatalf("absent hint should leave RetryDelaySeconds nil")
	}
}

func TestClassifyQuotaBeatsNoResult(t *testing.T) {
	got := Classify(fmt.Errorf("quota exhausted, %w", image.ErrNoImage))
	if got.Kind != KindQuotaExceeded {
		t.Fatalf("kind = %s, want quota", got.Kind)
	}
}
