package imagegen

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"imageloop/internal/providers/genai"
	"imageloop/internal/providers/image"
)

type stubGenerator struct {
	name    string
	asset   *image.Asset
	err     error
	calls   int
	lastReq image.GenerateRequest
}

func (s *stubGenerator) Generate(ctx context.Context, req image.GenerateRequest) (*image.Asset, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.asset, nil
}

func (s *stubGenerator) Name() string { return s.name }

func okGenerator(name string) *stubGenerator {
	return &stubGenerator{name: name, asset: &image.Asset{Format: "image/png", Data: []byte(name), Model: name + "-model"}}
}

func failGenerator(name string, err error) *stubGenerator {
	return &stubGenerator{name: name, err: err}
}

var quotaErr = &genai.APIError{Provider: "gemini", Status: 429, Message: "RESOURCE_EXHAUSTED", Body: `{"retryDelay":"45s"}`}

func TestAttemptAutoPrimarySuccess(t *testing.T) {
	primary, secondary := okGenerator("gemini"), okGenerator("imagen")
	o := NewOrchestrator(primary, secondary, nil)

	res, err := o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox", ProviderMode: ModeAuto})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProviderUsed != ProviderPrimary || string(res.Data) != "gemini" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.calls)
	}
}

func TestAttemptAutoFallsBackExactlyOnce(t *testing.T) {
	for _, primaryErr := range []error{quotaErr, image.ErrNoImage} {
		primary, secondary := failGenerator("gemini", primaryErr), okGenerator("imagen")
		o := NewOrchestrator(primary, secondary, nil)

		res, err := o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox", NegativeHint: "text"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ProviderUsed != ProviderSecondary {
			t.Fatalf("provider = %s, want secondary", res.ProviderUsed)
		}
		if primary.calls != 1 || secondary.calls != 1 {
			t.Fatalf("calls primary=%d secondary=%d, want 1/1", primary.calls, secondary.calls)
		}
		if secondary.lastReq.NegativePrompt != "text" {
			t.Fatalf("negative hint not forwarded: %+v", secondary.lastReq)
		}
	}
}

func TestAttemptAutoBothFail(t *testing.T) {
	primary := failGenerator("gemini", quotaErr)
	secondary := failGenerator("imagen", errors.New("imagen exploded"))
	o := NewOrchestrator(primary, secondary, nil)

	_, err := o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox"})
	var cerr *ClassifiedError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClassifiedError, got %T", err)
	}
	if cerr.Kind != KindFatal || cerr.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("unexpected combined error: %+v", cerr)
	}
	want := quotaErr.Error() + "; secondary failed (imagen exploded)"
	if cerr.Message != want {
		t.Fatalf("message = %q, want %q", cerr.Message, want)
	}
	if secondary.calls != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.calls)
	}
	var apiErr *genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 429 {
		t.Fatalf("primary quota cause not reachable: %v", err)
	}
	if !strings.Contains(errors.Unwrap(cerr).Error(), "imagen exploded") {
		t.Fatalf("secondary cause not joined: %v", errors.Unwrap(cerr))
	}
}

func TestAttemptAutoFatalShortCircuits(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{name: "fatal", err: &genai.APIError{Provider: "gemini", Status: 400, Message: "bad prompt"}, kind: KindFatal},
		{name: "unknown", err: errors.New("connection refused"), kind: KindUnknown},
		{name: "missing credential", err: image.ErrMissingCredential, kind: KindMissingCredential},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			primary, secondary := failGenerator("gemini", tc.err), okGenerator("imagen")
			o := NewOrchestrator(primary, secondary, nil)

			_, err := o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox"})
			if got := Classify(err); got.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", got.Kind, tc.kind)
			}
			if secondary.calls != 0 {
				t.Fatalf("secondary called %d times, want 0", secondary.calls)
			}
		})
	}
}

func TestAttemptSingleProviderModesPropagateVerbatim(t *testing.T) {
	primary, secondary := failGenerator("gemini", quotaErr), failGenerator("imagen", quotaErr)
	o := NewOrchestrator(primary, secondary, nil)

	_, err := o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox", ProviderMode: ModePrimaryOnly})
	cerr := Classify(err)
	if cerr.Kind != KindQuotaExceeded || cerr.RetryDelay(DefaultRetryDelay).Seconds() != 45 {
		t.Fatalf("unexpected primary-only error: %+v", cerr)
	}
	if secondary.calls != 0 {
		t.Fatalf("primary-only must not call secondary")
	}

	_, err = o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox", ProviderMode: ModeSecondaryOnly})
	if Classify(err).Kind != KindQuotaExceeded {
		t.Fatalf("secondary-only should propagate quota, got %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("secondary-only must not call primary")
	}
}

func TestAttemptCapsPrimaryReferences(t *testing.T) {
	primary, secondary := okGenerator("gemini"), okGenerator("imagen")
	o := NewOrchestrator(primary, secondary, nil)

	images := make([]InlineImage, 5)
	for i := range images {
		images[i] = InlineImage{MIMEType: "image/png", Data: []byte{byte(i + 1)}}
	}
	_, err := o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox", ReferenceImages: images, AspectHint: "16:9 cinematic frame"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	refs := primary.lastReq.References
	if len(refs) != ReferenceCap {
		t.Fatalf("references forwarded = %d, want %d", len(refs), ReferenceCap)
	}
	if refs[0].Data[0] != 1 || refs[1].Data[0] != 2 {
		t.Fatalf("references should be the first two in order: %+v", refs)
	}
	if primary.lastReq.AspectRatio != "16:9" {
		t.Fatalf("aspect = %q, want 16:9", primary.lastReq.AspectRatio)
	}
}

func TestAttemptSecondaryIgnoresReferencesAndBadAspect(t *testing.T) {
	secondary := okGenerator("imagen")
	o := NewOrchestrator(okGenerator("gemini"), secondary, nil)

	_, err := o.Attempt(context.Background(), GenerateRequest{
		TextContext:     "a fox",
		ProviderMode:    ModeSecondaryOnly,
		ReferenceImages: []InlineImage{{MIMEType: "image/png", Data: []byte{1}}},
		AspectHint:      "widescreen",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secondary.lastReq.References) != 0 {
		t.Fatalf("secondary must be text-only")
	}
	if secondary.lastReq.AspectRatio != "" {
		t.Fatalf("unsupported aspect should be omitted, got %q", secondary.lastReq.AspectRatio)
	}
}

func TestAttemptValidation(t *testing.T) {
	primary := okGenerator("gemini")
	o := NewOrchestrator(primary, okGenerator("imagen"), nil)

	tests := []struct {
		name string
		req  GenerateRequest
	}{
		{name: "empty", req: GenerateRequest{TextContext: "  "}},
		{name: "too many images", req: GenerateRequest{TextContext: "x", ReferenceImages: make([]InlineImage, MaxReferenceImages+1)}},
		{name: "secondary without text", req: GenerateRequest{ProviderMode: ModeSecondaryOnly, ReferenceImages: []InlineImage{{Data: []byte{1}}}}},
		{name: "unknown mode", req: GenerateRequest{TextContext: "x", ProviderMode: "dalle"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Attempt(context.Background(), tc.req)
			cerr := Classify(err)
			if cerr == nil || cerr.Kind != KindInvalidRequest || cerr.HTTPStatus != http.StatusBadRequest {
				t.Fatalf("expected invalid request, got %v", err)
			}
		})
	}
	if primary.calls != 0 {
		t.Fatalf("invalid requests must not reach a provider")
	}
}

func TestAttemptEmptyAssetIsNoResult(t *testing.T) {
	primary := &stubGenerator{name: "gemini", asset: &image.Asset{Format: "image/png"}}
	secondary := okGenerator("imagen")
	o := NewOrchestrator(primary, secondary, nil)

	res, err := o.Attempt(context.Background(), GenerateRequest{TextContext: "a fox"})
	if err != nil || res.ProviderUsed != ProviderSecondary {
		t.Fatalf("empty primary payload should fall back, got %v / %+v", err, res)
	}
}

func TestParseProviderMode(t *testing.T) {
	tests := map[string]ProviderMode{
		"":              ModeAuto,
		"auto":          ModeAuto,
		"Gemini":        ModePrimaryOnly,
		"primaryOnly":   ModePrimaryOnly,
		"imagen":        ModeSecondaryOnly,
		"secondaryOnly": ModeSecondaryOnly,
	}
	for raw, want := range tests {
		got, err := ParseProviderMode(raw)
		if err != nil || got != want {
			t.Errorf("ParseProviderMode(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseProviderMode("dalle"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
