package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"imageloop/internal/infra"
	"imageloop/internal/providers/image"
)

// Orchestrator runs one generation attempt against the primary provider,
// the secondary provider, or both in fallback order.
type Orchestrator struct {
	primary   image.Generator
	secondary image.Generator
	logger    *infra.Logger
}

// NewOrchestrator wires the two providers. Either may be nil, in which case
// attempts that need it fail as missing credentials.
func NewOrchestrator(primary, secondary image.Generator, logger *infra.Logger) *Orchestrator {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Orchestrator{primary: primary, secondary: secondary, logger: logger}
}

// Attempt performs a single attempt. It never retries; fallback to the
// secondary happens at most once. Every returned error is a *ClassifiedError.
func (o *Orchestrator) Attempt(ctx context.Context, req GenerateRequest) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	mode := req.ProviderMode
	if mode == "" {
		mode = ModeAuto
	}

	switch mode {
	case ModePrimaryOnly:
		res, cerr := o.callPrimary(ctx, req)
		if cerr != nil {
			return nil, cerr
		}
		return res, nil
	case ModeSecondaryOnly:
		res, cerr := o.callSecondary(ctx, req)
		if cerr != nil {
			return nil, cerr
		}
		return res, nil
	case ModeAuto:
	default:
		return nil, invalidRequest(fmt.Sprintf("unknown provider mode %q", mode))
	}

	res, primaryErr := o.callPrimary(ctx, req)
	if primaryErr == nil {
		return res, nil
	}
	if !primaryErr.Fallbackable() {
		return nil, primaryErr
	}

	o.logger.Info().
		Str("request_id", req.RequestID).
		Str("reason", string(primaryErr.Kind)).
		Msg("orchestrator: falling back to secondary provider")

	res, secondaryErr := o.callSecondary(ctx, req)
	if secondaryErr == nil {
		return res, nil
	}
	return nil, &ClassifiedError{
		Kind:       KindFatal,
		Message:    fmt.Sprintf("%s; secondary failed (%s)", primaryErr.Message, secondaryErr.Message),
		HTTPStatus: http.StatusBadGateway,
		Err:        errors.Join(primaryErr, secondaryErr),
	}
}

func (o *Orchestrator) callPrimary(ctx context.Context, req GenerateRequest) (*Result, *ClassifiedError) {
	if o.primary == nil {
		return nil, Classify(fmt.Errorf("primary provider not configured: %w", image.ErrMissingCredential))
	}

	refs := make([]image.Reference, 0, ReferenceCap)
	for _, img := range req.ReferenceImages {
		if len(refs) == ReferenceCap {
			break
		}
		if len(img.Data) == 0 {
			continue
		}
		refs = append(refs, image.Reference{MIME: img.MIMEType, Data: img.Data})
	}

	asset, err := o.primary.Generate(ctx, image.GenerateRequest{
		Prompt:      req.TextContext,
		References:  refs,
		AspectRatio: NormalizeAspect(req.AspectHint),
		RequestID:   req.RequestID,
	})
	return o.finish(req, ProviderPrimary, o.primary.Name(), asset, err)
}

func (o *Orchestrator) callSecondary(ctx context.Context, req GenerateRequest) (*Result, *ClassifiedError) {
	if strings.TrimSpace(req.TextContext) == "" {
		return nil, invalidRequest("secondary provider requires a text prompt")
	}
	if o.secondary == nil {
		return nil, Classify(fmt.Errorf("secondary provider not configured: %w", image.ErrMissingCredential))
	}

	asset, err := o.secondary.Generate(ctx, image.GenerateRequest{
		Prompt:         req.TextContext,
		AspectRatio:    NormalizeAspect(req.AspectHint),
		NegativePrompt: req.NegativeHint,
		RequestID:      req.RequestID,
	})
	return o.finish(req, ProviderSecondary, o.secondary.Name(), asset, err)
}

func (o *Orchestrator) finish(req GenerateRequest, provider Provider, model string, asset *image.Asset, err error) (*Result, *ClassifiedError) {
	if err == nil && (asset == nil || len(asset.Data) == 0) {
		err = image.ErrNoImage
	}
	if err != nil {
		cerr := Classify(err)
		o.logger.Warn().
			Err(err).
			Str("request_id", req.RequestID).
			Str("provider", string(provider)).
			Str("model", model).
			Str("kind", string(cerr.Kind)).
			Msg("orchestrator: provider attempt failed")
		return nil, cerr
	}

	o.logger.Info().
		Str("request_id", req.RequestID).
		Str("provider", string(provider)).
		Str("model", model).
		Int("bytes", len(asset.Data)).
		Msg("orchestrator: provider attempt succeeded")

	return &Result{
		MIMEType:     asset.Format,
		Data:         asset.Data,
		ProviderUsed: provider,
		Model:        asset.Model,
	}, nil
}

func validate(req GenerateRequest) *ClassifiedError {
	if len(req.ReferenceImages) > MaxReferenceImages {
		return invalidRequest(fmt.Sprintf("at most %d reference images allowed", MaxReferenceImages))
	}
	if strings.TrimSpace(req.TextContext) == "" && len(req.ReferenceImages) == 0 {
		return invalidRequest("prompt or images required")
	}
	return nil
}
