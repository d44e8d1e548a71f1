package image

import (
	"context"
	"strings"

	"imageloop/internal/media"
	"imageloop/internal/providers/genai"
)

type geminiImageClient interface {
	GenerateImage(context.Context, genai.ImageRequest) (*genai.ImageAsset, error)
	Model() string
}

// GeminiGenerator produces images with the Gemini image model, conditioned on
// the prompt and reference images.
type GeminiGenerator struct {
	client       geminiImageClient
	maxDimension int
}

// NewGeminiGenerator wires a Gemini client. Reference images larger than
// maxDimension on either side are downscaled before upload; 0 disables it.
func NewGeminiGenerator(client geminiImageClient, maxDimension int) *GeminiGenerator {
	return &GeminiGenerator{client: client, maxDimension: maxDimension}
}

// Generate fulfils the Generator interface.
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	refs := make([]genai.InlineImage, 0, len(req.References))
	for _, ref := range req.References {
		fitted, err := media.FitReference(media.Image{MIMEType: ref.MIME, Data: ref.Data}, g.maxDimension)
		if err != nil {
			// An unresizable reference is still better sent as is.
			fitted = media.Image{MIMEType: media.ResolveMIME(ref.MIME, ref.Data), Data: ref.Data}
		}
		refs = append(refs, genai.InlineImage{MIMEType: fitted.MIMEType, Data: fitted.Data})
	}

	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      req.Prompt,
		References:  refs,
		AspectRatio: strings.TrimSpace(req.AspectRatio),
		RequestID:   req.RequestID,
	})
	if err != nil {
		return nil, translateError(err, genai.ErrMissingAPIKey, genai.ErrNoImage)
	}
	return &Asset{
		Format: media.ResolveMIME(asset.MIMEType, asset.Data),
		Data:   asset.Data,
		Model:  asset.Model,
	}, nil
}

// Name identifies the provider in logs.
func (g *GeminiGenerator) Name() string {
	if g == nil || g.client == nil {
		return "gemini"
	}
	return g.client.Model()
}

var _ Generator = (*GeminiGenerator)(nil)
