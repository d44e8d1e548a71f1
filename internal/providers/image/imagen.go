package image

import (
	"context"
	"strings"

	"imageloop/internal/media"
	"imageloop/internal/providers/genai"
)

type imagenClient interface {
	PredictImage(context.Context, genai.PredictRequest) (*genai.ImageAsset, error)
	ImagenModel() string
}

// ImagenGenerator produces images with Imagen. It is text-only: reference
// images are ignored.
type ImagenGenerator struct {
	client imagenClient
}

// NewImagenGenerator wires an Imagen client.
func NewImagenGenerator(client imagenClient) *ImagenGenerator {
	return &ImagenGenerator{client: client}
}

// Generate fulfils the Generator interface.
func (g *ImagenGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	asset, err := g.client.PredictImage(ctx, genai.PredictRequest{
		Prompt:         req.Prompt,
		AspectRatio:    strings.TrimSpace(req.AspectRatio),
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		RequestID:      req.RequestID,
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
func (g *ImagenGenerator) Name() string {
	if g == nil || g.client == nil {
		return "imagen"
	}
	return g.client.ImagenModel()
}

var _ Generator = (*ImagenGenerator)(nil)
