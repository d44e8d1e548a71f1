package image

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned when a provider has no API key.
	ErrMissingCredential = errors.New("missing provider credential")
	// ErrNoImage is returned when a provider answered without an image payload.
	ErrNoImage = errors.New("no image returned")
)

// Reference is a conditioning image forwarded to providers that accept one.
type Reference struct {
	MIME string
	Data []byte
}

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt         string
	References     []Reference
	AspectRatio    string
	NegativePrompt string
	RequestID      string
}

// Asset represents a generated image.
type Asset struct {
	Format string
	Data   []byte
	Model  string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
	Name() string
}

// translateError maps client sentinels onto the provider-neutral ones while
// keeping the original error in the chain.
func translateError(err error, missingKey, noImage error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, missingKey):
		return fmt.Errorf("%w: %w", ErrMissingCredential, err)
	case errors.Is(err, noImage):
		return fmt.Errorf("%w: %w", ErrNoImage, err)
	default:
		return err
	}
}
