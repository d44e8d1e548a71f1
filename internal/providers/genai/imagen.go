package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// PredictRequest is a text-only Imagen generation request.
type PredictRequest struct {
	Prompt         string
	AspectRatio    string
	NegativePrompt string
	RequestID      string
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount    int    `json:"sampleCount"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type imagenPredictRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenPrediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
	RaiFilteredReason  string `json:"raiFilteredReason,omitempty"`
}

type imagenPredictResponse struct {
	Predictions []imagenPrediction `json:"predictions"`
}

// PredictImage generates a single image with the Imagen model.
func (c *Client) PredictImage(ctx context.Context, req PredictRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	payload := imagenPredictRequest{
		Instances: []imagenInstance{{Prompt: req.Prompt}},
		Parameters: imagenParameters{
			SampleCount:    1,
			AspectRatio:    strings.TrimSpace(req.AspectRatio),
			NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		},
	}

	var response imagenPredictResponse
	path := fmt.Sprintf("/models/%s:predict", url.PathEscape(c.imagenModel))
	if err := c.invoke(ctx, "imagen", path, payload, &response); err != nil {
		return nil, err
	}

	var filtered []string
	for _, prediction := range response.Predictions {
		if prediction.BytesBase64Encoded == "" {
			if prediction.RaiFilteredReason != "" {
				filtered = append(filtered, prediction.RaiFilteredReason)
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(prediction.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode imagen prediction: %w", err)
		}
		mimeType := prediction.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		c.logger.Debug().
			Str("request_id", req.RequestID).
			Str("model", c.imagenModel).
			Int("bytes", len(data)).
			Msg("genai: imagen generated image")
		return &ImageAsset{MIMEType: mimeType, Data: data, Model: c.imagenModel}, nil
	}

	if len(filtered) > 0 {
		return nil, fmt.Errorf("%w (filtered: %s)", ErrNoImage, strings.Join(filtered, "; "))
	}
	return nil, ErrNoImage
}
