package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imageloop/internal/infra"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("genai: GEMINI_API_KEY is not configured")
	// ErrNoImage indicates a well-formed response that carried no image payload.
	ErrNoImage = errors.New("no image returned")
)

const (
	maxResponseBytes = 64 << 20
	maxErrorBytes    = 64 << 10
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	ImagenModel string
	HTTPClient  *http.Client
	Logger      *infra.Logger
}

// Client talks to the Generative Language API. It serves both the Gemini
// image model (generateContent) and the Imagen model (predict); they share
// host, credentials and error envelope.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	imagenModel string
	httpClient  *http.Client
	logger      *infra.Logger
}

// InlineImage is a binary image attached to a request or returned in a response.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// ImageRequest represents the information required to generate one image
// with the Gemini image model.
type ImageRequest struct {
	Prompt      string
	References  []InlineImage
	AspectRatio string
	RequestID   string
}

// ImageAsset is the normalized representation returned by the client.
type ImageAsset struct {
	MIMEType string
	Data     []byte
	Model    string
}

// APIError is a non-2xx response from the API. Body keeps the raw response
// so callers can look for details such as RetryInfo.retryDelay.
type APIError struct {
	Provider string
	Status   int
	Code     string
	Message  string
	Body     string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s status %d (%s): %s", e.Provider, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Status, msg)
}

// StatusCode returns the HTTP status of the failed call.
func (e *APIError) StatusCode() int { return e.Status }

// ResponseBody returns the raw error payload.
func (e *APIError) ResponseBody() string { return e.Body }

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	// Some API surfaces answer in snake_case.
	InlineDataSnake *geminiInlineDataSnake `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiInlineDataSnake struct {
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults. Callers may provide a nil
// HTTP client; a reusable one with sensible timeouts will be created. A
// missing API key is not an error here: calls fail with ErrMissingAPIKey so
// the condition surfaces per attempt.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("genai: invalid base url: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image-preview"
	}
	imagenModel := strings.TrimSpace(opts.ImagenModel)
	if imagenModel == "" {
		imagenModel = "imagen-3.0-generate-002"
	}

	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}

	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		model:       model,
		imagenModel: imagenModel,
		httpClient:  client,
		logger:      logger,
	}, nil
}

// Model returns the configured Gemini image model identifier.
func (c *Client) Model() string {
	return c.model
}

// ImagenModel returns the configured Imagen model identifier.
func (c *Client) ImagenModel() string {
	return c.imagenModel
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// GenerateImage asks the Gemini image model for a single image conditioned on
// the prompt and any reference images.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	parts := make([]geminiPart, 0, len(req.References)+1)
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		parts = append(parts, geminiPart{Text: req.Prompt})
	}
	attached := 0
	for _, ref := range req.References {
		if len(ref.Data) == 0 || ref.MIMEType == "" {
			continue
		}
		attached++
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: ref.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		payload.GenerationConfig.ImageConfig = &geminiImageConfig{AspectRatio: aspect}
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invoke(ctx, "gemini", path, payload, &response); err != nil {
		return nil, err
	}

	asset, err := firstInlineImage(response)
	if err != nil {
		c.logger.Debug().
			Str("request_id", req.RequestID).
			Str("model", c.model).
			Err(err).
			Msg("genai: gemini returned no image")
		return nil, err
	}
	asset.Model = c.model

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Int("references", attached).
		Int("bytes", len(asset.Data)).
		Msg("genai: generated image")

	return asset, nil
}

func firstInlineImage(resp geminiGenerateContentResponse) (*ImageAsset, error) {
	var reasons []string
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			mimeType, data := "", ""
			switch {
			case part.InlineData != nil:
				mimeType, data = part.InlineData.MimeType, part.InlineData.Data
			case part.InlineDataSnake != nil:
				mimeType, data = part.InlineDataSnake.MimeType, part.InlineDataSnake.Data
			}
			if data == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			if mimeType == "" {
				mimeType = "image/png"
			}
			return &ImageAsset{MIMEType: mimeType, Data: decoded}, nil
		}
		if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
			reasons = append(reasons, "finishReason="+candidate.FinishReason)
		}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reasons = append(reasons, "blockReason="+resp.PromptFeedback.BlockReason)
	}
	if len(reasons) > 0 {
		return nil, fmt.Errorf("%w (%s)", ErrNoImage, strings.Join(reasons, ", "))
	}
	return nil, ErrNoImage
}

func (c *Client) invoke(ctx context.Context, provider, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the endpoint; keep only the cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("invoke %s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(provider, resp)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}

func decodeAPIError(provider string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	apiErr := &APIError{
		Provider: provider,
		Status:   resp.StatusCode,
		Body:     strings.TrimSpace(string(data)),
	}
	var envelope googleErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil {
		apiErr.Message = envelope.Error.Message
		apiErr.Code = envelope.Error.Status
	}
	return apiErr
}
