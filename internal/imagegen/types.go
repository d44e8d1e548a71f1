package imagegen

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ReferenceCap is the number of reference images forwarded to the primary provider.
	ReferenceCap = 2
	// MaxReferenceImages bounds the reference list accepted on a request.
	MaxReferenceImages = 10
	// PrimarySpacing is the minimum time between primary provider attempts.
	PrimarySpacing = 60 * time.Second
	// DefaultRetryDelay applies when a quota error carries no retry hint.
	DefaultRetryDelay = 60 * time.Second
	// MaxRetryDelay caps provider retry hints.
	MaxRetryDelay = 24 * time.Hour
)

// AspectRatios are the frame ratios the providers understand.
var AspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

// ProviderMode selects which providers an attempt may use.
type ProviderMode string

const (
	ModeAuto          ProviderMode = "auto"
	ModePrimaryOnly   ProviderMode = "gemini"
	ModeSecondaryOnly ProviderMode = "imagen"
)

// ParseProviderMode accepts the wire values plus the primaryOnly/secondaryOnly
// aliases. An empty value means auto.
func ParseProviderMode(raw string) (ProviderMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return ModeAuto, nil
	case "gemini", "primary", "primaryonly":
		return ModePrimaryOnly, nil
	case "imagen", "secondary", "secondaryonly":
		return ModeSecondaryOnly, nil
	default:
		return "", fmt.Errorf("unknown provider mode %q", raw)
	}
}

// UsesPrimary reports whether an attempt in this mode may call the primary
// provider and is therefore subject to primary spacing.
func (m ProviderMode) UsesPrimary() bool {
	return m == ModeAuto || m == ModePrimaryOnly || m == ""
}

// Provider names the provider that produced a result.
type Provider string

const (
	ProviderPrimary   Provider = "gemini"
	ProviderSecondary Provider = "imagen"
)

// InlineImage is a reference image carried inline. Data is base64 on the wire.
type InlineImage struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// GenerateRequest is a single generation attempt's input.
type GenerateRequest struct {
	TextContext     string
	ReferenceImages []InlineImage
	ProviderMode    ProviderMode
	AspectHint      string
	NegativeHint    string
	RequestID       string
}

// Result is a successful attempt's output.
type Result struct {
	MIMEType     string   `json:"mimeType"`
	Data         []byte   `json:"data"`
	ProviderUsed Provider `json:"providerUsed"`
	Model        string   `json:"model,omitempty"`
}
