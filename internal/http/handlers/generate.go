package handlers

import (
	"net/http"

	"imageloop/internal/imagegen"
	"imageloop/internal/middleware"
)

type generateRequest struct {
	TextContext     string           `json:"textContext" validate:"max=20000"`
	ReferenceImages []referenceImage `json:"referenceImages" validate:"max=10,dive"`
	ProviderMode    string           `json:"providerMode" validate:"omitempty,oneof=auto gemini imagen primaryOnly secondaryOnly"`
	AspectHint      string           `json:"aspectHint" validate:"max=200"`
	NegativeHint    string           `json:"negativeHint" validate:"max=2000"`
}

// Generate runs a single attempt outside the schedule.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	mode, err := imagegen.ParseProviderMode(req.ProviderMode)
	if err != nil {
		a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), err.Error())
		return
	}
	images, err := toInlineImages(req.ReferenceImages)
	if err != nil {
		a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), err.Error())
		return
	}

	res, err := a.Generator.Attempt(r.Context(), imagegen.GenerateRequest{
		TextContext:     req.TextContext,
		ReferenceImages: images,
		ProviderMode:    mode,
		AspectHint:      req.AspectHint,
		NegativeHint:    req.NegativeHint,
		RequestID:       middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		cerr := imagegen.Classify(err)
		a.Logger.Warn().
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("kind", string(cerr.Kind)).
			Msg("generate: " + cerr.Message)
		a.classifiedError(w, cerr)
		return
	}
	a.json(w, http.StatusOK, res)
}
