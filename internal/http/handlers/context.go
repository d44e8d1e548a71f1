package handlers

import (
	"net/http"

	"imageloop/internal/imagegen"
	"imageloop/internal/scheduler"
)

type contextRequest struct {
	Journal         string           `json:"journal" validate:"max=200000"`
	StylePreset     string           `json:"stylePreset" validate:"max=200"`
	AspectHint      string           `json:"aspectHint" validate:"max=200"`
	NegativeHint    string           `json:"negativeHint" validate:"max=2000"`
	ReferenceImages []referenceImage `json:"referenceImages" validate:"max=10,dive"`
}

type contextResponse struct {
	Journal         string `json:"journal"`
	StylePreset     string `json:"stylePreset"`
	AspectHint      string `json:"aspectHint"`
	NegativeHint    string `json:"negativeHint"`
	ReferenceImages int    `json:"referenceImages"`
	Prompt          string `json:"prompt"`
}

func contextView(gc scheduler.GenerationContext) contextResponse {
	return contextResponse{
		Journal:         gc.Prompt.Journal,
		StylePreset:     gc.Prompt.StylePreset,
		AspectHint:      gc.Prompt.AspectHint,
		NegativeHint:    gc.Prompt.NegativeHint,
		ReferenceImages: len(gc.ReferenceImages),
		Prompt:          imagegen.ComposePrompt(gc.Prompt),
	}
}

func (a *App) ContextGet(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, contextView(a.Scheduler.Context()))
}

// ContextPut replaces the generation context used by scheduled attempts.
func (a *App) ContextPut(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if !a.decode(w, r, &req) {
		return
	}
	images, err := toInlineImages(req.ReferenceImages)
	if err != nil {
		a.error(w, http.StatusBadRequest, string(imagegen.KindInvalidRequest), err.Error())
		return
	}
	gc := scheduler.GenerationContext{
		Prompt: imagegen.PromptContext{
			Journal:      req.Journal,
			StylePreset:  req.StylePreset,
			AspectHint:   req.AspectHint,
			NegativeHint: req.NegativeHint,
		},
		ReferenceImages: images,
	}
	a.Scheduler.SetContext(gc)
	a.json(w, http.StatusOK, contextView(gc))
}
