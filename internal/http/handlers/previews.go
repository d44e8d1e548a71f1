package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"imageloop/internal/gallery"
	"imageloop/internal/media"
	"imageloop/pkg/zip"
)

func (a *App) PreviewsList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.Gallery.List()})
}

func (a *App) PreviewImage(w http.ResponseWriter, r *http.Request) {
	p, err := a.Gallery.Get(chi.URLParam(r, "id"))
	if errors.Is(err, gallery.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "preview not found")
		return
	}
	w.Header().Set("Content-Type", p.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}

func (a *App) PreviewDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Gallery.Delete(chi.URLParam(r, "id")); errors.Is(err, gallery.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "preview not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewsArchive streams every retained preview as a zip, newest first.
func (a *App) PreviewsArchive(w http.ResponseWriter, r *http.Request) {
	items := a.Gallery.List()
	entries := make([]zip.Entry, 0, len(items))
	for i, p := range items {
		entries = append(entries, zip.Entry{
			Name:     fmt.Sprintf("%02d-%s-%s%s", i+1, p.ProviderUsed, p.ID, media.Extension(p.MIMEType, p.Data)),
			Modified: p.CreatedAt,
			Data:     p.Data,
		})
	}
	raw, err := zip.Archive(entries)
	if err != nil {
		a.Logger.Error().Err(err).Msg("previews: archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="previews.zip"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
