// internal/api/threads/handlers.go
package threads

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Stitchcraft/internal/api/apiutil"
	"github.com/codr1/Stitchcraft/internal/thread"
)

type threadResponse struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Hex   string `json:"hex"`
	Color string `json:"color"`
}

type paletteSummary struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

type paletteResponse struct {
	paletteSummary
	Threads []threadResponse `json:"threads"`
}

// GET /api/v1/threads
func HandleListPalettes(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	palettes := make([]paletteSummary, 0, len(thread.Names))
	for _, name := range thread.Names {
		c, err := thread.Lookup(name)
		if err != nil {
			logger.Error().Err(err).Str("thread_palette", name).Msg("Failed to load thread catalog")
			apiutil.WriteError(w, r, err)
			return
		}
		palettes = append(palettes, paletteSummary{Name: c.Name(), Title: c.Title(), Count: c.Len()})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"palettes": palettes}); err != nil {
		logger.Error().Err(err).Msg("Failed to write palette list")
	}
}

// GET /api/v1/threads/{palette}
func HandleGetPalette(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	name := r.PathValue("palette")

	c, err := thread.Lookup(name)
	if err != nil {
		if errors.Is(err, thread.ErrUnknownPalette) {
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusNotFound,
				Kind:    apiutil.KindNotFound,
				Field:   "palette",
				Message: "Unknown thread palette",
				Err:     err,
			})
			return
		}
		logger.Error().Err(err).Str("thread_palette", name).Msg("Failed to load thread catalog")
		apiutil.WriteError(w, r, err)
		return
	}

	threads := c.Threads()
	resp := paletteResponse{
		paletteSummary: paletteSummary{Name: c.Name(), Title: c.Title(), Count: len(threads)},
		Threads:        make([]threadResponse, 0, len(threads)),
	}
	for _, t := range threads {
		resp.Threads = append(resp.Threads, threadResponse{
			Code:  t.Code,
			Name:  t.Name,
			Hex:   t.RGB.Hex(),
			Color: t.RGB.CSS(),
		})
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write thread palette")
	}
}
