// internal/api/patterns/handlers.go
package patterns

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Stitchcraft/internal/api/apiutil"
	"github.com/codr1/Stitchcraft/internal/pattern"
	"github.com/codr1/Stitchcraft/internal/patternstore"
	"github.com/codr1/Stitchcraft/internal/ratelimit"
)

const (
	patternQueryTimeout  = 5 * time.Second
	// Delete compares a bcrypt hash inside its transaction.
	patternDeleteTimeout = 10 * time.Second
	DeleteTokenHeader    = "X-Delete-Token"
)

var (
	store      *patternstore.Store
	limiter    *ratelimit.Limiter
	trustProxy bool
	initOnce   sync.Once
)

type saveRequest struct {
	Pattern pattern.Document `json:"pattern"`
}

type saveResponse struct {
	patternstore.Saved
	URL string `json:"url"`
}

type patternResponse struct {
	ID        string           `json:"id"`
	Pattern   pattern.Document `json:"pattern"`
	Views     int64            `json:"views"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// InitHandlers must be called during server startup before handling requests.
// A nil limiter disables rate limiting of saves.
func InitHandlers(s *patternstore.Store, l *ratelimit.Limiter, trustProxyHeaders bool) {
	if s == nil {
		return
	}
	initOnce.Do(func() {
		store = s
		limiter = l
		trustProxy = trustProxyHeaders
	})
}

func loadStore(w http.ResponseWriter, r *http.Request) *patternstore.Store {
	if store == nil {
		log.Ctx(r.Context()).Error().Msg("Pattern store not initialized")
		apiutil.WriteError(w, r, apiutil.HandlerError{
			Status:  http.StatusServiceUnavailable,
			Kind:    apiutil.KindInternal,
			Message: "Pattern sharing is not available",
		})
		return nil
	}
	return store
}

// POST /api/v1/patterns
func HandleSavePattern(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore(w, r)
	if s == nil {
		return
	}

	if limiter != nil {
		ip := ratelimit.GetClientIP(r, trustProxy)
		if res := limiter.Allow(ratelimit.ActionSave, ip); !res.Allowed {
			ratelimit.LogRateLimitExceeded(ratelimit.ActionSave, ip, res)
			apiutil.WriteRateLimited(w, r, res.RetryAfter)
			return
		}
	}

	var req saveRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		if apiutil.IsBodyTooLarge(err) {
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusRequestEntityTooLarge,
				Kind:    apiutil.KindTooLarge,
				Message: "Request body too large",
			})
			return
		}
		apiutil.WriteError(w, r, apiutil.HandlerError{
			Status:  http.StatusBadRequest,
			Kind:    apiutil.KindInvalidRequest,
			Message: "Invalid JSON body",
			Err:     err,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), patternQueryTimeout)
	defer cancel()

	saved, err := s.Save(ctx, req.Pattern)
	if err != nil {
		if errors.Is(err, pattern.ErrInvalidDocument) {
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusBadRequest,
				Kind:    apiutil.KindInvalidRequest,
				Field:   "pattern",
				Message: err.Error(),
				Err:     err,
			})
			return
		}
		logger.Error().Err(err).Msg("Failed to save pattern")
		apiutil.WriteError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/patterns/"+saved.ID)
	resp := saveResponse{Saved: saved, URL: "/api/v1/patterns/" + saved.ID}
	if err := apiutil.WriteJSON(w, http.StatusCreated, resp); err != nil {
		logger.Error().Err(err).Str("pattern_id", saved.ID).Msg("Failed to write save response")
	}
}

// GET /api/v1/patterns/{id}
func HandleGetPattern(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore(w, r)
	if s == nil {
		return
	}

	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), patternQueryTimeout)
	defer cancel()

	rec, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, patternstore.ErrNotFound) {
			writeNotFound(w, r)
			return
		}
		logger.Error().Err(err).Str("pattern_id", id).Msg("Failed to load pattern")
		apiutil.WriteError(w, r, err)
		return
	}

	resp := patternResponse{
		ID:        rec.ID,
		Pattern:   rec.Document,
		Views:     rec.Views,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Str("pattern_id", id).Msg("Failed to write pattern")
	}
}

// DELETE /api/v1/patterns/{id}
func HandleDeletePattern(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore(w, r)
	if s == nil {
		return
	}

	id := r.PathValue("id")
	token := strings.TrimSpace(r.Header.Get(DeleteTokenHeader))
	if token == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: DeleteTokenHeader, Reason: "header is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), patternDeleteTimeout)
	defer cancel()

	if err := s.Delete(ctx, id, token); err != nil {
		switch {
		case errors.Is(err, patternstore.ErrNotFound):
			writeNotFound(w, r)
		case errors.Is(err, patternstore.ErrInvalidToken):
			logger.Warn().Str("pattern_id", id).Msg("Pattern delete with wrong token")
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusForbidden,
				Kind:    apiutil.KindForbidden,
				Message: "Delete token does not match",
				Err:     err,
			})
		default:
			logger.Error().Err(err).Str("pattern_id", id).Msg("Failed to delete pattern")
			apiutil.WriteError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeNotFound(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteError(w, r, apiutil.HandlerError{
		Status:  http.StatusNotFound,
		Kind:    apiutil.KindNotFound,
		Message: "Pattern not found or expired",
	})
}
