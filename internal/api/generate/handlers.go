// internal/api/generate/handlers.go
package generate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Stitchcraft/internal/api"
	"github.com/codr1/Stitchcraft/internal/api/apiutil"
	"github.com/codr1/Stitchcraft/internal/engine"
	"github.com/codr1/Stitchcraft/internal/pattern"
	"github.com/codr1/Stitchcraft/internal/ratelimit"
)

type Options struct {
	// Timeout bounds one generation; zero means no limit beyond the request.
	Timeout        time.Duration
	TrustProxy     bool
	MaxUploadBytes int64
}

var (
	generator *engine.Engine
	limiter   *ratelimit.Limiter
	options   Options
	initOnce  sync.Once
)

type meta struct {
	FabricCount          int     `json:"fabricCount"`
	FinishedWidthInches  float64 `json:"finishedWidthInches"`
	FinishedHeightInches float64 `json:"finishedHeightInches"`
	RequestID            string  `json:"requestId,omitempty"`
}

type generateResponse struct {
	Pattern pattern.Document `json:"pattern"`
	Meta    meta             `json:"meta"`
}

// InitHandlers must be called during server startup before handling requests.
// A nil limiter disables rate limiting.
func InitHandlers(e *engine.Engine, l *ratelimit.Limiter, opts Options) {
	if e == nil {
		return
	}
	initOnce.Do(func() {
		generator = e
		limiter = l
		options = opts
		if options.MaxUploadBytes <= 0 {
			options.MaxUploadBytes = int64(e.Limits().MaxImageBytes)
		}
	})
}

// POST /api/generate-pattern
func HandleGeneratePattern(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if generator == nil {
		logger.Error().Msg("Pattern engine not initialized")
		apiutil.WriteError(w, r, errors.New("engine not initialized"))
		return
	}

	if limiter != nil {
		ip := ratelimit.GetClientIP(r, options.TrustProxy)
		if res := limiter.Allow(ratelimit.ActionGenerate, ip); !res.Allowed {
			ratelimit.LogRateLimitExceeded(ratelimit.ActionGenerate, ip, res)
			apiutil.WriteRateLimited(w, r, res.RetryAfter)
			return
		}
	}

	req, fabricCount, err := parseRequest(r, options.MaxUploadBytes)
	if err != nil {
		if apiutil.IsBodyTooLarge(err) {
			apiutil.WriteError(w, r, apiutil.HandlerError{
				Status:  http.StatusRequestEntityTooLarge,
				Kind:    apiutil.KindTooLarge,
				Message: "Request body too large",
				Err:     err,
			})
			return
		}
		var fieldErr apiutil.FieldError
		var handlerErr apiutil.HandlerError
		if !errors.As(err, &fieldErr) && !errors.As(err, &handlerErr) {
			logger.Error().Err(err).Msg("Failed to read pattern request")
		}
		apiutil.WriteError(w, r, err)
		return
	}

	ctx := r.Context()
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	started := time.Now()
	p, err := generator.Generate(ctx, req)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}

	logger.Info().
		Int("width", p.Width).
		Int("height", p.Height).
		Str("thread_palette", p.Palette).
		Int("colors", len(p.Colors)).
		Dur("took", time.Since(started)).
		Msg("Pattern generated")

	resp := generateResponse{
		Pattern: pattern.Encode(p),
		Meta: meta{
			FabricCount:          fabricCount,
			FinishedWidthInches:  finishedInches(p.Width, fabricCount),
			FinishedHeightInches: finishedInches(p.Height, fabricCount),
			RequestID:            api.RequestIDFromContext(r.Context()),
		},
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write pattern response")
	}
}

// engineFields maps engine field names onto the names the client sent.
var engineFields = map[string]string{
	"width":         "width",
	"height":        "height",
	"maxColors":     "colorCount",
	"threadPalette": "threadType",
	"image":         "imageData",
}

// engineError converts a Generate failure into the HTTP error contract.
// Only caller-facing kinds keep their message.
func engineError(err error) apiutil.HandlerError {
	var gerr *engine.Error
	if !errors.As(err, &gerr) {
		return apiutil.HandlerError{Status: http.StatusInternalServerError, Kind: apiutil.KindInternal, Message: "Failed to generate pattern", Err: err}
	}

	herr := apiutil.HandlerError{Kind: gerr.Code(), Err: err}
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		herr.Status = http.StatusBadRequest
		herr.Message = gerr.Error()
		if field, ok := engineFields[gerr.Field]; ok {
			herr.Field = field
			herr.Message = field + ": " + gerr.Message
		}
	case errors.Is(err, engine.ErrDecode), errors.Is(err, engine.ErrInvalidImage):
		herr.Status = http.StatusUnprocessableEntity
		herr.Message = gerr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		herr.Status = http.StatusServiceUnavailable
		herr.Kind = "timeout"
		herr.Message = "Pattern generation timed out"
	default:
		herr.Status = http.StatusInternalServerError
		herr.Message = "Failed to generate pattern"
	}
	return herr
}
