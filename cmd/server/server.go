// cmd/server/server.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Stitchcraft/internal/api"
	"github.com/codr1/Stitchcraft/internal/api/generate"
	"github.com/codr1/Stitchcraft/internal/api/patterns"
	"github.com/codr1/Stitchcraft/internal/api/threads"
	"github.com/codr1/Stitchcraft/internal/config"
	"github.com/codr1/Stitchcraft/internal/db"
	"github.com/codr1/Stitchcraft/internal/engine"
	"github.com/codr1/Stitchcraft/internal/patternstore"
	"github.com/codr1/Stitchcraft/internal/ratelimit"
	"github.com/codr1/Stitchcraft/internal/scheduler"
)

// dependencies are the long-lived services behind the HTTP handlers. The
// database, store and scheduler are nil when storage is disabled.
type dependencies struct {
	engine    *engine.Engine
	limiter   *ratelimit.Limiter
	database  *db.DB
	store     *patternstore.Store
	scheduler *scheduler.Service

	closeOnce sync.Once
}

func newDependencies(cfg *config.Config) (*dependencies, error) {
	eng, err := engine.New(engine.Options{
		Limits: engine.Limits{
			MinDimension:    cfg.Limits.MinDimension,
			MaxDimension:    cfg.Limits.MaxDimension,
			MinColors:       cfg.Limits.MinColors,
			MaxColors:       cfg.Limits.MaxColors,
			MaxImageBytes:   cfg.Limits.MaxUploadBytes,
			MaxSourcePixels: cfg.Limits.MaxSourcePixels,
		},
		Workers:             cfg.Engine.Workers,
		Quantizer:           cfg.Engine.Quantizer,
		Metric:              cfg.Engine.Metric,
		BackstitchThreshold: cfg.Engine.BackstitchThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("create pattern engine: %w", err)
	}
	deps := &dependencies{engine: eng}

	if cfg.RateLimit.Enabled {
		deps.limiter = ratelimit.New(&ratelimit.Config{
			GenerateCooldown:   cfg.RateLimit.GenerateCooldown,
			GenerateMaxPerHour: cfg.RateLimit.GenerateMaxPerHour,
			SaveMaxPerHour:     cfg.RateLimit.SaveMaxPerHour,
		})
	}

	if !cfg.Storage.Enabled {
		log.Info().Msg("Pattern storage disabled")
		return deps, nil
	}

	deps.database, err = db.NewFromConfig(cfg)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	deps.store, err = patternstore.New(deps.database, patternstore.Options{
		Retention:        cfg.Storage.Retention,
		CompressionLevel: cfg.Storage.CompressionLevel,
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("create pattern store: %w", err)
	}
	deps.scheduler, err = scheduler.New()
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if _, err := scheduler.RegisterPatternPurge(deps.scheduler, deps.store, cfg.Storage.CleanupCron); err != nil {
		deps.Close()
		return nil, fmt.Errorf("register purge job: %w", err)
	}

	return deps, nil
}

// Close releases everything in reverse order of creation. Safe to call twice.
func (d *dependencies) Close() {
	d.closeOnce.Do(func() {
		if d.scheduler != nil {
			if err := d.scheduler.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop scheduler")
			}
		}
		if d.store != nil {
			d.store.Close()
		}
		if d.database != nil {
			if err := d.database.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}
		if d.limiter != nil {
			d.limiter.Close()
		}
	})
}

func newServer(cfg *config.Config, deps *dependencies) *http.Server {
	router := http.NewServeMux()

	// base64 inflates uploads by a third; leave room for the settings.
	bodyLimit := int64(cfg.Limits.MaxUploadBytes)*4/3 + 1<<20

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithBodyLimit(bodyLimit),
		api.WithLogging,
		api.WithRecovery,
		api.WithCORS(cfg.CORS.AllowedOrigins),
		api.WithRequestID,
	)

	generate.InitHandlers(deps.engine, deps.limiter, generate.Options{
		Timeout:        cfg.Engine.Timeout,
		TrustProxy:     cfg.RateLimit.TrustProxy,
		MaxUploadBytes: int64(cfg.Limits.MaxUploadBytes),
	})
	patterns.InitHandlers(deps.store, deps.limiter, cfg.RateLimit.TrustProxy)

	// Register routes
	registerRoutes(router, deps)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Engine.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *dependencies) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if deps.database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.database.PingContext(ctx); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("Health check database ping failed")
				http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Pattern generation
	mux.HandleFunc("POST /api/generate-pattern", generate.HandleGeneratePattern)

	// Thread catalogs
	mux.HandleFunc("GET /api/v1/threads", threads.HandleListPalettes)
	mux.HandleFunc("GET /api/v1/threads/{palette}", threads.HandleGetPalette)

	// Shared patterns
	mux.HandleFunc("POST /api/v1/patterns", patterns.HandleSavePattern)
	mux.HandleFunc("GET /api/v1/patterns/{id}", patterns.HandleGetPattern)
	mux.HandleFunc("DELETE /api/v1/patterns/{id}", patterns.HandleDeletePattern)
}
