package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/mycoshop-backend/api/responses"
	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const (
	storageModeDatabase = "database"
	storageModeFallback = "fallback"
	healthPingTimeout   = 2 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MycoShop-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when both the database and Redis answer.
func HealthReady(cfg *config.Config, database, cache Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MycoShop-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		ready := true
		if err := ping(ctx, database); err != nil {
			checks["database"] = err.Error()
			ready = false
		}
		if err := ping(ctx, cache); err != nil {
			checks["redis"] = err.Error()
			ready = false
		}
		if !ready {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStoreUnavailable, "dependencies unavailable").
				WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

// StorageHealth reports whether catalog reads are served from the database
// or from the static fallback catalog.
func StorageHealth(cfg *config.Config, database Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		mode := storageModeDatabase
		if err := ping(ctx, database); err != nil {
			mode = storageModeFallback
		}
		responses.WriteSuccess(w, map[string]any{
			"status":      "ok",
			"storage":     mode,
			"environment": cfg.App.Env,
			"timestamp":   time.Now().UTC(),
		})
	}
}

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return pkgerrors.New(pkgerrors.CodeStoreUnavailable, "not configured")
	}
	return p.Ping(ctx)
}
