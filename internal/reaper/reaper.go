// Package reaper expires idle sessions and sweeps containers leaked by a
// previous broker process.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpsandbox/mcpsandbox/internal/config"
	"github.com/mcpsandbox/mcpsandbox/internal/metrics"
	"github.com/mcpsandbox/mcpsandbox/internal/session"
	"github.com/mcpsandbox/mcpsandbox/pkg/log"
	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

// Reaper owns the startup orphan sweep and the periodic TTL loop. Session
// destruction goes through Manager.Close, so the reaper obeys the same
// per-session mutex as every other caller and never kills an in-flight run.
type Reaper struct {
	cfg    *config.Config
	mgr    *session.Manager
	engine session.Engine
	log    zerolog.Logger
}

// New creates a reaper.
func New(cfg *config.Config, mgr *session.Manager, engine session.Engine) *Reaper {
	return &Reaper{
		cfg:    cfg,
		mgr:    mgr,
		engine: engine,
		log:    log.WithComponent("reaper"),
	}
}

// SweepOrphans force-removes every container carrying the app label. It runs
// once at boot, before any session is accepted, to reclaim state leaked by a
// previous broker process. Returns the number of orphans removed.
func (r *Reaper) SweepOrphans(ctx context.Context) int {
	entries, err := r.engine.ListContainers(ctx, session.AppLabel)
	if err != nil {
		r.log.Error().Err(err).Msg("orphan listing failed")
		return 0
	}

	removed := 0
	for _, entry := range entries {
		r.log.Info().Str("container_id", entry.ID).Str("name", entry.Name).
			Msg("orphan removing")
		if err := r.engine.RemoveContainer(ctx, entry.ID, true, true); err != nil {
			r.log.Error().Str("container_id", entry.ID).Err(err).Msg("orphan remove failed")
			continue
		}
		removed++
		metrics.SessionsReaped.WithLabelValues("orphan").Inc()
	}
	if removed > 0 {
		r.log.Warn().Int("count", removed).Msg("orphans found")
	}
	return removed
}

// Run drives the TTL loop until the context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	interval := time.Duration(r.cfg.CleanupIntervalM) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info().Int("interval_m", r.cfg.CleanupIntervalM).
		Int("ttl_m", r.cfg.SessionTTLM).Msg("ttl cleanup started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ExpireIdle(ctx)
		}
	}
}

// ExpireIdle closes every session idle longer than the TTL. A session that
// reports session_busy is left alone and retried next tick; a long
// computation must not be killed mid-run. Any other close error is logged
// and the session is considered gone.
func (r *Reaper) ExpireIdle(ctx context.Context) {
	ttl := time.Duration(r.cfg.SessionTTLM) * time.Minute
	for _, sid := range r.mgr.IdleLongerThan(ttl) {
		r.log.Info().Str("session_id", sid).Msg("session ttl expired")
		if _, err := r.mgr.Close(ctx, sid); err != nil {
			if err.Kind == types.ErrSessionBusy {
				r.log.Debug().Str("session_id", sid).Msg("expired session busy, retrying next tick")
				continue
			}
			r.log.Error().Str("session_id", sid).Str("error", err.Kind).
				Msg("expired session close failed")
			continue
		}
		metrics.SessionsReaped.WithLabelValues("ttl").Inc()
	}
}
