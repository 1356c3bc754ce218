// Package ops serves health and delivery counters over HTTP.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"refgate-bot/internal/stats"
)

type Counter interface {
	Count(ctx context.Context) (int64, error)
}

type Pending interface {
	Pending(ctx context.Context) (int64, error)
}

type Sizer interface {
	Len() int
}

type Handler struct {
	Outcomes    stats.Snapshotter
	Vault       Counter
	Retractions Pending
	// Cooldowns is set only for the in-memory throttle.
	Cooldowns Sizer
	Started   time.Time
}

type snapshot struct {
	Outcomes           map[string]int64 `json:"outcomes"`
	VaultItems         int64            `json:"vault_items"`
	PendingRetractions int64            `json:"pending_retractions"`
	CooldownEntries    *int             `json:"cooldown_entries,omitempty"`
	UptimeSeconds      int64            `json:"uptime_seconds"`
}

// Router mounts /healthz for everyone and /stats for allowedCIDRs.
func Router(h *Handler, allowedCIDRs []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.With(AllowCIDRs(allowedCIDRs)).Get("/stats", h.Stats)
	return r
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		log.Printf("Failed to build stats snapshot: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("Failed to encode stats: %v", err)
	}
}

func (h *Handler) snapshot(ctx context.Context) (snapshot, error) {
	snap := snapshot{Outcomes: map[string]int64{}}
	if h.Outcomes != nil {
		totals, err := h.Outcomes.Totals(ctx)
		if err != nil {
			return snapshot{}, fmt.Errorf("outcome totals: %w", err)
		}
		snap.Outcomes = totals
	}
	if h.Vault != nil {
		n, err := h.Vault.Count(ctx)
		if err != nil {
			return snapshot{}, fmt.Errorf("vault count: %w", err)
		}
		snap.VaultItems = n
	}
	if h.Retractions != nil {
		n, err := h.Retractions.Pending(ctx)
		if err != nil {
			return snapshot{}, fmt.Errorf("pending retractions: %w", err)
		}
		snap.PendingRetractions = n
	}
	if h.Cooldowns != nil {
		n := h.Cooldowns.Len()
		snap.CooldownEntries = &n
	}
	if !h.Started.IsZero() {
		snap.UptimeSeconds = int64(time.Since(h.Started) / time.Second)
	}
	return snap, nil
}

// Serve runs the router on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Ops server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
