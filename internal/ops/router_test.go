package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"refgate-bot/internal/stats"
)

type fixedCount int64

func (c fixedCount) Count(context.Context) (int64, error)   { return int64(c), nil }
func (c fixedCount) Pending(context.Context) (int64, error) { return int64(c), nil }

type brokenCount struct{}

func (brokenCount) Count(context.Context) (int64, error) { return 0, errors.New("db closed") }

func TestIsAllowedIP(t *testing.T) {
	allowed := []string{"10.0.0.0/8", "not-a-cidr", "192.168.1.0/24"}
	cases := map[string]bool{
		"10.1.2.3":    true,
		"192.168.1.7": true,
		"192.168.2.7": false,
		"8.8.8.8":     false,
		"garbage":     false,
	}
	for ip, want := range cases {
		if got := IsAllowedIP(ip, allowed); got != want {
			t.Errorf("IsAllowedIP(%q) = %v, want %v", ip, got, want)
		}
	}
}

func TestRouter_Health(t *testing.T) {
	r := Router(&Handler{}, []string{"10.0.0.0/8"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouter_StatsSnapshot(t *testing.T) {
	outcomes := stats.NewMemory()
	ctx := context.Background()
	_ = outcomes.Record(ctx, stats.Event{Outcome: "delivered", UserID: 1})
	_ = outcomes.Record(ctx, stats.Event{Outcome: "delivered", UserID: 2})
	_ = outcomes.Record(ctx, stats.Event{Outcome: "locked", UserID: 3})

	h := &Handler{Outcomes: outcomes, Vault: fixedCount(12), Retractions: fixedCount(4)}
	rec := httptest.NewRecorder()
	Router(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Outcomes["delivered"] != 2 || got.Outcomes["locked"] != 1 {
		t.Fatalf("unexpected outcomes %v", got.Outcomes)
	}
	if got.VaultItems != 12 || got.PendingRetractions != 4 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

type fixedLen int

func (n fixedLen) Len() int { return int(n) }

func TestRouter_StatsCooldownEntries(t *testing.T) {
	rec := httptest.NewRecorder()
	Router(&Handler{Cooldowns: fixedLen(3)}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var got snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CooldownEntries == nil || *got.CooldownEntries != 3 {
		t.Fatalf("expected 3 cooldown entries, got %v", got.CooldownEntries)
	}

	rec = httptest.NewRecorder()
	Router(&Handler{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if strings.Contains(rec.Body.String(), "cooldown_entries") {
		t.Fatalf("cooldown entries reported without an in-memory throttle: %s", rec.Body.String())
	}
}

func TestRouter_StatsAllowlist(t *testing.T) {
	r := Router(&Handler{}, []string{"10.0.0.0/8"})

	outside := httptest.NewRequest(http.MethodGet, "/stats", nil)
	outside.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, outside)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 from outside the allowlist, got %d", rec.Code)
	}

	inside := httptest.NewRequest(http.MethodGet, "/stats", nil)
	inside.RemoteAddr = "10.2.3.4:5555"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, inside)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from inside the allowlist, got %d", rec.Code)
	}

	proxied := httptest.NewRequest(http.MethodGet, "/stats", nil)
	proxied.RemoteAddr = "203.0.113.9:5555"
	proxied.Header.Set("X-Real-IP", "10.9.9.9")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, proxied)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the real ip header to be honoured, got %d", rec.Code)
	}
}

func TestRouter_StatsStoreError(t *testing.T) {
	rec := httptest.NewRecorder()
	Router(&Handler{Vault: brokenCount{}}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
