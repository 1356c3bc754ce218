package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("VAULT_CHANNEL_ID", "-1002564608005")

	cfg := LoadConfig()
	if cfg.CooldownWindow != 5*time.Second {
		t.Fatalf("expected default cooldown 5s, got %s", cfg.CooldownWindow)
	}
	if cfg.ExposureWindow != 3*time.Hour {
		t.Fatalf("expected default exposure 3h, got %s", cfg.ExposureWindow)
	}
	if cfg.VaultChannelID != -1002564608005 {
		t.Fatalf("unexpected vault channel id %d", cfg.VaultChannelID)
	}
	if cfg.MaxRelayAttempts != 3 {
		t.Fatalf("expected 3 relay attempts, got %d", cfg.MaxRelayAttempts)
	}
	if cfg.StatsBucket != "minute" || cfg.StatsBucketTTL != 24*time.Hour {
		t.Fatalf("unexpected stats bucket defaults %q %s", cfg.StatsBucket, cfg.StatsBucketTTL)
	}
	if cfg.ForceJoinChannel != "" {
		t.Fatalf("force join must be off by default, got %q", cfg.ForceJoinChannel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadConfig_ForceJoinAndTerms(t *testing.T) {
	t.Setenv("FORCE_JOIN_CHANNEL", " @refgate_news ")
	t.Setenv("TERMS_CHAT", "@refgate_terms")
	t.Setenv("TERMS_MESSAGE_ID", "42")

	cfg := LoadConfig()
	if cfg.ForceJoinChannel != "refgate_news" {
		t.Fatalf("expected channel without @, got %q", cfg.ForceJoinChannel)
	}
	if cfg.TermsChat != "refgate_terms" || cfg.TermsMessageID != 42 {
		t.Fatalf("unexpected terms post %q/%d", cfg.TermsChat, cfg.TermsMessageID)
	}
}

func TestLoadConfig_DurationForms(t *testing.T) {
	t.Setenv("COOLDOWN_WINDOW", "7")
	t.Setenv("EXPOSURE_WINDOW", "90m")
	t.Setenv("RELAY_RETRY_DELAY", "not-a-duration")

	cfg := LoadConfig()
	if cfg.CooldownWindow != 7*time.Second {
		t.Fatalf("bare number should be seconds, got %s", cfg.CooldownWindow)
	}
	if cfg.ExposureWindow != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", cfg.ExposureWindow)
	}
	if cfg.RetryDelay != time.Second {
		t.Fatalf("invalid value should fall back to 1s, got %s", cfg.RetryDelay)
	}
}

func TestLoadConfig_AllowedIPs(t *testing.T) {
	t.Setenv("OPS_ALLOWED_IPS", " 10.0.0.0/8, ,192.168.1.0/24")

	cfg := LoadConfig()
	if len(cfg.OpsAllowedIPs) != 2 {
		t.Fatalf("expected 2 CIDRs, got %v", cfg.OpsAllowedIPs)
	}
	if cfg.OpsAllowedIPs[1] != "192.168.1.0/24" {
		t.Fatalf("unexpected CIDR %q", cfg.OpsAllowedIPs[1])
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		DBDriver:         "mysql",
		ThrottleBackend:  "memcached",
		StatsBackend:     "statsd",
		StatsBucket:      "hour",
		MaxRelayAttempts: 0,
		ExposureWindow:   time.Hour,
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"TELEGRAM_BOT_TOKEN", "VAULT_CHANNEL_ID", "DB_DRIVER", "THROTTLE_BACKEND", "STATS_BACKEND", "STATS_BUCKET", "MAX_RELAY_ATTEMPTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %q", want, err.Error())
		}
	}
}

func TestNeedsRedis(t *testing.T) {
	if (&Config{ThrottleBackend: "memory", StatsBackend: "memory"}).NeedsRedis() {
		t.Fatalf("memory backends must not need redis")
	}
	if !(&Config{ThrottleBackend: "memory", StatsBackend: "redis"}).NeedsRedis() {
		t.Fatalf("redis stats must need redis")
	}
}
