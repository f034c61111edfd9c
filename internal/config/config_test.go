package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StoreDriver != StoreDriverSQLite || cfg.DefaultPIN != "1234" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LoginMaxAttempts != 3 || cfg.FirstTimePinMaxAttempts != 3 {
		t.Fatalf("unexpected attempt limits: %+v", cfg)
	}
	if cfg.FirstTimePinLockout() != 5*time.Minute || cfg.OTCPINCacheTTL() != 5*time.Minute {
		t.Fatalf("unexpected durations: %s %s", cfg.FirstTimePinLockout(), cfg.OTCPINCacheTTL())
	}
	if cfg.CredentialMaxAge() != 30*24*time.Hour {
		t.Fatalf("unexpected credential max age %s", cfg.CredentialMaxAge())
	}
	if cfg.SecureStoreMasterKey() != nil {
		t.Fatal("expected no secure store key by default")
	}
}

func TestLoadConfig_ClampsInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("LOGIN_MAX_ATTEMPTS", "0")
	t.Setenv("OTCPIN_CACHE_TTL_SECONDS", "-5")
	t.Setenv("DEFAULT_PIN", "12a4")
	t.Setenv("STORE_DRIVER", "dynamodb")
	t.Setenv("SECURE_STORE_KEY", "too-short")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.LoginMaxAttempts != 3 || cfg.OTCPINCacheTTLSeconds != 300 {
		t.Fatalf("expected clamped limits, got %+v", cfg)
	}
	if cfg.DefaultPIN != "1234" || cfg.StoreDriver != StoreDriverSQLite || cfg.SecureStoreKey != "" {
		t.Fatalf("expected invalid values replaced, got %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
}

func TestLoadConfig_RequiresDriverURLs(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := LoadConfig(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected missing REDIS_URL error, got %v", err)
	}
}

func TestLoadConfig_SecureStoreKeyAndPortOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	t.Setenv("SECURE_STORE_KEY", key)
	t.Setenv("PORT", "9911")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.SecureStoreMasterKey()) != 32 {
		t.Fatalf("expected decoded 32-byte key, got %d bytes", len(cfg.SecureStoreMasterKey()))
	}
	if cfg.Addr() != "127.0.0.1:9911" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
}
