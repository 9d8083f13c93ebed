package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STOREFRONT_API_BASE_URL", "https://store.example.com/api")
	t.Setenv("STOREFRONT_API_CLIENT_KEY", "key")
	t.Setenv("STOREFRONT_API_CLIENT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageDriverBadger {
		t.Fatalf("unexpected storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Cache.StaleWindow != 5*time.Minute {
		t.Fatalf("unexpected stale window %s", cfg.Cache.StaleWindow)
	}
	if cfg.Cache.BackgroundRefresh != time.Minute {
		t.Fatalf("unexpected background refresh %s", cfg.Cache.BackgroundRefresh)
	}
	if cfg.Search.Debounce != 300*time.Millisecond {
		t.Fatalf("unexpected debounce %s", cfg.Search.Debounce)
	}
	if cfg.Payment.WaitWindow != 15*time.Minute {
		t.Fatalf("unexpected payment wait window %s", cfg.Payment.WaitWindow)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.Step != time.Second {
		t.Fatalf("unexpected retry config %+v", cfg.Retry)
	}
	if !cfg.App.IsDev() {
		t.Fatal("expected dev env by default")
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("STOREFRONT_API_BASE_URL", "https://store.example.com/api")
	t.Setenv("STOREFRONT_API_CLIENT_KEY", "")
	t.Setenv("STOREFRONT_API_CLIENT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestLoadRejectsUnknownStorageDriver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOREFRONT_STORAGE_DRIVER", "sqlite")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestLoadRedisDriverRequiresURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOREFRONT_STORAGE_DRIVER", StorageDriverRedis)
	t.Setenv("STOREFRONT_REDIS_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when redis driver has no url")
	}
	if !strings.Contains(err.Error(), "STOREFRONT_REDIS_URL") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestLoadRedisDriverWithURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOREFRONT_STORAGE_DRIVER", StorageDriverRedis)
	t.Setenv("STOREFRONT_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageDriverRedis {
		t.Fatalf("unexpected driver %q", cfg.Storage.Driver)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOREFRONT_CACHE_STALE_WINDOW", "90s")
	t.Setenv("STOREFRONT_RETRY_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.StaleWindow != 90*time.Second {
		t.Fatalf("unexpected stale window %s", cfg.Cache.StaleWindow)
	}
	if cfg.Retry.Attempts != 5 {
		t.Fatalf("unexpected attempts %d", cfg.Retry.Attempts)
	}
}
