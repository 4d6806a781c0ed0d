package config

import (
	"testing"

	v "github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]any) *v.Viper {
	vp := v.New()
	SetDefaults(vp)
	for k, val := range overrides {
		vp.Set(k, val)
	}
	return vp
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cache", cfg.Cache.Path)
	assert.Equal(t, "EN", cfg.Cache.Locale)
	assert.Equal(t, 86400, cfg.Cache.Expiration)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, int64(50<<20), cfg.Upload.MaxSize)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]any{
		"log level":       {"app.log_level": "verbose"},
		"port":            {"host.port": 0},
		"storage type":    {"storage.type": "ftp"},
		"s3 without keys": {"storage.type": "s3", "storage.region": "eu-west-1"},
		"r2 without id":   {"storage.type": "r2", "storage.bucket": "b", "storage.access_key_id": "a", "storage.secret_access_key": "s"},
		"postgres no dsn": {"database.type": "postgres"},
		"cache store":     {"cache.store": "memcached"},
		"redis no addr":   {"cache.store": "redis"},
		"expiration":      {"cache.expiration": 0},
		"turnstile":       {"turnstile.enabled": true},
		"workers":         {"convert.workers": 0},
	}

	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(newViper(overrides))
			assert.Error(t, err)
		})
	}
}

func TestLoadR2(t *testing.T) {
	cfg, err := Load(newViper(map[string]any{
		"storage.type":              "r2",
		"storage.bucket":            "media",
		"storage.account_id":        "acc",
		"storage.access_key_id":     "key",
		"storage.secret_access_key": "secret",
	}))
	require.NoError(t, err)
	assert.Equal(t, "r2", cfg.Storage.Type)
	assert.Equal(t, "acc", cfg.Storage.AccountID)
}
