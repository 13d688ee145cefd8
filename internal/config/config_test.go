package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("SUBMIT_POLICY", "")
	t.Setenv("REDIS_URL", "")

	cfg := Load()

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, SubmitPolicyReplay, cfg.SubmitPolicy)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 60*time.Second, cfg.ExpiryGrace)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("SUBMIT_POLICY", "reject")
	t.Setenv("EXPIRY_GRACE_SECONDS", "5")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg := Load()

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, SubmitPolicyReject, cfg.SubmitPolicy)
	assert.Equal(t, 5*time.Second, cfg.ExpiryGrace)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestLoad_UnknownPolicyFallsBack(t *testing.T) {
	t.Setenv("SUBMIT_POLICY", "regrade")

	assert.Equal(t, SubmitPolicyReplay, Load().SubmitPolicy)
}
