package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCoefficients(t *testing.T) {
	got := parseCoefficients("Maths=4, anglais = 3,broken,eps=abc,zero=0")

	assert.Equal(t, map[string]float64{"maths": 4, "anglais": 3}, got)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("", 5*time.Second))
	assert.Equal(t, 5*time.Second, parseDuration("nope", 5*time.Second))
	assert.Equal(t, time.Minute, parseDuration("1m", 5*time.Second))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BULLETIN_LOCK_BACKEND", "REDIS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	assert.Equal(t, LockBackendRedis, cfg.Bulletins.LockBackend)
	assert.Equal(t, 4.0, cfg.Bulletins.DefaultCoefficients["mathématiques"])
	assert.Equal(t, 2.0, cfg.Bulletins.FallbackCoefficient)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
}
