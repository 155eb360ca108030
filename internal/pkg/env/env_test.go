package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"RP_INT":      "42",
		"RP_BAD_INT":  "forty-two",
		"RP_INT64":    "1500",
		"RP_BOOL":     "true",
		"RP_DURATION": "90s",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 42, GetEnvInt("RP_INT", 0))
	assert.Equal(t, 7, GetEnvInt("RP_BAD_INT", 7))
	assert.Equal(t, int64(1500), GetEnvInt64("RP_INT64", 0))
	assert.True(t, GetEnvBool("RP_BOOL", false))
	assert.False(t, GetEnvBool("RP_MISSING", false))
	assert.Equal(t, 90*time.Second, GetEnvDuration("RP_DURATION", time.Second))
	assert.Equal(t, time.Minute, GetEnvDuration("RP_MISSING", time.Minute))
}

func TestGetEnvFallsBackToProcessEnv(t *testing.T) {
	Env = map[string]string{}
	t.Setenv("RP_FROM_OS", "os-value")

	assert.Equal(t, "os-value", GetEnv("RP_FROM_OS", "def"))
	assert.Equal(t, "def", GetEnv("RP_NOT_SET_ANYWHERE", "def"))
}
