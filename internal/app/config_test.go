package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, SenderLog, cfg.NotifySender)
	assert.Equal(t, "5000", cfg.DefaultBase().String())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownSender(t *testing.T) {
	t.Setenv("NOTIFY_SENDER", "pigeon")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "NOTIFY_SENDER")
}

func TestLoadConfigRejectsBadDefaultBase(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-10"} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("TARIFF_DEFAULT_BASE", raw)

			_, err := LoadConfig()
			assert.ErrorContains(t, err, "TARIFF_DEFAULT_BASE")
		})
	}
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json"}).Info("hello")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"env":"production"`)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
