package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickstream/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()

	assert.Equal(t, config.Immediate, cfg.SendMode)
	assert.Equal(t, 5*time.Second, cfg.BatchInterval())
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.True(t, cfg.AutoTrackAppStart)
	assert.True(t, cfg.AutoTrackAppEnd)
	assert.True(t, cfg.AutoTrackPageShow)
	assert.True(t, cfg.AutoTrackUserEngagement)
	assert.False(t, cfg.AutoTrackMPShare)
	assert.False(t, cfg.AutoTrackMPFavorite)
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.AuthCookie)
	assert.Equal(t, "WeChatMP", cfg.Platform)

	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingAppID)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CLICKSTREAM_APP_ID", "shop")
	t.Setenv("CLICKSTREAM_ENDPOINT", "https://collect.example.com/collect")
	t.Setenv("CLICKSTREAM_SEND_MODE", "Batch")
	t.Setenv("CLICKSTREAM_SEND_EVENTS_INTERVAL", "2000")
	t.Setenv("CLICKSTREAM_AUTO_TRACK_MP_SHARE", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "shop", cfg.AppID)
	assert.Equal(t, "https://collect.example.com/collect", cfg.Endpoint)
	assert.True(t, cfg.IsBatch())
	assert.Equal(t, 2*time.Second, cfg.BatchInterval())
	assert.True(t, cfg.AutoTrackMPShare)
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clickstream.yaml")
	content := "appid: shop\nendpoint: http://localhost:8686/collect\nsessiontimeoutduration: 60000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CLICKSTREAM_APP_ID", "from-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AppID, "environment wins over the file")
	assert.Equal(t, "http://localhost:8686/collect", cfg.Endpoint)
	assert.Equal(t, time.Minute, cfg.SessionTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.Defaults()
		cfg.AppID = "app"
		cfg.Endpoint = "http://localhost/collect"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		ok     bool
	}{
		{"accepts defaults with app id and endpoint", func(*config.Config) {}, true},
		{"rejects a missing endpoint", func(c *config.Config) { c.Endpoint = "" }, false},
		{"rejects an unknown send mode", func(c *config.Config) { c.SendMode = "Sometimes" }, false},
		{"rejects a zero interval", func(c *config.Config) { c.SendEventsInterval = 0 }, false},
		{"rejects a negative session timeout", func(c *config.Config) { c.SessionTimeoutDuration = -1 }, false},
		{"rejects an unknown log level", func(c *config.Config) { c.LogLevel = "loud" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			if tc.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *config.Config
	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingConfig)
}

func TestApplyMergesOnlySetOptions(t *testing.T) {
	base := config.Defaults()

	next, err := base.Apply(config.Options{
		AppID:           config.Ptr("app"),
		Endpoint:        config.Ptr("http://localhost/collect"),
		AutoTrackAppEnd: config.Ptr(false),
		SendMode:        config.Ptr(config.Batch),
	})
	require.NoError(t, err)

	assert.Equal(t, "app", next.AppID)
	assert.False(t, next.AutoTrackAppEnd)
	assert.True(t, next.AutoTrackAppStart, "unset options keep their value")
	assert.Equal(t, config.Batch, next.SendMode)

	assert.Empty(t, base.AppID, "receiver is not modified")
	assert.True(t, base.AutoTrackAppEnd)

	again, err := next.Apply(config.Options{Debug: config.Ptr(true)})
	require.NoError(t, err)
	assert.True(t, again.Debug)
	assert.Equal(t, "app", again.AppID)
}

func TestApplyRejectsInvalidResult(t *testing.T) {
	base := config.Defaults()

	_, err := base.Apply(config.Options{AppID: config.Ptr("app")})
	assert.ErrorIs(t, err, config.ErrMissingEndpoint)

	_, err = base.Apply(config.Options{
		AppID:    config.Ptr("app"),
		Endpoint: config.Ptr("http://localhost/collect"),
		SendMode: config.Ptr(config.SendMode("Never")),
	})
	assert.Error(t, err)
}
