package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, SourceHTTP, cfg.Source.Kind)
	assert.Equal(t, "@every 30s", cfg.Refresh.Schedule)
	assert.Equal(t, 10, cfg.Records.PageSize)
	assert.Equal(t, 12*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 1, cfg.Slips.Workers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LEAVE_SOURCE", "SQL")
	t.Setenv("UPSTREAM_BASE_URL", "http://upstream:5000/")
	t.Setenv("RECORDS_PAGE_SIZE", "25")
	t.Setenv("REFRESH_TIMEOUT", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourceSQL, cfg.Source.Kind)
	assert.Equal(t, "http://upstream:5000", cfg.Source.BaseURL)
	assert.Equal(t, 25, cfg.Records.PageSize)
	assert.Equal(t, 20*time.Second, cfg.Refresh.Timeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoadRejectsNonPositivePageSize(t *testing.T) {
	t.Setenv("RECORDS_PAGE_SIZE", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Records.PageSize)
}
