package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paris-agenda/service-promotion/internal/config"
	"github.com/paris-agenda/service-promotion/internal/domain"
)

func TestLoad_DevelopmentDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8084", cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "Europe/Paris", cfg.DefaultTimezone)
	require.NotNil(t, cfg.Location)

	require.Len(t, cfg.Tiers, 2)
	byName := map[string]config.TierConfig{}
	for _, tier := range cfg.Tiers {
		byName[tier.Name] = tier
	}
	assert.Equal(t, 1, byName["spotlight"].Capacity)
	assert.Equal(t, 3, byName["promoted"].Capacity)
	assert.Equal(t, 72, byName["spotlight"].RetentionHours)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVICE_PORT", "9090")
	t.Setenv("SPOTLIGHT_CAPACITY", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PUBLIC_BASE_URL", "https://parisagenda.example/")
	t.Setenv("PACKAGE_LINKS", "plink_abc=spotlight-week, plink_def=promoted-week")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 2, cfg.Tiers[0].Capacity)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "https://parisagenda.example", cfg.PublicBaseURL)
	assert.Equal(t, map[string]string{
		"plink_abc": "spotlight-week",
		"plink_def": "promoted-week",
	}, cfg.PackageLinks)
}

func TestLoad_FailsFastOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("ADMIN_API_KEY", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, domain.CodeConfig, domain.CodeOf(err))

	t.Setenv("WEBHOOK_SECRET", "whsec_x")
	t.Setenv("ADMIN_API_KEY", "key_x")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_NAME", "promotion")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.DBConfig.Configured())
	assert.Contains(t, cfg.DBConfig.DSN(), "dbname=promotion")
}

func TestLoad_RejectsBadTimezoneAndCapacity(t *testing.T) {
	t.Setenv("DEFAULT_TIMEZONE", "Mars/Olympus")
	_, err := config.Load()
	assert.Equal(t, domain.CodeConfig, domain.CodeOf(err))

	t.Setenv("DEFAULT_TIMEZONE", "Europe/Paris")
	t.Setenv("PROMOTED_CAPACITY", "0")
	_, err = config.Load()
	assert.Equal(t, domain.CodeConfig, domain.CodeOf(err))
}
