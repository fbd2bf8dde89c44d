package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/paris-agenda/service-promotion/internal/domain"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the GORM postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Configured reports whether a durable store was wired at all.
func (c DatabaseConfig) Configured() bool { return c.Host != "" && c.DBName != "" }

// TierConfig holds one promotional tier's scheduling parameters. Capacities
// are configuration, never hardcoded.
type TierConfig struct {
	Name           string
	Capacity       int
	RetentionHours int
}

// ServiceConfig holds all configuration for the promotion service.
type ServiceConfig struct {
	Port          string
	AppEnv        string
	PublicBaseURL string

	DBConfig      DatabaseConfig
	WebhookSecret string
	AdminAPIKey   string

	DefaultTimezone string
	Location        *time.Location
	Tiers           []TierConfig

	// PackageLinks maps known payment-link ids to package slugs, the
	// fallback when checkout metadata carries no package key.
	PackageLinks map[string]string

	KafkaBrokers []string

	CatalogBaseURL    string
	EngagementBaseURL string
}

// Load reads configuration from the environment and validates it. Missing
// secrets are fatal outside development: without them neither webhook
// authenticity nor admin gating can be guaranteed.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVICE_PORT", ":8084")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8084")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DEFAULT_TIMEZONE", "Europe/Paris")
	v.SetDefault("SPOTLIGHT_CAPACITY", 1)
	v.SetDefault("PROMOTED_CAPACITY", 3)
	v.SetDefault("RETENTION_HOURS", 72)

	cfg := &ServiceConfig{
		Port:          normalizePort(v.GetString("SERVICE_PORT")),
		AppEnv:        v.GetString("APP_ENV"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		DBConfig: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		WebhookSecret:     v.GetString("WEBHOOK_SECRET"),
		AdminAPIKey:       v.GetString("ADMIN_API_KEY"),
		DefaultTimezone:   v.GetString("DEFAULT_TIMEZONE"),
		PackageLinks:      parsePackageLinks(v.GetString("PACKAGE_LINKS")),
		CatalogBaseURL:    strings.TrimRight(v.GetString("CATALOG_BASE_URL"), "/"),
		EngagementBaseURL: strings.TrimRight(v.GetString("ENGAGEMENT_BASE_URL"), "/"),
	}

	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	retention := v.GetInt("RETENTION_HOURS")
	cfg.Tiers = []TierConfig{
		{Name: "spotlight", Capacity: v.GetInt("SPOTLIGHT_CAPACITY"), RetentionHours: retention},
		{Name: "promoted", Capacity: v.GetInt("PROMOTED_CAPACITY"), RetentionHours: retention},
	}

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, domain.NewConfigError("invalid DEFAULT_TIMEZONE %q: %v", cfg.DefaultTimezone, err)
	}
	cfg.Location = loc

	if cfg.AppEnv != "development" {
		if cfg.WebhookSecret == "" {
			return nil, domain.NewConfigError("WEBHOOK_SECRET is required outside development")
		}
		if cfg.AdminAPIKey == "" {
			return nil, domain.NewConfigError("ADMIN_API_KEY is required outside development")
		}
		if !cfg.DBConfig.Configured() {
			return nil, domain.NewConfigError("database configuration is required outside development")
		}
	}

	for _, tier := range cfg.Tiers {
		if tier.Capacity < 1 {
			return nil, domain.NewConfigError("tier %q capacity must be at least 1", tier.Name)
		}
	}

	return cfg, nil
}

// parsePackageLinks parses "plink_abc=spotlight-week,plink_def=promoted-week".
func parsePackageLinks(raw string) map[string]string {
	links := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k != "" && v != "" {
			links[k] = v
		}
	}
	return links
}

func normalizePort(port string) string {
	if port != "" && !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}
