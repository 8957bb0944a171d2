// Package config loads portal configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     int    `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBType string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN    string `mapstructure:"DSN"`

	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	SessionAccessTTL  time.Duration `mapstructure:"SESSION_ACCESS_TTL"`
	SessionRefreshTTL time.Duration `mapstructure:"SESSION_REFRESH_TTL"`
	OAuthCodeTTL      time.Duration `mapstructure:"OAUTH_CODE_TTL"`
	OAuthAccessTTL    time.Duration `mapstructure:"OAUTH_ACCESS_TTL"`
	VerificationTTL   time.Duration `mapstructure:"VERIFICATION_TTL"`
	RegistrationTTL   time.Duration `mapstructure:"REGISTRATION_TTL"`
	SkipAutoMigrate   bool          `mapstructure:"SKIP_AUTO_MIGRATE"`
}

func Load() (*Config, error) {
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_TYPE", "sqlite")
	viper.SetDefault("DSN", "portal.db")
	viper.SetDefault("JWT_SECRET", "dev-secret-change-in-production")
	viper.SetDefault("SESSION_ACCESS_TTL", time.Hour)
	viper.SetDefault("SESSION_REFRESH_TTL", 30*24*time.Hour)
	viper.SetDefault("OAUTH_CODE_TTL", 5*time.Minute)
	viper.SetDefault("OAUTH_ACCESS_TTL", time.Hour)
	viper.SetDefault("VERIFICATION_TTL", 10*time.Minute)
	viper.SetDefault("REGISTRATION_TTL", time.Hour)
	viper.SetDefault("SKIP_AUTO_MIGRATE", false)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
