package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                  string `mapstructure:"ENV"`
	APIBaseURL           string `mapstructure:"API_BASE_URL"`
	KeycloakURL          string `mapstructure:"KEYCLOAK_URL"`
	KeycloakRealm        string `mapstructure:"KEYCLOAK_REALM"`
	KeycloakClientID     string `mapstructure:"KEYCLOAK_CLIENT_ID"`
	CallbackPort         int    `mapstructure:"CALLBACK_PORT"`
	TokenFile            string `mapstructure:"TOKEN_FILE"`
	HTTPTimeoutSeconds   int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	RefreshIntervalSecs  int    `mapstructure:"REFRESH_INTERVAL_SECONDS"`
	RefreshMinValidSecs  int    `mapstructure:"REFRESH_MIN_VALIDITY_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("KEYCLOAK_REALM", "emr-realm")
	v.SetDefault("KEYCLOAK_CLIENT_ID", "emr-console")
	v.SetDefault("CALLBACK_PORT", 8931)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 15)
	v.SetDefault("REFRESH_INTERVAL_SECONDS", 30)
	v.SetDefault("REFRESH_MIN_VALIDITY_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("API_BASE_URL")
	v.BindEnv("KEYCLOAK_URL")
	v.BindEnv("KEYCLOAK_REALM")
	v.BindEnv("KEYCLOAK_CLIENT_ID")
	v.BindEnv("CALLBACK_PORT")
	v.BindEnv("TOKEN_FILE")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")
	v.BindEnv("REFRESH_INTERVAL_SECONDS")
	v.BindEnv("REFRESH_MIN_VALIDITY_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	if cfg.TokenFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for TOKEN_FILE: %w", err)
		}
		cfg.TokenFile = filepath.Join(home, ".config", "emr-console", "authToken")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// RedirectURI is the loopback address the identity provider sends the
// browser back to after an interactive login.
func (c *Config) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", c.CallbackPort)
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSecs) * time.Second
}

func (c *Config) RefreshMinValidity() time.Duration {
	return time.Duration(c.RefreshMinValidSecs) * time.Second
}

// Validate checks that the configuration is usable. KEYCLOAK_URL is required
// outside of development so a console never runs against a real API without
// real authentication; CALLBACK_PORT must be a valid TCP port.
func (c *Config) Validate() error {
	if !c.IsDev() && c.KeycloakURL == "" {
		return fmt.Errorf("KEYCLOAK_URL must be set when ENV=%q", c.Env)
	}
	if c.CallbackPort <= 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("CALLBACK_PORT must be between 1 and 65535, got %d", c.CallbackPort)
	}
	if c.RefreshIntervalSecs <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL_SECONDS must be positive, got %d", c.RefreshIntervalSecs)
	}
	if c.RefreshMinValidSecs <= 0 {
		return fmt.Errorf("REFRESH_MIN_VALIDITY_SECONDS must be positive, got %d", c.RefreshMinValidSecs)
	}
	return nil
}
