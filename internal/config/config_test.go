package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RequiresAPIBaseURL(t *testing.T) {
	os.Unsetenv("API_BASE_URL")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when API_BASE_URL is missing")
	}
}

func TestLoad_WithAPIBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("expected API_BASE_URL to be set, got %s", cfg.APIBaseURL)
	}

	if cfg.KeycloakRealm != "emr-realm" {
		t.Errorf("expected default realm 'emr-realm', got %s", cfg.KeycloakRealm)
	}

	if cfg.KeycloakClientID != "emr-console" {
		t.Errorf("expected default client id 'emr-console', got %s", cfg.KeycloakClientID)
	}

	if cfg.CallbackPort != 8931 {
		t.Errorf("expected default callback port 8931, got %d", cfg.CallbackPort)
	}

	if cfg.RefreshIntervalSecs != 30 {
		t.Errorf("expected default refresh interval 30, got %d", cfg.RefreshIntervalSecs)
	}
}

func TestLoad_DefaultTokenFile(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:8080")
	os.Unsetenv("TOKEN_FILE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".config", "emr-console", "authToken")
	if cfg.TokenFile != want {
		t.Errorf("expected default token file %s, got %s", want, cfg.TokenFile)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestConfig_RedirectURI(t *testing.T) {
	c := &Config{CallbackPort: 8931}
	if got := c.RedirectURI(); got != "http://127.0.0.1:8931/callback" {
		t.Errorf("unexpected redirect URI: %s", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	c := &Config{
		Env:                 "production",
		CallbackPort:        8931,
		RefreshIntervalSecs: 30,
		RefreshMinValidSecs: 30,
	}
	if err := c.Validate(); err == nil {
		t.Error("expected error when KEYCLOAK_URL is missing in production")
	}

	c.KeycloakURL = "http://localhost:8081"
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	c.CallbackPort = 0
	if err := c.Validate(); err == nil {
		t.Error("expected error for invalid callback port")
	}
}
