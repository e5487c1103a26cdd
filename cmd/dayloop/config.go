package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dayloop/dayloop-go/pkg/oidc"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider     oidc.Config `yaml:"provider"`
	BackendURL   string      `yaml:"backend_url" validate:"required,url"`
	SessionCache string      `yaml:"session_cache"`
}

func defaultConfigPath() string {
	if path := os.Getenv("DAYLOOP_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "dayloop.yaml"
	}
	return filepath.Join(home, ".config", "dayloop", "config.yaml")
}

func loadConfig() (*Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(content))

	config := new(Config)
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	if config.Provider.Issuer == "" {
		config.Provider.Issuer = "https://accounts.google.com"
	}
	if len(config.Provider.Scopes) == 0 {
		config.Provider.Scopes = []string{
			"openid", "email",
			"https://www.googleapis.com/auth/calendar.events",
		}
	}
	if config.SessionCache == "" {
		config.SessionCache = filepath.Join(filepath.Dir(path), "session")
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}
