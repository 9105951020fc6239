package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Collector.SourceURL); err != nil {
		return fmt.Errorf("collector.source_url: %w", err)
	}
	if err := ValidateURL(cfg.Collector.Origin); err != nil {
		return fmt.Errorf("collector.origin: %w", err)
	}
	if strings.TrimSpace(cfg.Collector.ContainerSelector) == "" {
		return fmt.Errorf("collector.container_selector must not be empty")
	}
	if strings.TrimSpace(cfg.Collector.ContainerXPath) == "" {
		return fmt.Errorf("collector.container_xpath must not be empty")
	}
	if cfg.Collector.ScrollPause < 0 {
		return fmt.Errorf("collector.scroll_pause must be >= 0")
	}
	if cfg.Collector.StallThreshold < 1 {
		return fmt.Errorf("collector.stall_threshold must be >= 1, got %d", cfg.Collector.StallThreshold)
	}
	if cfg.Collector.ScrollStep <= 0 {
		return fmt.Errorf("collector.scroll_step must be > 0, got %v", cfg.Collector.ScrollStep)
	}
	if cfg.Collector.MaxCycles < 0 {
		return fmt.Errorf("collector.max_cycles must be >= 0, got %d", cfg.Collector.MaxCycles)
	}

	if cfg.Browser.NavigateTimeout <= 0 {
		return fmt.Errorf("browser.navigate_timeout must be > 0")
	}

	if err := ValidateURL(cfg.Submit.Endpoint); err != nil {
		return fmt.Errorf("submit.endpoint: %w", err)
	}
	if cfg.Submit.Timeout <= 0 {
		return fmt.Errorf("submit.timeout must be > 0")
	}
	switch cfg.Submit.Compression {
	case "none", "gzip", "br":
	default:
		return fmt.Errorf("submit.compression must be none, gzip or br, got %q", cfg.Submit.Compression)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be > 0")
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for sqlite storage")
		}
	case "mongodb":
		if cfg.Storage.MongoURI == "" || cfg.Storage.MongoDatabase == "" || cfg.Storage.MongoCollection == "" {
			return fmt.Errorf("storage.mongo_uri, mongo_database and mongo_collection are required for mongodb storage")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported (valid: sqlite, mongodb)", cfg.Storage.Type)
	}

	switch cfg.AI.Provider {
	case "ollama", "openai", "custom":
	default:
		return fmt.Errorf("ai.provider must be ollama, openai or custom, got %q", cfg.AI.Provider)
	}
	if cfg.AI.BatchSize < 1 {
		return fmt.Errorf("ai.batch_size must be >= 1, got %d", cfg.AI.BatchSize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
