package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for markbook.
type Config struct {
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Browser   BrowserConfig   `mapstructure:"browser"   yaml:"browser"`
	Submit    SubmitConfig    `mapstructure:"submit"    yaml:"submit"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	AI        AIConfig        `mapstructure:"ai"        yaml:"ai"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// CollectorConfig controls the scroll-and-extract loop.
type CollectorConfig struct {
	SourceURL         string        `mapstructure:"source_url"         yaml:"source_url"`
	Origin            string        `mapstructure:"origin"             yaml:"origin"`
	ContainerSelector string        `mapstructure:"container_selector" yaml:"container_selector"`
	ContainerXPath    string        `mapstructure:"container_xpath"    yaml:"container_xpath"`
	ScrollPause       time.Duration `mapstructure:"scroll_pause"       yaml:"scroll_pause"`
	StallThreshold    int           `mapstructure:"stall_threshold"    yaml:"stall_threshold"`
	ScrollStep        float64       `mapstructure:"scroll_step"        yaml:"scroll_step"`
	MaxCycles         int           `mapstructure:"max_cycles"         yaml:"max_cycles"` // 0 = unbounded
}

// BrowserConfig controls how the Chromium page is obtained.
type BrowserConfig struct {
	ControlURL      string        `mapstructure:"control_url"      yaml:"control_url"`
	Headless        bool          `mapstructure:"headless"         yaml:"headless"`
	Bin             string        `mapstructure:"bin"              yaml:"bin"`
	UserDataDir     string        `mapstructure:"user_data_dir"    yaml:"user_data_dir"`
	WindowSize      string        `mapstructure:"window_size"      yaml:"window_size"`
	Stealth         bool          `mapstructure:"stealth"          yaml:"stealth"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
}

// SubmitConfig controls delivery to the collector endpoint.
type SubmitConfig struct {
	Endpoint    string        `mapstructure:"endpoint"    yaml:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
	Compression string        `mapstructure:"compression" yaml:"compression"`
}

// ServerConfig controls the collector endpoint server.
type ServerConfig struct {
	Port        int    `mapstructure:"port"         yaml:"port"`
	MaxBodySize int64  `mapstructure:"max_body_size" yaml:"max_body_size"`
	AllowOrigin string `mapstructure:"allow_origin" yaml:"allow_origin"`
}

// StorageConfig controls where the collector server persists bookmarks.
type StorageConfig struct {
	Type            string `mapstructure:"type"             yaml:"type"`
	SQLitePath      string `mapstructure:"sqlite_path"      yaml:"sqlite_path"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// AIConfig controls LLM categorization.
type AIConfig struct {
	Provider      string        `mapstructure:"provider"       yaml:"provider"`
	Model         string        `mapstructure:"model"          yaml:"model"`
	Endpoint      string        `mapstructure:"endpoint"       yaml:"endpoint"`
	APIKey        string        `mapstructure:"api_key"        yaml:"api_key"`
	BatchSize     int           `mapstructure:"batch_size"     yaml:"batch_size"`
	BatchInterval time.Duration `mapstructure:"batch_interval" yaml:"batch_interval"`
	Limit         int           `mapstructure:"limit"          yaml:"limit"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus text endpoint on the server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			SourceURL:         "https://x.com/i/bookmarks",
			Origin:            "https://x.com",
			ContainerSelector: "article",
			ContainerXPath:    "//article",
			ScrollPause:       2 * time.Second,
			StallThreshold:    5,
			ScrollStep:        2,
		},
		Browser: BrowserConfig{
			Headless:        false,
			WindowSize:      "1280,1600",
			NavigateTimeout: 60 * time.Second,
		},
		Submit: SubmitConfig{
			Endpoint:    "http://localhost:7799/api/bookmarks",
			Timeout:     60 * time.Second,
			Compression: "none",
		},
		Server: ServerConfig{
			Port:        7799,
			MaxBodySize: 64 * 1024 * 1024, // 64MB
			AllowOrigin: "*",
		},
		Storage: StorageConfig{
			Type:            "sqlite",
			SQLitePath:      "./db/markbook.db",
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "markbook",
			MongoCollection: "bookmarks",
		},
		AI: AIConfig{
			Provider:      "ollama",
			Model:         "llama3",
			Endpoint:      "http://localhost:11434",
			BatchSize:     20,
			BatchInterval: 500 * time.Millisecond,
			Limit:         500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
