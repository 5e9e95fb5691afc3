// Package config provides configuration loading for the report pipeline.
// It is decoupled from CLI concerns so the server and tests can load the
// same configuration.
package config

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// StoreConfig holds report store settings.
type StoreConfig struct {
	// Driver selects the store backend: "sqlite" or "postgres".
	Driver string `koanf:"driver"`

	// Path is the SQLite database file (":memory:" for in-memory).
	Path string `koanf:"path"`

	// DSN is the Postgres connection string.
	DSN string `koanf:"dsn"`
}

// PluginsConfig holds plugin registry settings.
type PluginsConfig struct {
	// Dir is the root directory of installed plugins.
	Dir string `koanf:"dir"`

	// Watch enables the development source watcher.
	Watch bool `koanf:"watch"`
}

// WorkerConfig holds the external algorithm worker collaborator settings.
type WorkerConfig struct {
	BaseURL        string `koanf:"base_url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// RenderConfig holds headless render and capture settings.
type RenderConfig struct {
	// BrowserPath overrides the browser executable location. Empty means
	// the default lookup.
	BrowserPath string `koanf:"browser_path"`

	// TimeoutSeconds bounds the render-complete wait per report.
	TimeoutSeconds int `koanf:"timeout_seconds"`

	// MaxSessions caps concurrent headless sessions across reports.
	MaxSessions int `koanf:"max_sessions"`

	// ReportsDir is where captured documents are written.
	ReportsDir string `koanf:"reports_dir"`

	// ViewerDev disables viewer bundle minification.
	ViewerDev bool `koanf:"viewer_dev"`
}

// Config is the full pipeline configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Plugins PluginsConfig `koanf:"plugins"`
	Worker  WorkerConfig  `koanf:"worker"`
	Render  RenderConfig  `koanf:"render"`
}
