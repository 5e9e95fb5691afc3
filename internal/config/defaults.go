package config

// Defaults returns the built-in configuration values. They are loaded first
// and overridden by the config file, then by environment variables.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":            3000,
		"store.driver":           "sqlite",
		"store.path":             ".veristat/state.db",
		"store.dsn":              "",
		"plugins.dir":            "plugins",
		"plugins.watch":          false,
		"worker.base_url":        "http://localhost:8675",
		"worker.timeout_seconds": 10,
		"render.browser_path":    "",
		"render.timeout_seconds": 60,
		"render.max_sessions":    2,
		"render.reports_dir":     "reports",
		"render.viewer_dev":      false,
	}
}
