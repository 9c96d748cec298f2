package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	mcp    bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMCP serves the MCP stdio surface instead of the HTTP API.
func WithMCP(enabled bool) Option {
	return func(a *application) {
		a.mcp = enabled
	}
}
