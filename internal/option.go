package internal

// Option configures the application before Run wires it together.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
