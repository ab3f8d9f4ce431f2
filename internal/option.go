package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
}

func newApplication(opts ...Option) *application {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigWatch hot-reloads the market policy from the file at path.
func WithConfigWatch(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}
