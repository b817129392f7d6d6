package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	// logOut receives JSON logs; stdout unless the command needs it.
	logOut io.Writer
	// out receives command results.
	out io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects structured logs.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithOutput redirects command results printed by the one-shot commands.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}
