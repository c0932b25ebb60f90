package ejs

// Config holds the execution limits applied to every compiled template.
type Config struct {
	// MaxLoopIterations bounds the total number of loop iterations a single
	// render may perform. Zero or less disables the limit.
	MaxLoopIterations int `json:"max_loop_iterations"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() Config {
	return Config{
		MaxLoopIterations: 1_000_000,
	}
}
