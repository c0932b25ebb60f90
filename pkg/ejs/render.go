package ejs

import (
	"log/slog"
	"sync"
)

// Version is the template language version implemented by this package.
const Version = "0.1.0"

// Options configure a single Render or Compile call.
type Options struct {
	// Locals are the variables visible to tag code. nil means none.
	// Numeric values of any Go type are seen as float64, so integers
	// beyond 2^53 lose precision.
	Locals map[string]any

	// Cache reuses the template compiled under Filename, compiling and
	// storing it on first use.
	Cache bool

	// Filename is the cache key. It is required when Cache is set.
	Filename string

	// Context is the receiver tag code sees as this.
	Context any

	// Scope is used as the receiver when Context is nil.
	Scope any

	// Debug logs the generated program source at Info level.
	Debug bool
}

func (o Options) receiver() any {
	if o.Context != nil {
		return o.Context
	}
	return o.Scope
}

// Renderer compiles and renders templates against an injected cache.
// All methods are concurrent-safe.
type Renderer struct {
	logger *slog.Logger
	cache  *Cache
	config Config
	mu     sync.RWMutex
}

// NewRenderer creates a Renderer. A nil logger logs through slog.Default, a
// nil cache gets a fresh Cache and a nil config uses DefaultConfig. The first
// renderer given a cache owns it: misses in Cache.Compile build with that
// renderer's logger and config.
func NewRenderer(logger *slog.Logger, cache *Cache, config *Config) *Renderer {
	if cache == nil {
		cache = NewCache()
	}
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	r := &Renderer{logger: logger, cache: cache, config: cfg}
	cache.bind(r)
	return r
}

func (r *Renderer) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

// Cache returns the cache the renderer stores templates in.
func (r *Renderer) Cache() *Cache {
	return r.cache
}

// Config returns the current execution limits.
func (r *Renderer) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// SetConfig replaces the execution limits. Templates compiled earlier keep
// the limits they were built with until the cache is cleared.
func (r *Renderer) SetConfig(config Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = config
}

// Compile parses and builds src without consulting the cache.
func (r *Renderer) Compile(src string, opts Options) (*Template, error) {
	code, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		r.log().Info("Generated template code", "filename", opts.Filename, "code", code)
	}
	return buildTemplate(src, code, r.Config())
}

// Render compiles src, or fetches it from the cache when opts.Cache is set,
// and executes it with opts.Locals and the receiver from opts.Context or
// opts.Scope. Errors from parsing, building and executing are returned
// unchanged.
func (r *Renderer) Render(src string, opts Options) (string, error) {
	t, err := r.template(src, opts)
	if err != nil {
		return "", err
	}
	return t.Execute(opts.Locals, opts.receiver())
}

func (r *Renderer) template(src string, opts Options) (*Template, error) {
	if !opts.Cache {
		return r.Compile(src, opts)
	}
	if opts.Filename == "" {
		return nil, ErrCacheRequiresFilename
	}
	return r.cache.getOrCompile(opts.Filename, func() (*Template, error) {
		return r.Compile(src, opts)
	})
}

// ClearCache discards every template in the renderer's cache.
func (r *Renderer) ClearCache() {
	r.cache.Clear()
	r.log().Debug("Template cache cleared")
}

var defaultRenderer = NewRenderer(nil, nil, nil)

// Default returns the process-wide renderer used by the package-level
// functions.
func Default() *Renderer {
	return defaultRenderer
}

// Render renders src with the default renderer.
func Render(src string, opts Options) (string, error) {
	return defaultRenderer.Render(src, opts)
}

// Compile compiles src with the default renderer, without caching.
func Compile(src string, opts Options) (*Template, error) {
	return defaultRenderer.Compile(src, opts)
}

// ClearCache clears the default renderer's cache.
func ClearCache() {
	defaultRenderer.ClearCache()
}
