package scraper

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/internal/config"
	"github.com/xkilldash9x/pagedriver/internal/renderer"
)

// DefaultBackend is the renderer used when no backend is configured.
const DefaultBackend = "sim"

// Option configures a Page at construction.
type Option func(*settings)

type settings struct {
	backend  string
	factory  renderer.Factory
	logger   *zap.Logger
	execPath string
	headless bool
	args     []string
	popups   bool
	blocked  []string
}

func defaultSettings() settings {
	return settings{
		backend:  DefaultBackend,
		logger:   zap.NewNop(),
		headless: true,
	}
}

// WithBackend selects a registered renderer backend by name.
func WithBackend(name string) Option {
	return func(s *settings) { s.backend = name }
}

// WithRendererFactory constructs the renderer with f instead of going through
// the process registry. The factory still runs on the page's worker thread.
func WithRendererFactory(f renderer.Factory) Option {
	return func(s *settings) { s.factory = f }
}

// WithLogger sets the parent logger. Page logs are tagged with the instance id.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBrowser passes executable settings to backends that launch a browser.
func WithBrowser(execPath string, headless bool, args ...string) Option {
	return func(s *settings) {
		s.execPath = execPath
		s.headless = headless
		s.args = append([]string(nil), args...)
	}
}

// WithPopups enables capture of pages opened by window.open.
func WithPopups(enabled bool) Option {
	return func(s *settings) { s.popups = enabled }
}

// WithBlockedURLs installs request block patterns on every page opened
// through Open when no page exists yet.
func WithBlockedURLs(patterns ...string) Option {
	return func(s *settings) { s.blocked = append([]string(nil), patterns...) }
}

// FromConfig maps the renderer and page sections of cfg onto options.
func FromConfig(cfg config.Interface) []Option {
	rc := cfg.Renderer()
	pc := cfg.Page()
	opts := []Option{
		WithBrowser(rc.ExecPath, rc.Headless, rc.Args...),
		WithPopups(pc.Popups),
	}
	if rc.Backend != "" {
		opts = append(opts, WithBackend(rc.Backend))
	}
	if len(pc.BlockedURLs) > 0 {
		opts = append(opts, WithBlockedURLs(pc.BlockedURLs...))
	}
	return opts
}
