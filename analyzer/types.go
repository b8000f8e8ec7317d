// Package analyzer runs the full skill analysis pipeline and turns findings
// into linked, deduplicated and scored risks.
package analyzer

import (
	"time"

	"go.uber.org/zap"

	"github.com/FeiyouG/skill-lab-sub000/config"
	"github.com/FeiyouG/skill-lab-sub000/matcher"
)

// Analyzer analyzes skill packages. It is safe for concurrent use when its
// cache is shared deliberately.
type Analyzer struct {
	cfg   config.Config
	log   *zap.Logger
	cache *matcher.Cache
	now   func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithConfig sets the resolved configuration.
func WithConfig(cfg config.Config) Option {
	return func(a *Analyzer) {
		a.cfg = cfg.Clone()
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *Analyzer) {
		if log != nil {
			a.log = log
		}
	}
}

// WithCache shares a parse cache across runs. A nil cache disables
// memoization.
func WithCache(c *matcher.Cache) Option {
	return func(a *Analyzer) {
		a.cache = c
	}
}

// WithClock overrides the time source used for run durations.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an analyzer with the built-in configuration and a private
// parse cache.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:   config.Default(),
		log:   zap.NewNop(),
		cache: matcher.NewCache(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns a copy of the analyzer's configuration.
func (a *Analyzer) Config() config.Config {
	return a.cfg.Clone()
}
