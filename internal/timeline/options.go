package timeline

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/cbegin/chordcraft-go/internal/dsl"
)

type Option func(*modelConfig)

type modelConfig struct {
	newID  func() string
	logger *slog.Logger
	dsl    dsl.Config
}

func defaultModelConfig() modelConfig {
	return modelConfig{
		newID:  uuid.NewString,
		logger: slog.Default(),
		dsl:    dsl.DefaultConfig(),
	}
}

// WithIDGenerator replaces the uuid generator used for new notes and tracks.
func WithIDGenerator(fn func() string) Option {
	return func(cfg *modelConfig) {
		if fn != nil {
			cfg.newID = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *modelConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

func WithDSLConfig(c dsl.Config) Option {
	return func(cfg *modelConfig) {
		cfg.dsl = c
	}
}
