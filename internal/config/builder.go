package config

import (
	"errors"
	"fmt"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"

	"github.com/eugenetaranov/cloudbuilder/internal/logger"
)

// Option configures Load.
type Option func(*builder)

// WithLogger sets the logger used to report how the project file was found.
func WithLogger(l *logger.Logger) Option {
	return func(b *builder) {
		b.log = l
	}
}

// WithEnvironment replaces the process environment, mainly for tests.
func WithEnvironment(environ map[string]string) Option {
	return func(b *builder) {
		b.environ = environ
	}
}

type builder struct {
	log     *logger.Logger
	environ map[string]string

	// configs are ordered by priority, highest first.
	configs []*Config
	env     *Config
	err     error
}

func newBuilder(opts ...Option) *builder {
	b := &builder{
		log:     logger.Nop(),
		configs: make([]*Config, 0, 3),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *builder) build() (*Config, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error building config: %w", b.err)
	}

	cfg := new(Config)
	for _, layer := range b.configs {
		if err := mergo.Merge(cfg, layer); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}
	return cfg, nil
}

func (b *builder) withFlags(flags Config) *builder {
	b.configs = append(b.configs, &flags)
	return b
}

// withProject adds the project file layer. Its location comes from the
// flags or, failing that, from PROJECT_PATH in the environment.
func (b *builder) withProject() *builder {
	dir := ""
	for _, cfg := range b.configs {
		if cfg.ProjectPath != "" {
			dir = cfg.ProjectPath
			break
		}
	}
	if dir == "" {
		if envCfg, err := b.parseEnv(); err == nil {
			dir = envCfg.ProjectPath
		}
	}

	project, err := loadProject(dir, b.log)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	if project != nil {
		b.configs = append(b.configs, project)
	}
	return b
}

func (b *builder) withEnv() *builder {
	envCfg, err := b.parseEnv()
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	b.configs = append(b.configs, envCfg)
	return b
}

func (b *builder) parseEnv() (*Config, error) {
	if b.env != nil {
		return b.env, nil
	}

	cfg := &Config{}
	opts := env.Options{}
	if b.environ != nil {
		opts.Environment = b.environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}
	b.env = cfg
	return cfg, nil
}
