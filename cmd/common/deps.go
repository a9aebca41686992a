// Package common provides shared utilities for command implementations.
package common

import (
	"errors"
	"fmt"

	"github.com/projektkollen/collector/internal/config"
	"github.com/projektkollen/collector/internal/logger"
)

// Version is the build version, overridden at build time via -ldflags.
var Version = "1.0.0"

// Flag values bound by the root command.
var (
	// ConfigPath is the --config flag value.
	ConfigPath string
	// Debug is the --debug flag value.
	Debug bool
)

var (
	// ErrLoggerRequired is returned when CommandDeps.Logger is nil.
	ErrLoggerRequired = errors.New("logger is required")
	// ErrConfigRequired is returned when CommandDeps.Config is nil.
	ErrConfigRequired = errors.New("config is required")
)

// defaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const defaultConfigPath = "config.yml"

// CommandDeps holds common dependencies for all commands.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Logger
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}

// NewCommandDeps loads configuration and creates the logger shared by all
// commands. The --debug flag forces debug-level development logging no
// matter what the config file says.
func NewCommandDeps() (*CommandDeps, error) {
	path := config.GetConfigPath(defaultConfigPath)
	if ConfigPath != "" {
		path = ConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if Debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	deps := &CommandDeps{
		Config: cfg,
		Logger: log,
	}
	if validateErr := deps.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate deps: %w", validateErr)
	}

	return deps, nil
}
