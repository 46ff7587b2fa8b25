// Package logger builds the zap loggers shared by every component.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Levels is the process-wide level plus overrides for single scopes. An
// empty override inherits Default.
type Levels struct {
	Default string
	Scopes  map[string]string
}

// Loggers hands out loggers that share one core but may log at different
// levels per scope.
type Loggers struct {
	base   *zap.Logger
	root   zapcore.Level
	scopes map[string]zapcore.Level
}

// NewLoggers builds the shared core at the most verbose level requested and
// narrows it per logger. Output is JSON, or console when development is set.
func NewLoggers(levels Levels, development bool) (*Loggers, error) {
	root, err := parseLevel(levels.Default)
	if err != nil {
		return nil, err
	}

	lowest := root
	scopes := make(map[string]zapcore.Level, len(levels.Scopes))
	for scope, name := range levels.Scopes {
		if name == "" {
			continue
		}
		lvl, err := parseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", scope, err)
		}
		scopes[scope] = lvl
		lowest = min(lowest, lvl)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lowest)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return &Loggers{base: base, root: root, scopes: scopes}, nil
}

// Root is the logger for every scope without an override.
func (l *Loggers) Root() *zap.Logger {
	return l.base.WithOptions(zap.IncreaseLevel(l.root))
}

// For returns a logger at scope's level. Callers still tag their lines with
// Scope.
func (l *Loggers) For(scope string) *zap.Logger {
	lvl, ok := l.scopes[scope]
	if !ok {
		lvl = l.root
	}
	return l.base.WithOptions(zap.IncreaseLevel(lvl))
}

// New returns a single logger at level. level is one of debug, info, warn,
// error.
func New(level string, development bool) (*zap.Logger, error) {
	l, err := NewLoggers(Levels{Default: level}, development)
	if err != nil {
		return nil, err
	}
	return l.Root(), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Scope tags log lines with the component that wrote them.
func Scope(name string) zap.Field {
	return zap.String("scope", name)
}
