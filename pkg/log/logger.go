/*
Copyright 2024 The Stratus Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log wraps zap so every component in the state authority logs
// through one configured sink.
package log

import (
	"fmt"
	"os"
	"reflect"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names used as the "component" field on scoped loggers.
const (
	Authority  = "authority"
	Reconciler = "reconciler"
	Tracker    = "tracker"
	Leadership = "leadership"
	Journal    = "journal"
	Broker     = "broker"
	Crash      = "crash"
	Entrypoint = "entrypoint"
	Config     = "config"
)

var once sync.Once
var logger *zap.Logger
var config *zap.Config
var aLevel *zap.AtomicLevel

func Logger() *zap.Logger {
	once.Do(func() {
		if logger = zap.L(); isNopLogger(logger) {
			// If a global logger was not installed by an embedder, this process
			// is running standalone: build our own.
			config = createConfig()
			var err error
			logger, err = config.Build()
			if err != nil {
				fmt.Fprintf(os.Stderr, "logging disabled, logger init failed: %v\n", err)
				logger = zap.NewNop()
			}
		}
	})
	return logger
}

// Log returns a logger scoped to the named component.
func Log(component string) *zap.Logger {
	return Logger().With(zap.String("component", component))
}

// InitializeLogger lets an embedder supply its own configured zap logger
// before the first call to Logger().
func InitializeLogger(l *zap.Logger, zapConfig *zap.Config) {
	logger = l
	config = zapConfig
	once.Do(func() {})
}

func IsDebugEnabled() bool {
	if logger == nil {
		return true
	}
	return logger.Core().Enabled(zapcore.DebugLevel)
}

// Returns true if the logger is a noop, meaning no global logger has been
// installed via zap.ReplaceGlobals by an embedder.
func isNopLogger(logger *zap.Logger) bool {
	return reflect.DeepEqual(zap.NewNop(), logger)
}

// Visible by tests.
func InitAndSetLevel(level zapcore.Level) {
	if config == nil {
		Logger()
	}
	config.Level.SetLevel(level)
}

func GetAtomicLevel() *zap.AtomicLevel {
	return aLevel
}

// createConfig builds a console encoder writing to stderr at info level by
// default; set STRATUS_LOG_FORMAT=json to switch to structured JSON output.
func createConfig() *zap.Config {
	atomicLevel := zap.NewAtomicLevelAt(zap.InfoLevel)
	aLevel = &atomicLevel

	encoding := "console"
	if os.Getenv("STRATUS_LOG_FORMAT") == "json" {
		encoding = "json"
	}

	return &zap.Config{
		Level:       atomicLevel,
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			LevelKey:      "level",
			TimeKey:       "time",
			NameKey:       "name",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			LineEnding:    zapcore.DefaultLineEnding,
			// note: https://godoc.org/go.uber.org/zap/zapcore#EncoderConfig
			// only EncodeName is optional, all others must be set
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
