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

// Package config loads and validates the §6 "Configuration recognized"
// block. Grounded on the teacher's pkg/common/configs package: strict YAML
// decoding via gopkg.in/yaml.v3 with unknown-field rejection, and a
// dedicated Validate pass independent of decoding.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/stratus-sched/stratus/pkg/log"
)

// LeaderElectionBackend names the coordinator implementation backing
// leader election (§6 "leader-election-backend: enum{coordinator}").
type LeaderElectionBackend string

const (
	// BackendCoordinator is the only recognized leader-election-backend
	// value (§6); it is realized by pkg/leadership/raftlease.
	BackendCoordinator LeaderElectionBackend = "coordinator"
)

// Defaults mirror §6 and §4.5.
const (
	DefaultRefuseOfferSeconds   = 5.0
	DefaultCommandQueueCapacity = 1024
	DefaultZKTimeoutMS          = 5000
)

// Config is the §6 "Configuration recognized" block.
type Config struct {
	HighlyAvailable      bool                  `yaml:"highly-available"`
	LeaderElectionBackend LeaderElectionBackend `yaml:"leader-election-backend,omitempty"`
	ZKTimeoutMS          int                   `yaml:"zk-timeout-ms,omitempty"`
	CommandQueueCapacity int                   `yaml:"command-queue-capacity,omitempty"`
	RefuseOfferSeconds   float64               `yaml:"refuse-offer-seconds,omitempty"`
	MinBrokerVersion     string                `yaml:"min-broker-version,omitempty"`
}

// applyDefaults fills in the §6/§4.5 defaults for any zero-valued field.
func (c *Config) applyDefaults() {
	if c.RefuseOfferSeconds == 0 {
		c.RefuseOfferSeconds = DefaultRefuseOfferSeconds
	}
	if c.CommandQueueCapacity == 0 {
		c.CommandQueueCapacity = DefaultCommandQueueCapacity
	}
	if c.ZKTimeoutMS == 0 {
		c.ZKTimeoutMS = DefaultZKTimeoutMS
	}
	if c.HighlyAvailable && c.LeaderElectionBackend == "" {
		c.LeaderElectionBackend = BackendCoordinator
	}
}

// Validate rejects configurations that cannot be wired, independent of the
// decoding step (mirrors the teacher's ParseAndValidateConfig/Validate
// split).
func (c *Config) Validate() error {
	if c.HighlyAvailable && c.LeaderElectionBackend != BackendCoordinator {
		return fmt.Errorf("config: highly-available requires leader-election-backend=%q, got %q", BackendCoordinator, c.LeaderElectionBackend)
	}
	if c.CommandQueueCapacity <= 0 {
		return errors.New("config: command-queue-capacity must be positive")
	}
	if c.RefuseOfferSeconds < 0 {
		return errors.New("config: refuse-offer-seconds must not be negative")
	}
	if c.ZKTimeoutMS <= 0 {
		return errors.New("config: zk-timeout-ms must be positive")
	}
	return nil
}

// ParseAndValidate decodes content as strict YAML (unknown keys rejected),
// applies defaults and validates the result.
func ParseAndValidate(content []byte) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		log.Log(log.Config).Error("failed to parse configuration", zap.Error(err))
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		log.Log(log.Config).Error("configuration validation failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseAndValidate(content)
}
