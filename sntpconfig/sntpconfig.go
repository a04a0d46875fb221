/*
Copyright (c) Facebook, Inc. and its affiliates.

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

// Package sntpconfig loads the YAML configuration for the example
// cmd/sntpclient driver: the server list, polling parameters and optional
// authentication keys.
package sntpconfig

import (
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// AuthKeyConfig is one symmetric authentication key, keyed by its
// identifier.
type AuthKeyConfig struct {
	ID  uint32 `yaml:"id"`
	Hex string `yaml:"hex"`
}

// Config specifies the example SNTP client's run options.
type Config struct {
	Servers               []string      `yaml:"servers"`
	ResponseTimeout       time.Duration `yaml:"response_timeout"`
	BlockTime             time.Duration `yaml:"block_time"`
	ClockFreqTolerancePPM uint32        `yaml:"clock_freq_tolerance_ppm"`
	DesiredAccuracyMs     uint32        `yaml:"desired_accuracy_ms"`
	MetricsPort           int           `yaml:"metrics_port"`
	CurrentAuthKeyID      uint32        `yaml:"current_auth_key_id"`
	AuthKeys              []AuthKeyConfig `yaml:"auth_keys"`
}

// DefaultConfig returns the parameters the driver falls back to when a
// field is absent from the file, mirroring sptp's ReadConfig defaulting
// pattern.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout:       5 * time.Second,
		BlockTime:             200 * time.Millisecond,
		ClockFreqTolerancePPM: 100,
		DesiredAccuracyMs:     1000,
		MetricsPort:           8099,
	}
}

// ReadConfig reads and parses the YAML configuration file at path.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	return &c, nil
}
