// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// cliConfig mirrors ~/.docchat/config.yaml. All fields are optional;
// zero values fall back to built-in defaults and flags override both.
type cliConfig struct {
	// Server is the base URL of the docchat service.
	Server string `yaml:"server"`

	// TopK is the default number of sources requested per question.
	TopK int `yaml:"top_k"`

	// LogDir enables file logging for the CLI when set.
	LogDir string `yaml:"log_dir"`
}

const defaultServerURL = "http://localhost:12230"

// loadCLIConfig reads the config file at path, or the default
// ~/.docchat/config.yaml when path is empty. A missing default file is
// not an error; an explicitly requested file must exist.
func loadCLIConfig(path string) (cliConfig, error) {
	cfg := cliConfig{Server: defaultServerURL}

	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, ".docchat", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Server == "" {
		cfg.Server = defaultServerURL
	}
	return cfg, nil
}
