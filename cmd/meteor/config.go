// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/istorrs/meteor/ftp"
	"github.com/istorrs/meteor/push"
	"github.com/istorrs/meteor/stacker"
)

// appConfig is the top-level YAML configuration file decoded at startup: it
// groups the detection engine's configuration, the stacker's parameters and
// the push client's endpoint settings under one file.
type appConfig struct {
	Detect  ftp.Config     `yaml:"detect"`
	Stacker stacker.Config `yaml:"stacker"`
	Push    push.Config    `yaml:"push"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Detect:  ftp.DefaultConfig(),
		Stacker: stacker.DefaultConfig(),
		Push:    push.DefaultConfig(),
	}
}

// loadConfig decodes path as YAML over the built-in defaults; a missing file
// is not an error, matching go-lepton's cmd/lepton/main.go behavior of
// proceeding with defaults when its own JSON config is absent.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.Detect = cfg.Detect.WithDefaults()
	cfg.Stacker = cfg.Stacker.WithDefaults()
	cfg.Push = cfg.Push.WithDefaults()
	return cfg, nil
}
