// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package precompileconfig

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownConfigKey = errors.New("unknown config key")
	ErrDuplicateKey     = errors.New("duplicate config key")
)

// Factory returns an empty Config for a key, false when the key is unknown.
type Factory func(key string) (Config, bool)

// Load reads a YAML document whose top-level keys are module config keys and
// decodes each section into the Config returned by factory.
func Load(r io.Reader, factory Factory) (map[string]Config, error) {
	var sections map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&sections); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]Config{}, nil
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configs := make(map[string]Config, len(sections))
	for key, node := range sections {
		cfg, ok := factory(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
		}
		if err := node.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if _, dup := configs[cfg.Key()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		configs[cfg.Key()] = cfg
	}
	return configs, nil
}

// LoadFile is Load over the file at path.
func LoadFile(path string, factory Factory) (map[string]Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, factory)
}
