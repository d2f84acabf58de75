// Package config finds and reads the optional YAML config file.
//
// Flags read their values from the file by dotted key, so the file mirrors the
// flag set:
//
//	addr: ":8081"
//	upstream:
//	  community: https://supremecommunity.com
//	  timeout: 30s
//	ttl:
//	  products: 6s
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "OPENAIO_CONFIG"

// ErrNotFound is returned when no config file exists.
var ErrNotFound = errors.New("config file not found")

// Type is a loaded config file.
type Type struct {
	Source string
	Data   map[string]any
}

// Path resolves the config file location. An explicit path wins, then
// $OPENAIO_CONFIG, then openaio/config.yaml under $XDG_CONFIG_HOME or ~/.config.
func Path(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(EnvVar)} {
		if p == "" {
			continue
		}
		if !isFile(p) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return p, nil
	}

	var candidates []string
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "openaio", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "openaio", "config.yaml"))
	}
	for _, c := range candidates {
		if isFile(c) {
			log.Debugf("using config file: %s", c)
			return c, nil
		}
	}
	return "", ErrNotFound
}

// Load resolves the config file with Path and parses it.
func Load(explicit string) (Type, error) {
	path, err := Path(explicit)
	if err != nil {
		return Type{}, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Type{}, err
	}

	var data map[string]any
	if err := yaml.Unmarshal(b, &data); err != nil {
		return Type{}, fmt.Errorf("parse %s: %w", path, err)
	}

	return Type{Source: path, Data: data}, nil
}

// Keys returns the dotted paths of the leaf values, sorted.
func (c Type) Keys() []string {
	var keys []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(k, sub)
				continue
			}
			keys = append(keys, k)
		}
	}
	walk("", c.Data)
	sort.Strings(keys)
	return keys
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
