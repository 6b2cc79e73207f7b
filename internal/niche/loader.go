package niche

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Load reads and validates one niche YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Violations: []string{fmt.Sprintf("read file: %v", err)}}
	}
	return Parse(path, data)
}

// Parse validates niche YAML already in memory. path is only used in error messages.
func Parse(path string, data []byte) (*Registry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{Path: path, Violations: []string{"empty configuration file"}}
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Path: path, Violations: []string{fmt.Sprintf("invalid YAML syntax: %v", err)}}
	}
	violations, warnings := validateFile(&f)
	if len(violations) > 0 {
		return nil, &ConfigError{Path: path, Violations: violations}
	}
	return newRegistry(&f, warnings), nil
}

// LoadDir loads every *.yaml and *.yml file in dir, keyed by niche id.
// All files are validated; the returned error joins every ConfigError.
func LoadDir(dir string) (map[string]*Registry, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, m...)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, &ConfigError{Path: dir, Violations: []string{"no niche files found"}}
	}

	out := make(map[string]*Registry, len(files))
	var errs []error
	for _, file := range files {
		reg, err := Load(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := out[reg.ID()]; dup {
			errs = append(errs, &ConfigError{Path: file, Violations: []string{
				fmt.Sprintf("niche id %q already defined (%s)", reg.ID(), prev.Metadata().Name),
			}})
			continue
		}
		out[reg.ID()] = reg
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// LoadPath accepts either a single file or a directory of niche files.
func LoadPath(path string) (map[string]*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Violations: []string{err.Error()}}
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	reg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return map[string]*Registry{reg.ID(): reg}, nil
}
