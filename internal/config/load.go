package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadDescriptor reads and parses a single descriptor file.
func LoadDescriptor(path string) (*RawDescriptor, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file: %w", err)
	}
	return parseDescriptor(data)
}

// LoadDescriptorDir reads every *.yaml descriptor in dir, sorted by
// filename so runs are reproducible.
func LoadDescriptorDir(dir string) ([]RawDescriptor, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan descriptor dir %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no descriptors found in %s", dir)
	}
	sort.Strings(matches)

	descriptors := make([]RawDescriptor, 0, len(matches))
	for _, path := range matches {
		d, err := LoadDescriptor(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		descriptors = append(descriptors, *d)
	}
	return descriptors, nil
}

func parseDescriptor(data []byte) (*RawDescriptor, error) {
	var d RawDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &d, nil
}
