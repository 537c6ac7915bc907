package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile reads a catalog from a YAML (.yaml, .yml) or TOML (.toml) file.
// The file replaces the default catalog entirely.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(data)
	case ".toml":
		var f catalogFile
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("parse catalog TOML: %w", err)
		}
		return New(f.Entries)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// LoadOrDefault loads the catalog at path, or the built-in one when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}
