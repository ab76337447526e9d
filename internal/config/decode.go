// Package config decodes clockwork configuration files and watches them for changes.
//
// Every format is coerced to JSON first so all of them go through the same
// strict decoder: unknown keys and trailing data are errors.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format names a configuration text format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat accepts "json", "yaml"/"yml" and "toml" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unknown config format %q", s)
	}
}

// FormatFromPath picks the format from the file extension.
// Unknown extensions are treated as TOML, the native clockwork format.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Decode parses data in the given format into out. Keys with no matching
// field in out are an error.
func Decode(data []byte, format Format, out any) error {
	jb, err := coerceToJSONBytes(data, format)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(jb)) == 0 {
		jb = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s config: %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("invalid config: trailing data")
		}
		return err
	}
	return nil
}

// ReadFile reads a config file, rejecting directories and empty paths.
func ReadFile(path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("config path required")
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("config path %q is a directory", path)
	}
	return os.ReadFile(path)
}

// DecodeFile reads path and decodes it using the format implied by its extension.
func DecodeFile(path string, out any) error {
	b, err := ReadFile(path)
	if err != nil {
		return err
	}
	if err := Decode(b, FormatFromPath(path), out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
