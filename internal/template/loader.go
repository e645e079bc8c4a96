package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateDir points to the conventional location for YAML process
// templates when loading from disk.
const DefaultTemplateDir = "templates"

// ParseYAML decodes a process template from YAML/JSON bytes and validates it.
func ParseYAML(data []byte) (ProcessTemplate, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return ProcessTemplate{}, fmt.Errorf("template: payload is empty")
	}
	var def ProcessTemplate
	if err := yaml.Unmarshal(data, &def); err != nil {
		return ProcessTemplate{}, fmt.Errorf("template: decode: %w", err)
	}
	if err := def.Validate(); err != nil {
		return ProcessTemplate{}, err
	}
	return def, nil
}

// LoadReader reads process template data from an io.Reader.
func LoadReader(r io.Reader) (ProcessTemplate, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return ProcessTemplate{}, fmt.Errorf("template: read: %w", err)
	}
	return ParseYAML(content)
}

// LoadFile loads a process template from an explicit file path.
func LoadFile(path string) (ProcessTemplate, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ProcessTemplate{}, fmt.Errorf("template: read %s: %w", path, err)
	}
	def, parseErr := ParseYAML(content)
	if parseErr != nil {
		return ProcessTemplate{}, fmt.Errorf("template: %s: %w", path, parseErr)
	}
	return def, nil
}

// LoadRelative loads a template from the templates directory (or a custom
// baseDir if provided).
func LoadRelative(baseDir, name string) (ProcessTemplate, error) {
	if baseDir == "" {
		baseDir = DefaultTemplateDir
	}
	return LoadFile(filepath.Join(baseDir, name))
}
