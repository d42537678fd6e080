package design

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a design document from a YAML or JSON file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read design file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a design document. JSON input is accepted as YAML.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse design: %w", err)
	}

	if doc.Version != 1 {
		return nil, fmt.Errorf("unsupported design version: %d", doc.Version)
	}

	return &doc, nil
}
