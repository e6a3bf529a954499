// Package studyfile decodes study bundles supplied as JSON or YAML documents.
package studyfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// ErrEmpty is returned for a document with no content.
var ErrEmpty = errors.New("study document is empty")

// Decode parses a study bundle. Documents starting with '{' are read as
// JSON, everything else as YAML. Unknown fields are rejected in both
// formats and the result is validated.
func Decode(data []byte) (*domain.StudyInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}

	var input domain.StudyInput
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&input); err != nil {
			return nil, fmt.Errorf("failed to decode JSON study: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		if err := dec.Decode(&input); err != nil {
			return nil, fmt.Errorf("failed to decode YAML study: %w", err)
		}
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}
	return &input, nil
}

// Load reads and decodes the study bundle at path.
func Load(path string) (*domain.StudyInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study file: %w", err)
	}
	input, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return input, nil
}

// Encode renders input as indented JSON, the format Decode reads back.
func Encode(input *domain.StudyInput) ([]byte, error) {
	return json.MarshalIndent(input, "", "  ")
}
