package ir

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DecodeWorkflow reads a YAML (or JSON) workflow document. Unknown fields
// are rejected so typos in option names surface as errors instead of being
// silently ignored.
func DecodeWorkflow(r io.Reader) (*Workflow, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var w Workflow
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty workflow document")
		}
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &w, nil
}

// ParseWorkflow is DecodeWorkflow over a byte slice.
func ParseWorkflow(data []byte) (*Workflow, error) {
	return DecodeWorkflow(bytes.NewReader(data))
}

// LoadWorkflow reads and decodes the workflow document at path.
func LoadWorkflow(path string) (*Workflow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workflow: %w", err)
	}
	defer f.Close()

	w, err := DecodeWorkflow(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}
