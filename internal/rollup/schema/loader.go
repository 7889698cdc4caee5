package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type definitionFile struct {
	SourceTypes []Spec `yaml:"source_types"`
}

// ParseDefinitions decodes YAML source type definitions:
//
//	source_types:
//	  - name: patching
//	    identity: [org_unit, {name: host, source: hostname}]
//	    header: [{name: owner, required: true}, {name: patched_on, kind: date}]
//	    item: {key: kb_id, fields: [title]}
//	    category: {name: classification}
func ParseDefinitions(r io.Reader) ([]Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var def definitionFile
	if err := dec.Decode(&def); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode source type definitions: %w", err)
	}
	for _, spec := range def.SourceTypes {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	return def.SourceTypes, nil
}

// RegisterFile loads definitions from path into r and returns how many were added.
func RegisterFile(r *Registry, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read source type definitions: %w", err)
	}
	specs, err := ParseDefinitions(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for _, spec := range specs {
		if err := r.RegisterSpec(spec); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}
	return len(specs), nil
}
