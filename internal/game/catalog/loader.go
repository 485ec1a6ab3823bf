package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadContentFromBytes strictly decodes a YAML content document. A document may
// carry any mix of the items, monsters, dungeons, skills and events sections.
//
// Precondition: data must be valid YAML.
// Postcondition: Returns the decoded Content, or an error on unknown fields.
func LoadContentFromBytes(data []byte) (Content, error) {
	var content Content
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&content); err != nil && !errors.Is(err, io.EOF) {
		return Content{}, fmt.Errorf("parsing content YAML: %w", err)
	}
	return content, nil
}

// LoadDir reads every *.yaml and *.yml file under dir (recursively, in
// lexicographic order) and builds a Catalog from their merged content.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a validated Catalog or the first error encountered.
func LoadDir(dir string) (*Catalog, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading content dir %q: %w", dir, err)
	}
	sort.Strings(paths)

	var merged Content
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		content, err := LoadContentFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		merged.merge(content)
	}
	return New(merged)
}
