// Package schema serves the static reference catalog describing the
// measurement table to query-building callers.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var catalogYAML []byte

// Column describes one queryable column.
type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
}

// ExampleQuery is a ready-to-run query for caller tooling.
type ExampleQuery struct {
	Name  string `yaml:"name" json:"name"`
	Query string `yaml:"query" json:"query"`
}

// TableSchema is the full reference catalog. It is read-only and loaded
// once per process.
type TableSchema struct {
	Table          string         `yaml:"table" json:"table"`
	Columns        []Column       `yaml:"columns" json:"columns"`
	ExampleQueries []ExampleQuery `yaml:"example_queries" json:"example_queries"`
}

var (
	once    sync.Once
	catalog *TableSchema
	loadErr error
)

// Load parses the embedded catalog on first call and returns the same
// instance afterwards.
func Load() (*TableSchema, error) {
	once.Do(func() {
		var ts TableSchema
		if err := yaml.Unmarshal(catalogYAML, &ts); err != nil {
			loadErr = fmt.Errorf("parse schema catalog: %w", err)
			return
		}
		catalog = &ts
	})
	return catalog, loadErr
}
