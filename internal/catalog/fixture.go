package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type fixtureFile struct {
	Products []map[string]any `yaml:"products"`
}

// MemoryStore serves products from an in-memory map, typically loaded from a YAML fixture.
type MemoryStore struct {
	records map[string]map[string]any
}

// LoadFixture reads a YAML fixture file of the form:
//
//	products:
//	  - id: poster-1
//	    title: Monsoon Skyline
//	    price: 499
func LoadFixture(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open fixture: %w", err)
	}
	defer f.Close()
	return ParseFixture(f)
}

// ParseFixture decodes fixture YAML from r.
func ParseFixture(r io.Reader) (*MemoryStore, error) {
	var file fixtureFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("catalog: decode fixture: %w", err)
	}

	records := make(map[string]map[string]any, len(file.Products))
	for i, raw := range file.Products {
		id, _ := raw["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("catalog: fixture product %d has no id", i)
		}
		if _, dup := records[id]; dup {
			return nil, fmt.Errorf("catalog: duplicate fixture product %q", id)
		}
		fields := make(map[string]any, len(raw))
		for k, v := range raw {
			if k != "id" {
				fields[k] = v
			}
		}
		records[id] = fields
	}
	return &MemoryStore{records: records}, nil
}

// NewMemoryStore builds a store from raw document fields keyed by id.
func NewMemoryStore(records map[string]map[string]any) *MemoryStore {
	if records == nil {
		records = map[string]map[string]any{}
	}
	return &MemoryStore{records: records}
}

// GetProduct implements Store.
func (s *MemoryStore) GetProduct(ctx context.Context, id string) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	fields, ok := s.records[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return ProductFromFields(id, fields), nil
}

// Records returns the raw documents sorted by id, for seeding a real store.
func (s *MemoryStore) Records() []Record {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, Record{ID: id, Fields: s.records[id]})
	}
	return out
}

// Record is a raw product document.
type Record struct {
	ID     string
	Fields map[string]any
}
