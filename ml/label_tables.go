package ml

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

//go:embed labels.yaml
var labelsAsset []byte

var ErrMissingFallback = errors.New("label table missing fallback class")

// DefaultFallback is the class absorbing values never seen during training.
const DefaultFallback = "nan"

type labelAsset struct {
	Version  string `yaml:"version"`
	Fallback string `yaml:"fallback"`
	Fields   []struct {
		Name    string   `yaml:"name"`
		Classes []string `yaml:"classes"`
	} `yaml:"fields"`
}

// LabelTables is the immutable set of per-field encoders shared by every
// front-end.
type LabelTables struct {
	version       string
	fallbackClass string
	tables        map[string]*LabelEncoder
	fallbackCodes map[string]int
}

// BuildLabelTables parses the embedded label asset.
func BuildLabelTables() (*LabelTables, error) {
	return ParseLabelTables(labelsAsset)
}

// LoadLabelTables reads a label asset from disk.
func LoadLabelTables(path string) (*LabelTables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label tables: %w", err)
	}
	return ParseLabelTables(data)
}

// OpenLabelTables loads path when set and the embedded asset otherwise.
func OpenLabelTables(path string) (*LabelTables, error) {
	if path == "" {
		return BuildLabelTables()
	}
	return LoadLabelTables(path)
}

func ParseLabelTables(data []byte) (*LabelTables, error) {
	var asset labelAsset
	if err := yaml.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("parse label tables: %w", err)
	}
	fallback := asset.Fallback
	if fallback == "" {
		fallback = DefaultFallback
	}

	lt := &LabelTables{
		version:       asset.Version,
		fallbackClass: fallback,
		tables:        make(map[string]*LabelEncoder, len(asset.Fields)),
		fallbackCodes: make(map[string]int, len(asset.Fields)),
	}
	for _, field := range asset.Fields {
		if field.Name == "" {
			return nil, errors.New("label table without field name")
		}
		if _, dup := lt.tables[field.Name]; dup {
			return nil, fmt.Errorf("duplicate label table for %s", field.Name)
		}
		enc, err := FitLabelEncoder(field.Classes)
		if err != nil {
			return nil, fmt.Errorf("label table %s: %w", field.Name, err)
		}
		code, ok := enc.Transform(fallback)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %q", ErrMissingFallback, field.Name, fallback)
		}
		lt.tables[field.Name] = enc
		lt.fallbackCodes[field.Name] = code
	}
	for _, name := range CategoricalFields() {
		if _, ok := lt.tables[name]; !ok {
			return nil, fmt.Errorf("no label table for categorical field %s", name)
		}
	}
	return lt, nil
}

func (lt *LabelTables) Version() string {
	return lt.version
}

// Fallback returns the class literal used for unseen values.
func (lt *LabelTables) Fallback() string {
	return lt.fallbackClass
}

// Table returns the encoder for a field.
func (lt *LabelTables) Table(field string) (*LabelEncoder, bool) {
	enc, ok := lt.tables[field]
	return enc, ok
}

// FallbackCode returns the code of the fallback class for a field.
func (lt *LabelTables) FallbackCode(field string) (int, bool) {
	code, ok := lt.fallbackCodes[field]
	return code, ok
}

// Fields returns the names of every field with a table, sorted.
func (lt *LabelTables) Fields() []string {
	names := make([]string, 0, len(lt.tables))
	for name := range lt.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every class list keyed by field.
func (lt *LabelTables) Snapshot() map[string][]string {
	out := make(map[string][]string, len(lt.tables))
	for name, enc := range lt.tables {
		out[name] = enc.Classes()
	}
	return out
}
