package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML representation of a model.
//
//	entities:
//	  - name: Character
//	    identity: identifier
//	    attributes:
//	      - {name: identifier, type: string, keyPath: id}
//	      - {name: realName, type: string, keyPath: real_name}
//	    relationships:
//	      - {name: publisher, destination: Publisher, inverse: characters, keyPath: publisher}
type File struct {
	Entities []EntityFile `yaml:"entities"`
}

// EntityFile is the YAML form of an [Entity].
type EntityFile struct {
	Name                  string             `yaml:"name"`
	Parent                string             `yaml:"parent,omitempty"`
	Abstract              bool               `yaml:"abstract,omitempty"`
	Identity              names              `yaml:"identity,omitempty"`
	EntityMapper          string             `yaml:"entityMapper,omitempty"`
	DictionaryTransformer string             `yaml:"dictionaryTransformer,omitempty"`
	Attributes            []AttributeFile    `yaml:"attributes,omitempty"`
	Relationships         []RelationshipFile `yaml:"relationships,omitempty"`
}

// AttributeFile is the YAML form of an [Attribute].
type AttributeFile struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type,omitempty"`
	KeyPath     string `yaml:"keyPath,omitempty"`
	Transformer string `yaml:"transformer,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	Default     any    `yaml:"default,omitempty"`
}

// RelationshipFile is the YAML form of a [Relationship].
type RelationshipFile struct {
	Name         string `yaml:"name"`
	Destination  string `yaml:"destination"`
	ToMany       bool   `yaml:"toMany,omitempty"`
	Ordered      bool   `yaml:"ordered,omitempty"`
	Inverse      string `yaml:"inverse,omitempty"`
	IdentityOnly bool   `yaml:"identityOnly,omitempty"`
	KeyPath      string `yaml:"keyPath,omitempty"`
	Required     bool   `yaml:"required,omitempty"`
	MinCount     int    `yaml:"minCount,omitempty"`
	MaxCount     int    `yaml:"maxCount,omitempty"`
}

// names accepts either a single scalar or a sequence of scalars.
type names []string

func (n *names) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*n = names{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*n = list
		return nil
	}
	return fmt.Errorf("line %d: identity must be a string or a list of strings", node.Line)
}

// LoadYAML reads a model from YAML.
func LoadYAML(r io.Reader) (*Model, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty model", ErrInvalidModel)
		}
		return nil, fmt.Errorf("parse model: %w", err)
	}
	b, err := f.Builder()
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// LoadFile reads a model from a YAML file.
func LoadFile(path string) (*Model, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer fh.Close()
	m, err := LoadYAML(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Builder converts the file into a Builder, so callers can add bindings
// before building.
func (f *File) Builder() (*Builder, error) {
	b := NewBuilder()
	for _, ef := range f.Entities {
		e := &Entity{
			Name:                  ef.Name,
			Parent:                ef.Parent,
			Abstract:              ef.Abstract,
			Identity:              ef.Identity,
			EntityMapper:          ef.EntityMapper,
			DictionaryTransformer: ef.DictionaryTransformer,
		}
		for _, af := range ef.Attributes {
			t, err := ParseAttributeType(af.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", ef.Name, af.Name, err)
			}
			e.Attributes = append(e.Attributes, &Attribute{
				Name:        af.Name,
				Type:        t,
				KeyPath:     af.KeyPath,
				Transformer: af.Transformer,
				Required:    af.Required,
				Default:     af.Default,
			})
		}
		for _, rf := range ef.Relationships {
			e.Relationships = append(e.Relationships, &Relationship{
				Name:         rf.Name,
				Destination:  rf.Destination,
				ToMany:       rf.ToMany,
				Ordered:      rf.Ordered,
				Inverse:      rf.Inverse,
				IdentityOnly: rf.IdentityOnly,
				KeyPath:      rf.KeyPath,
				Required:     rf.Required,
				MinCount:     rf.MinCount,
				MaxCount:     rf.MaxCount,
			})
		}
		b.Add(e)
	}
	return b, nil
}
