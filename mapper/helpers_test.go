package mapper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacentio/lattice/jsonval"
	"github.com/jacentio/lattice/mapper"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
	"github.com/jacentio/lattice/transform"
)

type character struct{}

type options struct {
	requireName           bool
	identityOnlyPublisher bool
}

func comicsModel(t *testing.T, opts options) *schema.Model {
	t.Helper()
	m, err := schema.NewBuilder().Add(
		&schema.Entity{
			Name:                  "Character",
			Identity:              []string{"identifier"},
			DictionaryTransformer: "legacyCharacter",
			Attributes: []*schema.Attribute{
				{Name: "identifier", Type: schema.Integer, KeyPath: "id", Transformer: transform.StringToInteger},
				{Name: "name", Type: schema.String, KeyPath: "name", Required: opts.requireName},
				{Name: "realName", Type: schema.String, KeyPath: "real_name"},
				{Name: "notes", Type: schema.String},
			},
			Relationships: []*schema.Relationship{
				{Name: "powers", Destination: "Power", ToMany: true, Ordered: true, Inverse: "characters", KeyPath: "powers"},
				{Name: "publisher", Destination: "Publisher", Inverse: "characters", KeyPath: "publisher", IdentityOnly: opts.identityOnlyPublisher},
			},
		},
		&schema.Entity{
			Name:     "Power",
			Identity: []string{"identifier"},
			Attributes: []*schema.Attribute{
				{Name: "identifier", Type: schema.Integer, KeyPath: "id", Transformer: transform.StringToInteger},
				{Name: "name", Type: schema.String, KeyPath: "name"},
			},
			Relationships: []*schema.Relationship{
				{Name: "characters", Destination: "Character", ToMany: true, Inverse: "powers", KeyPath: "characters"},
			},
		},
		&schema.Entity{
			Name:     "Publisher",
			Identity: []string{"identifier"},
			Attributes: []*schema.Attribute{
				{Name: "identifier", Type: schema.Integer, KeyPath: "id", Transformer: transform.StringToInteger},
				{Name: "name", Type: schema.String, KeyPath: "name"},
			},
			Relationships: []*schema.Relationship{
				{Name: "characters", Destination: "Character", ToMany: true, Inverse: "publisher", KeyPath: "characters"},
			},
		},
	).Bind("Character", character{}).Build()
	require.NoError(t, err)
	return m
}

func cardsModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.NewBuilder().Add(
		&schema.Entity{
			Name:     "Card",
			Identity: []string{"suit", "value"},
			Attributes: []*schema.Attribute{
				{Name: "suit", Type: schema.String, KeyPath: "suit"},
				{Name: "value", Type: schema.String, KeyPath: "value"},
				{Name: "numberOfTimesPlayed", Type: schema.Integer, KeyPath: "times_played"},
			},
		},
		&schema.Entity{
			Name: "Hand",
			Attributes: []*schema.Attribute{
				{Name: "player", Type: schema.String, KeyPath: "player"},
			},
			Relationships: []*schema.Relationship{
				{Name: "cards", Destination: "Card", ToMany: true, Ordered: true, IdentityOnly: true, KeyPath: "cards"},
			},
		},
	).Build()
	require.NoError(t, err)
	return m
}

func shapesModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.NewBuilder().Add(
		&schema.Entity{
			Name:         "Abstract",
			Abstract:     true,
			Identity:     []string{"identifier"},
			EntityMapper: "abstractMapper",
			Attributes: []*schema.Attribute{
				{Name: "identifier", Type: schema.String, KeyPath: "id"},
				{Name: "name", Type: schema.String, KeyPath: "name"},
			},
		},
		&schema.Entity{
			Name:   "ConcreteA",
			Parent: "Abstract",
			Attributes: []*schema.Attribute{
				{Name: "foo", Type: schema.String, KeyPath: "foo"},
			},
		},
		&schema.Entity{
			Name:   "ConcreteB",
			Parent: "Abstract",
			Attributes: []*schema.Attribute{
				{Name: "bar", Type: schema.String, KeyPath: "bar"},
			},
		},
	).Build()
	require.NoError(t, err)
	return m
}

func newRegistry() *transform.Registry {
	r := transform.NewRegistry()
	transform.RegisterBuiltins(r)
	r.RegisterDictionary("legacyCharacter", func(o jsonval.Object) (jsonval.Object, bool) {
		if v, ok := o["legacy_id"]; ok {
			o["id"] = v
			delete(o, "legacy_id")
		}
		return o, true
	})
	r.RegisterEntityMapper("abstractMapper", func(o jsonval.Object) (string, bool) {
		switch t, _ := o["type"].AsString(); t {
		case "A":
			return "ConcreteA", true
		case "B":
			return "ConcreteB", true
		}
		return "", false
	})
	return r
}

func newMapper() *mapper.Mapper {
	return mapper.New(newRegistry())
}

// plainSession hides the savepoint support of a store.Context.
type plainSession struct {
	c *store.Context
}

func (s plainSession) Model() *schema.Model { return s.c.Model() }

func (s plainSession) Insert(entity string) (*store.Object, error) { return s.c.Insert(entity) }

func (s plainSession) FetchExisting(ctx context.Context, entity *schema.Entity, tuples [][]any) ([]*store.Object, error) {
	return s.c.FetchExisting(ctx, entity, tuples)
}

func (s plainSession) Delete(obj *store.Object) { s.c.Delete(obj) }

func (s plainSession) Validate(obj *store.Object, property string, value any) (any, error) {
	return s.c.Validate(obj, property, value)
}

func (s plainSession) Set(obj *store.Object, property string, value any) error {
	return s.c.Set(obj, property, value)
}

const batmanJSON = `{
	"name": "Batman",
	"real_name": "Bruce Wayne",
	"id": "1699",
	"powers": [
		{"id": "4", "name": "Agility"},
		null,
		{"id": "9", "name": "Insanely Rich"}
	],
	"publisher": {"id": "10", "name": "DC Comics"}
}`
