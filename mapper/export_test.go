package mapper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/lattice/jsonval"
	"github.com/jacentio/lattice/mapper"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
	"github.com/jacentio/lattice/transform"
)

func importBatman(t *testing.T, c *store.Context, m *mapper.Mapper) *store.Object {
	t.Helper()
	objs, err := m.ImportData(context.Background(), c, "Character", []byte(batmanJSON), mapper.Merge)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	return objs[0]
}

func TestExport_Character(t *testing.T) {
	c := store.NewContext(comicsModel(t, options{}))
	m := newMapper()
	batman := importBatman(t, c, m)

	want := `{
		"id": "1699",
		"name": "Batman",
		"real_name": "Bruce Wayne",
		"powers": [
			{"id": "4", "name": "Agility"},
			{"id": "9", "name": "Insanely Rich"}
		],
		"publisher": {"id": "10", "name": "DC Comics"}
	}`
	assert.JSONEq(t, want, m.Export(batman).Value().String())
}

func TestExport_SkipsInverseOfRelationshipInProgress(t *testing.T) {
	c := store.NewContext(comicsModel(t, options{}))
	m := newMapper()
	batman := importBatman(t, c, m)

	agility := batman.Related("powers")[0]
	want := `{
		"id": "4",
		"name": "Agility",
		"characters": [{
			"id": "1699",
			"name": "Batman",
			"real_name": "Bruce Wayne",
			"publisher": {"id": "10", "name": "DC Comics"}
		}]
	}`
	assert.JSONEq(t, want, m.Export(agility).Value().String())

	// State from one call doesn't leak into the next.
	assert.JSONEq(t, want, m.Export(agility).Value().String())
}

func TestExport_OneSidedInverse(t *testing.T) {
	model, err := schema.NewBuilder().Add(
		&schema.Entity{
			Name:       "Team",
			Identity:   []string{"id"},
			Attributes: []*schema.Attribute{{Name: "id", Type: schema.String, KeyPath: "id"}},
			Relationships: []*schema.Relationship{
				{Name: "members", Destination: "Member", ToMany: true, Inverse: "team", KeyPath: "members"},
			},
		},
		&schema.Entity{
			Name:          "Member",
			Identity:      []string{"id"},
			Attributes:    []*schema.Attribute{{Name: "id", Type: schema.String, KeyPath: "id"}},
			Relationships: []*schema.Relationship{{Name: "team", Destination: "Team", KeyPath: "team"}},
		},
	).Build()
	require.NoError(t, err)

	c := store.NewContext(model)
	m := newMapper()
	objs, err := m.Import(context.Background(), c, "Team", jsonval.MustParse(`{"id": "t1", "members": [{"id": "m1"}]}`), mapper.Insert)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	team := objs[0]
	member := team.Related("members")[0]
	assert.Same(t, team, member.Value("team"))
	assert.JSONEq(t, `{"id": "t1", "members": [{"id": "m1"}]}`, m.Export(team).Value().String())
	assert.JSONEq(t, `{"id": "m1", "team": {"id": "t1"}}`, m.Export(member).Value().String())
}

func TestExport_EmptyValues(t *testing.T) {
	c := store.NewContext(comicsModel(t, options{}))
	m := newMapper()

	o, err := m.ImportObject(context.Background(), c, "Character", jsonval.Object{"id": jsonval.String("1")}, mapper.Insert)
	require.NoError(t, err)

	assert.JSONEq(t, `{"id": "1", "name": null, "real_name": null, "powers": [], "publisher": null}`,
		m.Export(o).Value().String())
	assert.Nil(t, m.Export(nil))
}

func TestExport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newMapper()
	batman := importBatman(t, store.NewContext(comicsModel(t, options{})), m)

	exported := m.Export(batman)

	c := store.NewContext(comicsModel(t, options{}))
	again, err := m.ImportObject(ctx, c, "Character", exported, mapper.Merge)
	require.NoError(t, err)

	assert.True(t, jsonval.Equal(exported.Value(), m.Export(again).Value()))
	assert.Equal(t, 2, c.Count("Power"))
}

func personModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.NewBuilder().Add(&schema.Entity{
		Name: "Person",
		Attributes: []*schema.Attribute{
			{Name: "first", Type: schema.String, KeyPath: "name.first"},
			{Name: "last", Type: schema.String, KeyPath: "name.last"},
			{Name: "nick", Type: schema.String, KeyPath: "name.nick.value"},
			{Name: "born", Type: schema.Date, KeyPath: "born", Transformer: transform.ISO8601Date},
			{Name: "height", Type: schema.Float, KeyPath: "height"},
			{Name: "secret", Type: schema.String},
		},
	}).Build()
	require.NoError(t, err)
	return m
}

func TestExport_NestedKeyPaths(t *testing.T) {
	c := store.NewContext(personModel(t))
	m := newMapper()

	in := jsonval.MustParse(`{
		"name": {"first": "Bruce", "last": "Wayne", "nick": {"value": "Bats"}},
		"born": "1939-05-27",
		"height": 1.88
	}`)
	objs, err := m.Import(context.Background(), c, "Person", in, mapper.Insert)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	p := objs[0]
	assert.Equal(t, "Bruce", p.Value("first"))
	assert.Equal(t, "Bats", p.Value("nick"))
	assert.Equal(t, 1.88, p.Value("height"))

	assert.JSONEq(t, `{
		"name": {"first": "Bruce", "last": "Wayne", "nick": {"value": "Bats"}},
		"born": "1939-05-27T00:00:00Z",
		"height": 1.88
	}`, m.Export(p).Value().String())
}

func TestExport_IdentityOnlyComposite(t *testing.T) {
	c := store.NewContext(cardsModel(t))
	m := newMapper()

	hand, err := m.ImportObject(context.Background(), c, "Hand", jsonval.Object{
		"player": jsonval.String("guille"),
		"cards":  jsonval.MustParse(`[["hearts", "A"], null, ["spades", "K"]]`),
	}, mapper.Insert)
	require.NoError(t, err)

	assert.JSONEq(t, `{"player": "guille", "cards": [["hearts", "A"], ["spades", "K"]]}`,
		m.Export(hand).Value().String())
}

func TestExportData(t *testing.T) {
	c := store.NewContext(comicsModel(t, options{}))
	m := newMapper()

	objs, err := m.Import(context.Background(), c, "Power", jsonval.MustParse(`[{"id": "4", "name": "Agility"}]`), mapper.Insert)
	require.NoError(t, err)

	data, err := m.ExportData(append(objs, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id": "4", "name": "Agility", "characters": []}, null]`, string(data))
}
