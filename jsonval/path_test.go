package jsonval

import "testing"

func TestLookup(t *testing.T) {
	obj, _ := MustParse(`{
		"id": "1699",
		"name": {"real_name": "Bruce Wayne", "alias": null},
		"powers": []
	}`).AsObject()

	tests := []struct {
		name    string
		keyPath string
		present bool
		want    string
	}{
		{"top level", "id", true, `"1699"`},
		{"nested", "name.real_name", true, `"Bruce Wayne"`},
		{"explicit null", "name.alias", true, `null`},
		{"missing leaf", "name.nickname", false, ``},
		{"through non-object", "id.value", false, ``},
		{"missing root", "publisher.id", false, ``},
		{"empty key path", "", false, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := obj.Lookup(tt.keyPath)
			if ok != tt.present {
				t.Fatalf("expected present=%v, got %v", tt.present, ok)
			}
			if ok && v.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, v.String())
			}
		})
	}
}

func TestSetPath_MergesPrefixes(t *testing.T) {
	obj := Object{}
	obj.SetPath("real_name.foo.bar.name", String("Bruce Wayne"))
	obj.SetPath("real_name.foo.bar.age", Int(42))
	obj.SetPath("real_name.first", String("Bruce"))
	obj.SetPath("id", String("1699"))

	want := MustParse(`{
		"id": "1699",
		"real_name": {"first": "Bruce", "foo": {"bar": {"name": "Bruce Wayne", "age": 42}}}
	}`)
	if !Equal(obj.Value(), want) {
		t.Errorf("expected %s, got %s", want, obj.Value())
	}
}

func TestSetPath_ReplacesScalarPrefix(t *testing.T) {
	obj := Object{"a": String("x")}
	obj.SetPath("a.b", Int(1))

	if got := obj.Value().String(); got != `{"a":{"b":1}}` {
		t.Errorf("expected nested object, got %s", got)
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig, _ := MustParse(`{"a": {"b": [1, 2]}}`).AsObject()
	cp := orig.Clone()
	cp.SetPath("a.c", Bool(true))

	if _, ok := orig.Lookup("a.c"); ok {
		t.Error("expected original to be unchanged")
	}
}
