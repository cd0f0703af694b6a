package schema

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCoerce(t *testing.T) {
	when := time.Date(2015, 3, 29, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		typ   AttributeType
		input any
		want  any
		ok    bool
	}{
		{"nil passes", Integer, nil, nil, true},
		{"string", String, "Batman", "Batman", true},
		{"string rejects number", String, 10.0, nil, false},
		{"integer from float", Integer, 10.0, int64(10), true},
		{"integer from int", Integer, 7, int64(7), true},
		{"integer from json number", Integer, json.Number("42"), int64(42), true},
		{"integer rejects fraction", Integer, 1.5, nil, false},
		{"integer rejects string", Integer, "10", nil, false},
		{"float from int", Float, int64(2), 2.0, true},
		{"boolean", Boolean, true, true, true},
		{"boolean rejects string", Boolean, "true", nil, false},
		{"date from string", Date, "2015-03-29T10:00:00Z", when, true},
		{"date from epoch", Date, float64(when.Unix()), when, true},
		{"date rejects garbage", Date, "yesterday", nil, false},
		{"transformable keeps value", Transformable, []int{1}, []int{1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.typ.Coerce(tt.input)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			switch want := tt.want.(type) {
			case time.Time:
				if !want.Equal(got.(time.Time)) {
					t.Errorf("expected %v, got %v", want, got)
				}
			case []int:
				if len(got.([]int)) != len(want) {
					t.Errorf("expected %v, got %v", want, got)
				}
			default:
				if got != tt.want {
					t.Errorf("expected %#v, got %#v", tt.want, got)
				}
			}
		})
	}
}

func TestCoerce_Binary(t *testing.T) {
	got, ok := Binary.Coerce("aGk=")
	if !ok || string(got.([]byte)) != "hi" {
		t.Errorf("expected 'hi', got %v (%v)", got, ok)
	}
	if _, ok := Binary.Coerce("not base64!"); ok {
		t.Error("expected invalid base64 to be rejected")
	}
}

func TestParseAttributeType(t *testing.T) {
	tests := []struct {
		input string
		want  AttributeType
	}{
		{"string", String},
		{"Integer", Integer},
		{"int64", Integer},
		{"double", Float},
		{"bool", Boolean},
		{"date", Date},
		{"data", Binary},
		{"", Transformable},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAttributeType(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := ParseAttributeType("decimal"); !errors.Is(err, ErrInvalidModel) {
		t.Errorf("expected ErrInvalidModel, got %v", err)
	}
}
