package identity

import (
	"strings"
	"testing"
	"time"
)

func TestKey_Deterministic(t *testing.T) {
	first, ok := Key("hearts", int64(7))
	if !ok {
		t.Fatal("expected key")
	}
	for i := 0; i < 100; i++ {
		result, _ := Key("hearts", int64(7))
		if result != first {
			t.Errorf("expected deterministic result %q, got %q on iteration %d", first, result, i)
		}
	}
}

func TestKey_Distinct(t *testing.T) {
	tests := []struct {
		name string
		a, b []any
	}{
		{"string vs integer", []any{"10"}, []any{int64(10)}},
		{"component boundaries", []any{"ab", "c"}, []any{"a", "bc"}},
		{"order matters", []any{"hearts", int64(7)}, []any{int64(7), "hearts"}},
		{"fraction vs integer", []any{1.5}, []any{int64(1)}},
		{"bool vs string", []any{true}, []any{"true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, _ := Key(tt.a...)
			kb, _ := Key(tt.b...)
			if ka == kb {
				t.Errorf("expected distinct keys, both %q", ka)
			}
		})
	}
}

func TestKey_NumericEquivalence(t *testing.T) {
	// Integers decoded from JSON as float64 match stored int64 values.
	a, _ := Key(int64(1699))
	b, _ := Key(float64(1699))
	c, _ := Key(1699)
	if a != b || a != c {
		t.Errorf("expected equal keys, got %q %q %q", a, b, c)
	}
}

func TestKey_Time(t *testing.T) {
	utc := time.Date(2015, 3, 29, 10, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("CEST", 2*60*60))
	a, _ := Key(utc)
	b, _ := Key(local)
	if a != b {
		t.Errorf("expected same instant to produce same key, got %q and %q", a, b)
	}
}

func TestKey_Incomplete(t *testing.T) {
	tests := []struct {
		name   string
		values []any
	}{
		{"empty", nil},
		{"nil component", []any{"hearts", nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Key(tt.values...); ok {
				t.Error("expected incomplete tuple to report false")
			}
		})
	}
}

func TestHash_Format(t *testing.T) {
	key, _ := Key("1699")
	h := Hash("Character", key)

	if len(h) != 32 {
		t.Errorf("expected 32 hex chars (128 bits), got %d", len(h))
	}
	if strings.Trim(h, "0123456789abcdef") != "" {
		t.Errorf("expected lowercase hex, got %q", h)
	}
}

func TestHash_ScopedByFamily(t *testing.T) {
	key, _ := Key("10")
	if Hash("Character", key) == Hash("Publisher", key) {
		t.Error("expected different families to produce different hashes")
	}
	if Hash("Character", key) != Hash("Character", key) {
		t.Error("expected deterministic hash")
	}
}
