package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testModel = `entities:
  - name: Character
    identity: identifier
    attributes:
      - {name: identifier, type: integer, keyPath: id, transformer: StringToInteger}
      - {name: name, type: string, keyPath: name}
    relationships:
      - {name: powers, destination: Power, toMany: true, ordered: true, inverse: characters, keyPath: powers}
  - name: Power
    identity: identifier
    attributes:
      - {name: identifier, type: integer, keyPath: id, transformer: StringToInteger}
      - {name: name, type: string, keyPath: name}
    relationships:
      - {name: characters, destination: Character, toMany: true, inverse: powers}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&slog.LevelVar{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	model := writeFile(t, "model.yaml", testModel)

	out, err := run(t, "", "check", "--model", model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Character", "identity: [identifier]", "attributes: 2, relationships: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCheck_InvalidModel(t *testing.T) {
	model := writeFile(t, "model.yaml", "entities:\n  - name: Character\n    identity: missing\n")

	if _, err := run(t, "", "check", "--model", model); err == nil {
		t.Fatal("expected error for invalid model")
	}
}

func TestImport(t *testing.T) {
	model := writeFile(t, "model.yaml", testModel)
	input := `[
		{"id": "1699", "name": "Batman", "powers": [{"id": "4", "name": "Agility"}]},
		{"id": "1699", "name": "The Dark Knight"}
	]`

	out, err := run(t, input, "import", "-", "--model", model, "--entity", "Character", "--merge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid output %q: %v", out, err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 object, got %d", len(got))
	}
	if got[0]["name"] != "The Dark Knight" {
		t.Errorf("expected %q, got %v", "The Dark Knight", got[0]["name"])
	}
	if powers, _ := got[0]["powers"].([]any); len(powers) != 1 {
		t.Errorf("expected 1 power, got %v", got[0]["powers"])
	}
}

func TestImport_MissingEntity(t *testing.T) {
	model := writeFile(t, "model.yaml", testModel)

	if _, err := run(t, "{}", "import", "-", "--model", model); err == nil {
		t.Fatal("expected error without --entity")
	}
}

func TestExport_RequiresTable(t *testing.T) {
	model := writeFile(t, "model.yaml", testModel)

	_, err := run(t, "", "export", "1699", "--model", model, "--entity", "Character")
	if err == nil || !strings.Contains(err.Error(), "--table") {
		t.Errorf("expected --table error, got %v", err)
	}
}
