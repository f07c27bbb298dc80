package jsonldb

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/ksid"
)

type testRow struct {
	ID   ksid.ID `json:"id"`
	Name string  `json:"name"`
	Tag  string  `json:"tag,omitempty"`
}

func (r *testRow) Clone() *testRow {
	c := *r
	return &c
}

func (r *testRow) GetID() ksid.ID {
	return r.ID
}

func (r *testRow) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func setupTable(t *testing.T) (*Table[*testRow], string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.jsonl")
	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table, path
}

func TestTable(t *testing.T) {
	t.Run("append and reload", func(t *testing.T) {
		table, path := setupTable(t)
		a := &testRow{ID: ksid.ID(10), Name: "a"}
		b := &testRow{ID: ksid.ID(5), Name: "b"}
		for _, r := range []*testRow{a, b} {
			if err := table.Append(r); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		if table.Len() != 2 {
			t.Fatalf("Len = %d, want 2", table.Len())
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("got %d lines, want header plus 2 rows:\n%s", len(lines), data)
		}
		if !strings.Contains(lines[0], `"version":"1.0"`) {
			t.Errorf("header = %s", lines[0])
		}

		reloaded, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		var got []ksid.ID
		for r := range reloaded.Iter(0) {
			got = append(got, r.ID)
		}
		if len(got) != 2 || got[0] != 5 || got[1] != 10 {
			t.Errorf("Iter order = %v, want [5 10]", got)
		}
	})

	t.Run("rejects bad rows", func(t *testing.T) {
		table, _ := setupTable(t)
		if err := table.Append(&testRow{Name: "x"}); !errors.Is(err, errRowIDRequired) {
			t.Errorf("zero id: got %v", err)
		}
		if err := table.Append(&testRow{ID: 1}); err == nil {
			t.Error("expected validation error")
		}
		if err := table.Append(&testRow{ID: 1, Name: "x"}); err != nil {
			t.Fatal(err)
		}
		if err := table.Append(&testRow{ID: 1, Name: "y"}); !errors.Is(err, errRowExists) {
			t.Errorf("duplicate: got %v", err)
		}
	})

	t.Run("get returns a copy", func(t *testing.T) {
		table, _ := setupTable(t)
		if err := table.Append(&testRow{ID: 1, Name: "x"}); err != nil {
			t.Fatal(err)
		}
		r := table.Get(1)
		r.Name = "mutated"
		if table.Get(1).Name != "x" {
			t.Error("Get leaked internal state")
		}
		if table.Get(2) != nil {
			t.Error("expected nil for missing row")
		}
	})

	t.Run("modify and delete persist", func(t *testing.T) {
		table, path := setupTable(t)
		for i := 1; i <= 3; i++ {
			if err := table.Append(&testRow{ID: ksid.ID(i), Name: "r"}); err != nil {
				t.Fatal(err)
			}
		}
		got, err := table.Modify(2, func(r *testRow) error {
			r.Name = "two"
			return nil
		})
		if err != nil || got.Name != "two" {
			t.Fatalf("Modify = %+v, %v", got, err)
		}
		if _, err := table.Modify(9, func(*testRow) error { return nil }); !errors.Is(err, ErrNotFound) {
			t.Errorf("Modify missing: got %v", err)
		}
		if _, err := table.Modify(2, func(r *testRow) error {
			r.Name = ""
			return nil
		}); err == nil {
			t.Error("expected validation error from Modify")
		}
		if _, err := table.Delete(1); err != nil {
			t.Fatal(err)
		}
		if _, err := table.Delete(1); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete: got %v", err)
		}

		reloaded, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatal(err)
		}
		if reloaded.Len() != 2 {
			t.Fatalf("Len = %d, want 2", reloaded.Len())
		}
		if r := reloaded.Get(2); r == nil || r.Name != "two" {
			t.Errorf("Get(2) = %+v", r)
		}
	})

	t.Run("invalid header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.jsonl")
		if err := os.WriteFile(path, []byte(`{"columns":[]}`+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewTable[*testRow](path); err == nil {
			t.Error("expected error for header without version")
		}
	})
}

func TestSchemaFromType(t *testing.T) {
	cols, err := schemaFromType[*testRow]()
	if err != nil {
		t.Fatal(err)
	}
	byName := map[string]column{}
	for _, c := range cols {
		byName[c.Name] = c
	}
	if _, ok := byName["id"]; !ok {
		t.Errorf("id column missing: %+v", cols)
	}
	if c := byName["name"]; c.Type != columnTypeText || !c.Required {
		t.Errorf("name column = %+v", c)
	}
	if c := byName["tag"]; c.Required {
		t.Errorf("tag column should be optional: %+v", c)
	}
	if _, err := schemaFromType[int](); err == nil {
		t.Error("expected error for non-struct type")
	}
}
