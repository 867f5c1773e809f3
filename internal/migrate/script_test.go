package migrate

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestLoadSQLScripts(t *testing.T) {
	fsys := fstest.MapFS{
		"scripts/000001_users.up.sql":    {Data: []byte("CREATE TABLE users (id INTEGER)")},
		"scripts/000001_users.down.sql":  {Data: []byte("DROP TABLE users")},
		"scripts/000002_audit.up.sql":    {Data: []byte("CREATE TABLE audit (id INTEGER)")},
		"scripts/notes.txt":              {Data: []byte("ignored")},
		"scripts/000002_audit.down.sql":  {Data: []byte("DROP TABLE audit")},
		"scripts/000003_seed.up.sql":     {Data: []byte("CREATE TABLE seed (id INTEGER)")},
	}
	set, err := LoadSQLScripts(fsys, "scripts", "core")
	if err != nil {
		t.Fatalf("LoadSQLScripts failed: %v", err)
	}
	keys := set.Keys()
	want := []string{"000001_users", "000002_audit", "000003_seed"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d scripts, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}

	// The script without a down file is irreversible.
	db := newTestDB(t, "load_sql_scripts")
	for _, sc := range set.Scripts() {
		if err := sc.Up(context.Background(), db); err != nil {
			t.Fatalf("Up %s failed: %v", sc.Key(), err)
		}
	}
	last := set.Scripts()[2]
	if err := last.Down(context.Background(), db); err != ErrIrreversible {
		t.Fatalf("expected ErrIrreversible, got %v", err)
	}
}

func TestLoadSQLScriptsOrphanDown(t *testing.T) {
	fsys := fstest.MapFS{
		"scripts/000001_users.down.sql": {Data: []byte("DROP TABLE users")},
	}
	if _, err := LoadSQLScripts(fsys, "scripts", "core"); err == nil {
		t.Fatal("expected error for orphaned down file")
	}
}
