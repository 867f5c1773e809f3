package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T, name string) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// failScript fails its Up or Down on demand.
type failScript struct {
	key      string
	failUp   bool
	failDown bool
}

func (f *failScript) Key() string { return f.key }

func (f *failScript) Up(ctx context.Context, db bun.IDB) error {
	if f.failUp {
		return errors.New("boom up")
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE t_%s (id INTEGER)", sanitize(f.key)))
	return err
}

func (f *failScript) Down(ctx context.Context, db bun.IDB) error {
	if f.failDown {
		return errors.New("boom down")
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE t_%s", sanitize(f.key)))
	return err
}

func sanitize(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}

func mustSet(t *testing.T, name string, scripts ...Script) *ScriptSet {
	t.Helper()
	set, err := NewScriptSet(name, scripts...)
	if err != nil {
		t.Fatalf("NewScriptSet failed: %v", err)
	}
	return set
}

func ledgerVersions(t *testing.T, db *bun.DB) []string {
	t.Helper()
	var versions []string
	err := db.NewSelect().
		Model((*ledgerRow)(nil)).
		Column("version").
		Order("version ASC").
		Scan(context.Background(), &versions)
	if err != nil {
		t.Fatalf("failed to read ledger: %v", err)
	}
	return versions
}

func TestScriptSetOrdering(t *testing.T) {
	set := mustSet(t, "core",
		NewSQLScript("000010_later", "SELECT 1", ""),
		NewSQLScript("000002_second", "SELECT 1", ""),
		NewSQLScript("000002_also_second", "SELECT 1", ""),
		NewSQLScript("000001_first", "SELECT 1", ""),
	)
	got := set.Keys()
	want := []string{"000001_first", "000002_also_second", "000002_second", "000010_later"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestScriptSetNumericPrefixBeatsLexical(t *testing.T) {
	// Without zero padding, lexical order would put 10 before 9.
	set := mustSet(t, "s",
		NewSQLScript("10_b", "SELECT 1", ""),
		NewSQLScript("9_a", "SELECT 1", ""),
	)
	keys := set.Keys()
	if keys[0] != "9_a" || keys[1] != "10_b" {
		t.Fatalf("unexpected order: %v", keys)
	}
}

func TestScriptSetRejectsDuplicates(t *testing.T) {
	_, err := NewScriptSet("dup",
		NewSQLScript("000001_a", "SELECT 1", ""),
		NewSQLScript("000001_a", "SELECT 1", ""),
	)
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestApplyPendingAppliesInOrderAndRecords(t *testing.T) {
	db := newTestDB(t, "apply_order")
	r := NewRunner(nil)
	set := mustSet(t, "core",
		&failScript{key: "000002_b"},
		&failScript{key: "000001_a"},
		&failScript{key: "000003_c"},
	)

	applied, err := r.ApplyPending(context.Background(), db, set)
	if err != nil {
		t.Fatalf("ApplyPending failed: %v", err)
	}
	want := []string{"000001_a", "000002_b", "000003_c"}
	if len(applied) != 3 {
		t.Fatalf("expected 3 applied, got %d", len(applied))
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Fatalf("applied[%d]: expected %s, got %s", i, want[i], applied[i])
		}
	}
	if got := ledgerVersions(t, db); len(got) != 3 {
		t.Fatalf("expected 3 ledger rows, got %d", len(got))
	}

	// A second run applies nothing.
	applied, err = r.ApplyPending(context.Background(), db, set)
	if err != nil {
		t.Fatalf("second ApplyPending failed: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no scripts on second run, got %v", applied)
	}
}

func TestApplyPendingFailFast(t *testing.T) {
	db := newTestDB(t, "apply_failfast")
	r := NewRunner(nil)
	set := mustSet(t, "core",
		&failScript{key: "000001_a"},
		&failScript{key: "000002_bad", failUp: true},
		&failScript{key: "000003_c"},
	)

	applied, err := r.ApplyPending(context.Background(), db, set)
	if err == nil {
		t.Fatal("expected migration failure")
	}
	var merr *MigrationError
	if !errors.As(err, &merr) {
		t.Fatalf("expected *MigrationError, got %T", err)
	}
	if merr.Script != "000002_bad" {
		t.Fatalf("expected failing script 000002_bad, got %s", merr.Script)
	}
	if len(applied) != 1 || applied[0] != "000001_a" {
		t.Fatalf("expected only 000001_a applied, got %v", applied)
	}
	// The failing script must not be in the ledger, and the one after it must
	// not have been attempted.
	versions := ledgerVersions(t, db)
	if len(versions) != 1 || versions[0] != "000001_a" {
		t.Fatalf("unexpected ledger contents: %v", versions)
	}
}

func TestApplyPendingSkipsOtherSetsEntries(t *testing.T) {
	db := newTestDB(t, "apply_scoped")
	r := NewRunner(nil)
	core := mustSet(t, "core", &failScript{key: "000001_core"})
	module := mustSet(t, "expenses", &failScript{key: "000001_exp"})

	if _, err := r.ApplyPending(context.Background(), db, core); err != nil {
		t.Fatalf("core apply failed: %v", err)
	}
	if _, err := r.ApplyPending(context.Background(), db, module); err != nil {
		t.Fatalf("module apply failed: %v", err)
	}
	if got := ledgerVersions(t, db); len(got) != 2 {
		t.Fatalf("expected 2 ledger rows, got %v", got)
	}

	// Rolling back the module set leaves the core entry untouched.
	if _, err := r.Rollback(context.Background(), db, module); err != nil {
		t.Fatalf("module rollback failed: %v", err)
	}
	got := ledgerVersions(t, db)
	if len(got) != 1 || got[0] != "000001_core" {
		t.Fatalf("core entry disturbed by module rollback: %v", got)
	}
}

func TestRollbackReverseOrderRoundTrip(t *testing.T) {
	db := newTestDB(t, "rollback_roundtrip")
	r := NewRunner(nil)
	set := mustSet(t, "m",
		&failScript{key: "000001_a"},
		&failScript{key: "000002_b"},
	)

	if _, err := r.ApplyPending(context.Background(), db, set); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	reverted, err := r.Rollback(context.Background(), db, set)
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if len(reverted) != 2 || reverted[0] != "000002_b" || reverted[1] != "000001_a" {
		t.Fatalf("expected reverse order revert, got %v", reverted)
	}
	if got := ledgerVersions(t, db); len(got) != 0 {
		t.Fatalf("expected empty ledger, got %v", got)
	}
	// The schema is physically gone as well.
	var n int
	err = db.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 't\\_%' ESCAPE '\\'").
		Scan(context.Background(), &n)
	if err != nil {
		t.Fatalf("sqlite_master query failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no script tables after rollback, found %d", n)
	}
}

func TestRollbackPartialFailureReport(t *testing.T) {
	db := newTestDB(t, "rollback_partial")
	r := NewRunner(nil)
	set := mustSet(t, "m",
		&failScript{key: "000001_a", failDown: true},
		&failScript{key: "000002_b"},
		&failScript{key: "000003_c"},
	)

	if _, err := r.ApplyPending(context.Background(), db, set); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	_, err := r.Rollback(context.Background(), db, set)
	if err == nil {
		t.Fatal("expected rollback failure")
	}
	var rerr *RollbackError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RollbackError, got %T", err)
	}
	if rerr.Script != "000001_a" {
		t.Fatalf("expected failure at 000001_a, got %s", rerr.Script)
	}
	if len(rerr.Reverted) != 2 {
		t.Fatalf("expected 2 reverted, got %v", rerr.Reverted)
	}
	if len(rerr.Remaining) != 1 || rerr.Remaining[0] != "000001_a" {
		t.Fatalf("expected 000001_a remaining, got %v", rerr.Remaining)
	}
	// Ledger still holds exactly the remaining script.
	versions := ledgerVersions(t, db)
	if len(versions) != 1 || versions[0] != "000001_a" {
		t.Fatalf("ledger out of sync with report: %v", versions)
	}
}

func TestRollbackIrreversibleScript(t *testing.T) {
	db := newTestDB(t, "rollback_irreversible")
	r := NewRunner(nil)
	set := mustSet(t, "m", NewSQLScript("000001_seed", "CREATE TABLE seeded (id INTEGER)", ""))

	if _, err := r.ApplyPending(context.Background(), db, set); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	_, err := r.Rollback(context.Background(), db, set)
	if !errors.Is(err, ErrIrreversible) {
		t.Fatalf("expected ErrIrreversible, got %v", err)
	}
	// The entry stays in the ledger because the inverse never ran.
	if got := ledgerVersions(t, db); len(got) != 1 {
		t.Fatalf("expected ledger entry to remain, got %v", got)
	}
}

func TestLedgerBatchNumbers(t *testing.T) {
	db := newTestDB(t, "ledger_batches")
	r := NewRunner(nil)
	first := mustSet(t, "core", &failScript{key: "000001_a"})
	second := mustSet(t, "mod", &failScript{key: "000001_m"})

	if _, err := r.ApplyPending(context.Background(), db, first); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if _, err := r.ApplyPending(context.Background(), db, second); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	records, err := r.Ledger(context.Background(), db)
	if err != nil {
		t.Fatalf("Ledger failed: %v", err)
	}
	batches := make(map[string]int)
	for _, rec := range records {
		batches[rec.Version] = rec.Batch
	}
	if batches["000001_a"] != 1 || batches["000001_m"] != 2 {
		t.Fatalf("unexpected batch numbers: %v", batches)
	}
}
