package catalog

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/toeirei/tenantd/internal/migrate"
	"github.com/toeirei/tenantd/internal/model"
)

func expensesScripts(t *testing.T) *migrate.ScriptSet {
	t.Helper()
	set, err := migrate.NewScriptSet("expenses",
		migrate.NewSQLScript("000001_create_expenses", "CREATE TABLE expenses (id INTEGER)", "DROP TABLE expenses"),
	)
	if err != nil {
		t.Fatalf("NewScriptSet failed: %v", err)
	}
	return set
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	def := model.ModuleDefinition{
		Key:         "expenses",
		Name:        "Expense tracking",
		Permissions: []string{"expenses.view", "expenses.create"},
		Roles: []model.RoleTemplate{
			{Name: "expenses_manager", Permissions: []string{"expenses.view", "expenses.create"}},
		},
	}
	if err := r.Register(def, expensesScripts(t)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	entry, err := r.Lookup("expenses")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry.Definition.Name != "Expense tracking" {
		t.Fatalf("unexpected definition: %+v", entry.Definition)
	}
	if entry.Scripts.Name() != "expenses" {
		t.Fatalf("unexpected script set: %s", entry.Scripts.Name())
	}

	if _, err := r.Lookup("unknown"); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	def := model.ModuleDefinition{Key: "expenses"}
	if err := r.Register(def, expensesScripts(t)); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(def, expensesScripts(t)); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	scripts := expensesScripts(t)

	if err := r.Register(model.ModuleDefinition{Key: "Bad-Key"}, scripts); err == nil {
		t.Fatal("expected invalid key error")
	}
	if err := r.Register(model.ModuleDefinition{Key: "empty"}, nil); err == nil {
		t.Fatal("expected missing scripts error")
	}

	// Role referencing an undeclared permission.
	def := model.ModuleDefinition{
		Key:         "expenses",
		Permissions: []string{"expenses.view"},
		Roles: []model.RoleTemplate{
			{Name: "expenses_manager", Permissions: []string{"expenses.approve"}},
		},
	}
	if err := r.Register(def, scripts); err == nil {
		t.Fatal("expected undeclared permission error")
	}
}

func TestLoadDir(t *testing.T) {
	fsys := fstest.MapFS{
		"expenses/module.yaml": {Data: []byte(
			"key: expenses\n" +
				"name: Expense tracking\n" +
				"permissions:\n  - expenses.view\n  - expenses.create\n" +
				"roles:\n  - name: expenses_manager\n    permissions: [expenses.view, expenses.create]\n")},
		"expenses/000001_create_expenses.up.sql":   {Data: []byte("CREATE TABLE expenses (id INTEGER)")},
		"expenses/000001_create_expenses.down.sql": {Data: []byte("DROP TABLE expenses")},
		"expenses/000002_create_reports.up.sql":    {Data: []byte("CREATE TABLE expense_reports (id INTEGER)")},
		"expenses/000002_create_reports.down.sql":  {Data: []byte("DROP TABLE expense_reports")},
	}

	r := NewRegistry()
	if err := r.LoadDir(fsys); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	entry, err := r.Lookup("expenses")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(entry.Definition.Permissions) != 2 {
		t.Fatalf("unexpected permissions: %v", entry.Definition.Permissions)
	}
	if len(entry.Scripts.Keys()) != 2 {
		t.Fatalf("unexpected scripts: %v", entry.Scripts.Keys())
	}
	if len(r.Keys()) != 1 || r.Keys()[0] != "expenses" {
		t.Fatalf("unexpected keys: %v", r.Keys())
	}
}
