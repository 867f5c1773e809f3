// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package migrate

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/tenantd/internal/model"
)

// ledgerRow maps the per-tenant ledger of applied scripts. One such table
// exists in every tenant database; it is distinct from the control-plane
// registry's own schema_migrations table.
type ledgerRow struct {
	bun.BaseModel `bun:"table:tenant_migrations"`
	Version       string    `bun:"version,pk"`
	AppliedAt     time.Time `bun:"applied_at"`
	Batch         int       `bun:"batch"`
}

// Runner applies and rolls back script sets against tenant databases.
// It is stateless; all state lives in the ledger table of the database the
// caller hands in.
type Runner struct {
	logf func(format string, v ...interface{})
}

// NewRunner returns a Runner. logf may be nil to disable progress logging.
func NewRunner(logf func(format string, v ...interface{})) *Runner {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Runner{logf: logf}
}

// EnsureLedger creates the tenant_migrations table when missing.
func (r *Runner) EnsureLedger(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*ledgerRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Ledger returns the applied migration records, ordered by version.
func (r *Runner) Ledger(ctx context.Context, db *bun.DB) ([]model.MigrationRecord, error) {
	var rows []ledgerRow
	if err := db.NewSelect().Model(&rows).Order("version ASC").Scan(ctx); err != nil {
		return nil, err
	}
	records := make([]model.MigrationRecord, len(rows))
	for i, row := range rows {
		records[i] = model.MigrationRecord{
			Version:   row.Version,
			AppliedAt: row.AppliedAt,
			Batch:     row.Batch,
		}
	}
	return records, nil
}

// ApplyPending executes every script in set that is absent from the ledger,
// in set order, and returns the keys it applied. Each script runs in its own
// transaction together with its ledger insert, so a script is never marked
// applied before it has physically succeeded. The first failure stops the
// run and is reported as a *MigrationError naming the script.
func (r *Runner) ApplyPending(ctx context.Context, db *bun.DB, set *ScriptSet) ([]string, error) {
	if err := r.EnsureLedger(ctx, db); err != nil {
		return nil, err
	}
	applied, err := r.appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	batch, err := r.nextBatch(ctx, db)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, script := range set.Scripts() {
		key := script.Key()
		if _, ok := applied[key]; ok {
			continue
		}
		r.logf("migrate: applying %s (set %s, batch %d)", key, set.Name(), batch)
		err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := script.Up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.NewInsert().Model(&ledgerRow{
				Version:   key,
				AppliedAt: time.Now().UTC(),
				Batch:     batch,
			}).Exec(ctx)
			return err
		})
		if err != nil {
			return done, &MigrationError{Set: set.Name(), Script: key, Err: err}
		}
		done = append(done, key)
	}
	return done, nil
}

// Rollback executes the inverse of every applied script in set, in reverse
// order, deleting each ledger entry only after its inverse has succeeded.
// Scripts from other sets are never touched. A partial failure is reported
// as a *RollbackError carrying exactly which scripts were reverted and which
// remain applied.
func (r *Runner) Rollback(ctx context.Context, db *bun.DB, set *ScriptSet) ([]string, error) {
	if err := r.EnsureLedger(ctx, db); err != nil {
		return nil, err
	}
	applied, err := r.appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	// Applied scripts from this set, in reverse execution order.
	scripts := set.Scripts()
	var targets []Script
	for i := len(scripts) - 1; i >= 0; i-- {
		if _, ok := applied[scripts[i].Key()]; ok {
			targets = append(targets, scripts[i])
		}
	}

	var reverted []string
	for i, script := range targets {
		key := script.Key()
		r.logf("migrate: rolling back %s (set %s)", key, set.Name())
		err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := script.Down(ctx, tx); err != nil {
				return err
			}
			_, err := tx.NewDelete().
				Model((*ledgerRow)(nil)).
				Where("version = ?", key).
				Exec(ctx)
			return err
		})
		if err != nil {
			remaining := make([]string, 0, len(targets)-i)
			for _, rest := range targets[i:] {
				remaining = append(remaining, rest.Key())
			}
			return reverted, &RollbackError{
				Set:       set.Name(),
				Script:    key,
				Reverted:  reverted,
				Remaining: remaining,
				Err:       err,
			}
		}
		reverted = append(reverted, key)
	}
	return reverted, nil
}

func (r *Runner) appliedVersions(ctx context.Context, db *bun.DB) (map[string]struct{}, error) {
	var versions []string
	err := db.NewSelect().
		Model((*ledgerRow)(nil)).
		Column("version").
		Scan(ctx, &versions)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		set[v] = struct{}{}
	}
	return set, nil
}

func (r *Runner) nextBatch(ctx context.Context, db *bun.DB) (int, error) {
	var max sql.NullInt64
	err := db.NewRaw("SELECT MAX(batch) FROM tenant_migrations").Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}
