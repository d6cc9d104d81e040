package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name        TEXT PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// schemaFiles lists the embedded schema files in apply order.
func schemaFiles() ([]string, error) {
	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Migrate applies every embedded schema file not yet recorded in
// schema_migrations, each in its own transaction. It returns the number applied.
func (p *Pool) Migrate(ctx context.Context) (int, error) {
	if _, err := p.Exec(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := p.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}

	files, err := schemaFiles()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, file := range files {
		name := strings.TrimPrefix(file, "schema/")
		if done[name] {
			continue
		}
		data, err := fs.ReadFile(schemaFS, file)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", name, err)
		}
		if err := p.apply(ctx, name, string(data)); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (p *Pool) apply(ctx context.Context, name, sql string) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	// No arguments: pgx uses the simple protocol, which accepts several statements.
	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}
