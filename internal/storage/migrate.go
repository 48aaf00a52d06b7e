package storage

import (
	"context"
	"embed"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// migrate applies an idempotent schema file statement by statement.
func migrate(ctx context.Context, c conn, name string) error {
	b, err := schemaFS.ReadFile(name)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := c.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
