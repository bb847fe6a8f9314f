package results

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/mcdev12/lastround/go/internal/sqlutil"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// SchemaStatements returns the DDL for a driver split into statements.
func SchemaStatements(driver string) ([]string, error) {
	name := "schema/postgres.sql"
	if driver == sqlutil.DriverSQLite {
		name = "schema/sqlite.sql"
	}
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var out []string
	for _, stmt := range strings.Split(string(raw), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := SchemaStatements(s.driver)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
