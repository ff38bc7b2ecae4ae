package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/zhenhaojia/house/internal/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent, so Migrate is safe to run on each start.
func Migrate(ctx context.Context, e *Executor) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	log := logger.FromContext(ctx)
	for _, name := range files {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(body)) {
			if res := e.Execute(ctx, stmt); !res.Success {
				return fmt.Errorf("apply %s: %w", name, res.Err)
			}
		}
		log.Info().Str("migration", name).Msg("Migration applied")
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
