// Package database holds the CallSubs schema and applies it at startup.
package database

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"

	pkgdb "callsubs-backend/pkg/database"
	"callsubs-backend/pkg/logger"
)

//go:embed schema.sql
var schema string

// Schema returns the embedded DDL
func Schema() string {
	return schema
}

// EnsureSchema applies the schema. Every statement uses IF NOT EXISTS, so
// running it against an up-to-date database is a no-op.
func EnsureSchema(ctx context.Context, db pkgdb.DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Database schema ensured", zap.Int("bytes", len(schema)))
	return nil
}
