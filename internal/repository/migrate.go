package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// Migrate creates the updater tables if they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) error {
	// 无参数的 Exec 走简单协议，允许一次执行多条语句
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Database schema is up to date")
	return nil
}
