package migrations

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quizzes.sql
var createQuizzesSQL string

// Migrations holds the schema of the quiz store.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(createQuizzes, dropQuizzes)
}

// createQuizzes adds the quizzes table with one row per course class.
func createQuizzes(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, createQuizzesSQL); err != nil {
			return fmt.Errorf("create quizzes: %w", err)
		}
		return nil
	})
}

func dropQuizzes(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range []string{
			`DROP INDEX IF EXISTS idx_quizzes_published`,
			`DROP TABLE IF EXISTS quizzes`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("drop quizzes: %w", err)
			}
		}
		return nil
	})
}
