package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0003_add_record_failed.sql
var addRecordFailedSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, addRecordFailedSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `ALTER TABLE attempts DROP COLUMN IF EXISTS record_failed`)
			return err
		},
	)
}
