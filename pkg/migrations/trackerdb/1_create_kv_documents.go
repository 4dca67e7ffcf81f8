package trackerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/bridge-tracker/pkg/kv"
	mghelper "github.com/chainsafe/bridge-tracker/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating kv_documents table...")
		if err := mghelper.CreateSchema(ctx, db, &kv.DocumentDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &kv.DocumentDao{}, "updated_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping kv_documents table...")
		return mghelper.DropTables(ctx, db, &kv.DocumentDao{})
	})
}
