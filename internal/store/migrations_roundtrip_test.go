package store

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ran, err := ApplyMigrations(ctx, db, testMigrations)
	if err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if ran == 0 {
		t.Fatal("expected migrations to run on an empty schema")
	}
	if again, err := ApplyMigrations(ctx, db, testMigrations); err != nil || again != 0 {
		t.Fatalf("second apply ran %d migrations, err = %v", again, err)
	}

	undone, err := RollbackMigrations(ctx, db, testMigrations)
	if err != nil {
		t.Fatalf("rollback migrations: %v", err)
	}
	if undone != ran {
		t.Fatalf("rolled back %d migrations, applied %d", undone, ran)
	}

	if _, err := ApplyMigrations(ctx, db, testMigrations); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
