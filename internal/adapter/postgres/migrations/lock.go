package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaLockKey is the advisory lock id held while migrations run, so two
// instances starting together apply each migration once.
const schemaLockKey int64 = 0x706f7274666f6c69

// withSchemaLock hands fn a connection that holds the schema lock for the
// duration of the call. pg_advisory_lock belongs to the session, so all of
// fn's statements and the unlock go through that same connection.
func withSchemaLock(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for migrations: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		return fmt.Errorf("waiting for schema lock: %w", err)
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockKey) //nolint:errcheck

	return fn(ctx, conn)
}
