package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by FetchVideoPath when the video row does not exist.
var ErrNotFound = errors.New("storage: not found")

// transientSQLStates are Postgres SQLSTATE classes a caller may retry:
// serialization failures, deadlocks, and connection-exception class codes.
// Grounded on spec.md §4.B's transient/permanent split; the concrete codes
// come from the Postgres errcodes table surfaced via pgconn.PgError, which
// is already an indirect dependency of the teacher's gorm.io/driver/postgres.
var transientSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
	"08004": true, // sqlserver_rejected_establishment_of_sqlconnection
	"57P03": true, // cannot_connect_now
}

// IsTransient classifies a gateway error as transient (caller may retry) per
// spec.md §4.B. Conflict-ignore inserts never produce an error here: they
// are implemented with ON CONFLICT DO NOTHING, so a duplicate natural key is
// not an error at all.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLStates[pgErr.Code]
	}
	// Unrecognized errors (network resets surfaced by the driver without a
	// PgError, context deadline exceeded while waiting on the pool, etc.)
	// are treated as transient: spec.md's permanent category is reserved for
	// things a retry can never fix (constraint violation, schema mismatch).
	return !errors.Is(err, ErrNotFound)
}
