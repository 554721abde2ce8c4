package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type DB struct {
	Conn *sqlx.DB
}

// NewDBConn opens a traced Postgres connection pool.
func NewDBConn(connString string) (DB, error) {
	traceDB, err := otelsql.Open("postgres", connString,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithDBName("livetix"),
	)
	if err != nil {
		return DB{}, fmt.Errorf("could not open postgres connection: %w", err)
	}

	return DB{Conn: sqlx.NewDb(traceDB, "postgres")}, nil
}

func (db *DB) Close() error {
	return db.Conn.Close()
}

func (db *DB) MigrateSchema() error {
	if _, err := db.Conn.Exec(schema); err != nil {
		return fmt.Errorf("could not migrate schema: %w", err)
	}

	return nil
}
