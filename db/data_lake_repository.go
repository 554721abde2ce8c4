package db

import (
	"context"
	"fmt"

	"livetix/entities"
)

type DataLakeRepository struct {
	db *DB
}

func NewDataLakeRepository(db *DB) DataLakeRepository {
	if db == nil {
		panic("db is nil")
	}
	return DataLakeRepository{
		db: db,
	}
}

func (r DataLakeRepository) Save(ctx context.Context, event entities.DataLakeEvent) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO
			data_lake_events (event_id, published_at, event_name, event_payload)
		VALUES
			($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.PublishedAt, event.EventName, string(event.EventPayload))
	if err != nil {
		return fmt.Errorf("could not save data lake event: %w", err)
	}

	return nil
}

func (r DataLakeRepository) Count(ctx context.Context, eventName string) (int, error) {
	var count int
	err := r.db.Conn.GetContext(ctx, &count, `SELECT count(*) FROM data_lake_events WHERE event_name = $1`, eventName)
	if err != nil {
		return 0, fmt.Errorf("could not count data lake events: %w", err)
	}

	return count, nil
}
