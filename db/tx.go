package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"livetix/entities"
	"livetix/message/event"
	"livetix/message/outbox"

	"github.com/jmoiron/sqlx"
)

func updateInTx(
	ctx context.Context,
	db *sqlx.DB,
	isolation sql.IsolationLevel,
	fn func(ctx context.Context, tx *sqlx.Tx) error,
) (err error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return
		}

		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// publishInTx stores events in the outbox, so they are forwarded only if tx commits.
func publishInTx(ctx context.Context, tx *sqlx.Tx, events ...entities.IEvent) error {
	if len(events) == 0 {
		return nil
	}

	publisher, err := outbox.NewPublisherForDb(ctx, tx)
	if err != nil {
		return fmt.Errorf("could not create outbox publisher: %w", err)
	}

	bus := event.NewBus(publisher)
	for _, e := range events {
		if err := bus.Publish(ctx, e); err != nil {
			return fmt.Errorf("could not publish %T: %w", e, err)
		}
	}

	return nil
}
