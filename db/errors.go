package db

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const (
	postgresUniqueValueViolationErrorCode = "23505"
	postgresForeignKeyViolationErrorCode  = "23503"
)

func isErrorUniqueViolation(err error) bool {
	var psqlErr *pq.Error
	return errors.As(err, &psqlErr) && psqlErr.Code == postgresUniqueValueViolationErrorCode
}

func isErrorForeignKeyViolation(err error) bool {
	var psqlErr *pq.Error
	return errors.As(err, &psqlErr) && psqlErr.Code == postgresForeignKeyViolationErrorCode
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
