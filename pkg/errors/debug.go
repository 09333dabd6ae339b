package errors

import (
	stdErrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a structured view of an error chain for diagnostic logging.
type ErrorDump struct {
	Code     Code           `json:"code"`
	Message  string         `json:"message"`
	Chain    []string       `json:"chain,omitempty"`
	Postgres *PostgresError `json:"postgres,omitempty"`
}

type PostgresError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
}

func Dump(err error) *ErrorDump {
	if err == nil {
		return nil
	}

	dump := &ErrorDump{Code: CodeInternal, Message: err.Error()}
	if typed := As(err); typed != nil {
		dump.Code = typed.Code()
		dump.Message = typed.Message()
	}

	for current := err; current != nil; current = stdErrors.Unwrap(current) {
		dump.Chain = append(dump.Chain, current.Error())
	}

	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		dump.Postgres = &PostgresError{
			Code:       pgxErr.Code,
			Message:    pgxErr.Message,
			Detail:     pgxErr.Detail,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
		}
		return dump
	}

	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		dump.Postgres = &PostgresError{
			Code:       string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
		}
	}

	return dump
}
