package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgresDetail carries the server-side fields of a failed statement.
type PostgresDetail struct {
	SQLState   string `json:"sqlstate"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Diagnostics is the log view of an error.
type Diagnostics struct {
	Message  string          `json:"message"`
	Code     Code            `json:"code,omitempty"`
	Chain    []string        `json:"chain,omitempty"`
	Postgres *PostgresDetail `json:"postgres,omitempty"`
}

// Diagnose walks the wrap chain of err. Both pgx and lib/pq driver errors
// are recognised so stock and uniqueness violations surface their constraint.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}

	diag := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		diag.Code = typed.Code()
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		diag.Chain = append(diag.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}
	diag.Postgres = postgresDetail(err)
	return diag
}

// Fields flattens the diagnostics for structured logging. Postgres keys are
// only present when the chain holds a driver error.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error_message": d.Message,
		"error_code":    d.Code,
		"error_chain":   d.Chain,
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.SQLState
		fields["pg_constraint"] = pg.Constraint
		fields["pg_table"] = pg.Table
		fields["pg_column"] = pg.Column
		fields["pg_detail"] = pg.Detail
		fields["pg_message"] = pg.Message
	}
	return fields
}

func postgresDetail(err error) *PostgresDetail {
	if pgxErr := (*pgconn.PgError)(nil); errors.As(err, &pgxErr) {
		return &PostgresDetail{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		return &PostgresDetail{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
