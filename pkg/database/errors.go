package database

import (
	"errors"

	"github.com/lib/pq"
)

// codeUndefinedTable is the PostgreSQL code for a missing relation
const codeUndefinedTable = "42P01"

// IsUndefinedTable reports whether err is a "relation does not exist" error
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUndefinedTable
}
