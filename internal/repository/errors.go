// Package repository is the MySQL persistence layer. Mutations of counters
// and statuses are conditional on the value the caller read; a lost race
// surfaces as ErrStale and is left to the service to retry.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// ErrStale is returned when a conditional update matched no row because the
// counter or status changed since it was read.
var ErrStale = errors.New("stale write")

// ErrDuplicate is returned when an insert hits a unique key, such as a second
// quota or subscription for the same payment.
var ErrDuplicate = errors.New("duplicate")

const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
