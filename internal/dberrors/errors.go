// Package dberrors defines the sentinel error kinds from the engine's
// error-handling design, so callers can classify a failure with errors.Is
// while the wrapped message still carries the offending name.
package dberrors

import "errors"

var (
	ErrTableExists         = errors.New("table already exists")
	ErrTableNotFound       = errors.New("table does not exist")
	ErrIndexExists         = errors.New("index already exists")
	ErrIndexNotFound       = errors.New("index does not exist")
	ErrColumnNotFound      = errors.New("column does not exist")
	ErrMissingPrimaryKey   = errors.New("no primary key defined")
	ErrDuplicatePrimaryKey = errors.New("multiple primary key definitions")
	ErrMissingPKValue      = errors.New("record is missing a value for the primary key column")
	ErrWrongArity          = errors.New("value count does not match column count")
	ErrDeleteWithoutWhere  = errors.New("delete statement must have a where clause")
	ErrUngroupedColumn     = errors.New("selected column is not in group by clause and is not an aggregate")
	ErrOrderColumnNotFound = errors.New("cannot order by column not present in result set")
	ErrInternalNodeDelete  = errors.New("deletion from internal b-tree nodes is not implemented")
	ErrUnknownAggregate    = errors.New("unknown aggregate function")
	ErrUnknownCommand      = errors.New("unknown command type")
	ErrLockTimeout         = errors.New("timed out acquiring advisory lock")
	ErrTransactionActive   = errors.New("transaction already in progress")
	ErrNoActiveTransaction = errors.New("no transaction in progress")
	ErrRecordNotFound      = errors.New("no record found for the given key")
	ErrParse               = errors.New("unsupported or invalid sql query")
)
