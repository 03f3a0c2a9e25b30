package schema

import (
	"errors"
	"fmt"
)

// Sentinel errors. Operations wrap these with the offending names, so callers
// match with errors.Is.
var (
	ErrTableNotFound      = errors.New("table not found")
	ErrTableAlreadyExists = errors.New("table already exists")

	ErrColumnNotFound          = errors.New("column not found")
	ErrColumnAlreadyExists     = errors.New("column already exists")
	ErrColumnInUseByForeignKey = errors.New("column is used by a foreign key")

	ErrPrimaryKeyAlreadyExists = errors.New("multiple primary keys defined")
	ErrNoPrimaryKey            = errors.New("table has no primary key")

	ErrIndexNotFound             = errors.New("index not found")
	ErrIndexAlreadyExists        = errors.New("duplicate index name")
	ErrIndexRequiredByForeignKey = errors.New("index is needed in a foreign key constraint")

	ErrForeignKeyNotFound            = errors.New("foreign key not found")
	ErrForeignKeyAlreadyExists       = errors.New("duplicate foreign key name")
	ErrForeignKeyReferenceExists     = errors.New("table is referenced by a foreign key")
	ErrForeignKeyColumnCountMismatch = errors.New("foreign key column count mismatch")
	ErrForeignKeyTypeMismatch        = errors.New("foreign key column type mismatch")

	ErrInvariantViolation = errors.New("schema invariant violation")
)

// ForeignKeyTypeMismatchError names both sides of an incompatible foreign
// key column pair.
type ForeignKeyTypeMismatchError struct {
	Local      string
	LocalType  string
	Target     string
	TargetType string
}

func (e *ForeignKeyTypeMismatchError) Error() string {
	return fmt.Sprintf("%v: %s is %s but %s is %s",
		ErrForeignKeyTypeMismatch, e.Local, e.LocalType, e.Target, e.TargetType)
}

func (e *ForeignKeyTypeMismatchError) Unwrap() error {
	return ErrForeignKeyTypeMismatch
}
