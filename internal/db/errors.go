package db

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the read/write/transaction boundary. Callers match
// with errors.Is and decide retry/skip/abort themselves; nothing in this
// package panics across the API.
var (
	// ErrTableUnknown reports a table name absent from the schema registry.
	ErrTableUnknown = errors.New("unknown table")

	// ErrFileNotFound reports a missing required table file. Missing
	// optional tables read as empty and do not produce this error.
	ErrFileNotFound = errors.New("table file not found")

	// ErrInvalidJSON reports a table file that failed to parse.
	ErrInvalidJSON = errors.New("invalid json")

	// ErrSchemaViolation is the errors.Is target for *SchemaError.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrBackupFailure reports that a pre-transaction backup could not be
	// taken. No table has been touched when it is returned.
	ErrBackupFailure = errors.New("backup failure")

	// ErrAtomicOperation is the errors.Is target for *AtomicError.
	ErrAtomicOperation = errors.New("atomic operation failure")
)

// FieldViolation describes one failing field of one record.
type FieldViolation struct {
	RecordID string // id of the offending record, when extractable
	Index    int    // position in the table
	Field    string
	Reason   string
}

func (v FieldViolation) String() string {
	id := v.RecordID
	if id == "" {
		id = fmt.Sprintf("#%d", v.Index)
	}

	return fmt.Sprintf("%s: field %q %s", id, v.Field, v.Reason)
}

// SchemaError aggregates every field violation found while validating a
// record sequence against its table schema.
type SchemaError struct {
	Table      string
	Violations []FieldViolation
}

func (e *SchemaError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "schema violation in %s (%d violations)", e.Table, len(e.Violations))

	for _, v := range e.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}

	return b.String()
}

// Is lets errors.Is(err, ErrSchemaViolation) match a *SchemaError.
func (*SchemaError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// AtomicError reports a failed multi-table write after rollback.
//
// Restored lists the tables returned to their pre-transaction bytes. If the
// rollback itself also failed (e.g. disk full while restoring), RestoreErr
// carries that failure and the affected tables may be inconsistent.
type AtomicError struct {
	TxID       string
	Table      string // table whose write failed
	Restored   []string
	WriteErr   error
	RestoreErr error
}

func (e *AtomicError) Error() string {
	msg := fmt.Sprintf("atomic write %s failed at %s: %v (restored: %s)",
		e.TxID, e.Table, e.WriteErr, strings.Join(e.Restored, ", "))

	if e.RestoreErr != nil {
		msg += fmt.Sprintf("; ROLLBACK FAILED: %v", e.RestoreErr)
	}

	return msg
}

// Is lets errors.Is(err, ErrAtomicOperation) match a *AtomicError.
func (*AtomicError) Is(target error) bool {
	return target == ErrAtomicOperation
}

func (e *AtomicError) Unwrap() error {
	return e.WriteErr
}
