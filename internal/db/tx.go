package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Write names one table and its full replacement record sequence inside a
// multi-table transaction.
type Write struct {
	Table   string
	Records []json.RawMessage
}

// TxResult reports a committed multi-table write. Backups are the
// pre-transaction snapshots, kept on disk so the caller retains manual
// rollback capability.
type TxResult struct {
	TxID    string
	Backups []BackupDescriptor
}

// AtomicMultiWrite applies every write or none.
//
// Sequence:
//  1. Back up every target table. Any backup failure aborts before any
//     file is touched (ErrBackupFailure).
//  2. Validate every record sequence. Any violation aborts before any
//     file is touched (*SchemaError).
//  3. Write each table in turn. If a write fails, every table already
//     written is restored from its step-1 backup and a *AtomicError lists
//     what was rolled back.
//  4. On success, return the backup descriptors.
//
// There is no cross-file lock, so a concurrent reader may transiently see
// some tables updated and others not while step 3 runs; after the call
// returns the set is all-new or byte-identical to the pre-call state.
// Once step 3 starts the transaction runs to completion; ctx is only
// honored up to that point.
func (s *Store) AtomicMultiWrite(ctx context.Context, writes []Write) (*TxResult, error) {
	if len(writes) == 0 {
		return &TxResult{}, nil
	}

	txID := newTxID()

	seen := make(map[string]bool, len(writes))

	for _, w := range writes {
		if seen[w.Table] {
			return nil, fmt.Errorf("tx %s: table %s named twice", txID, w.Table)
		}

		seen[w.Table] = true

		if _, ok := s.reg.Lookup(w.Table); !ok {
			return nil, fmt.Errorf("tx %s: %s: %w", txID, w.Table, ErrTableUnknown)
		}
	}

	// Step 1: backups. No file is mutated yet, so failure needs no cleanup.
	backups := make([]BackupDescriptor, 0, len(writes))

	for _, w := range writes {
		desc, err := s.Backup(w.Table)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w: %w", txID, ErrBackupFailure, err)
		}

		backups = append(backups, desc)
	}

	// Step 2: validate everything up front.
	for _, w := range writes {
		schema, _ := s.reg.Lookup(w.Table)

		violations := schema.Validate(w.Records)
		if len(violations) > 0 {
			return nil, &SchemaError{Table: w.Table, Violations: violations}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tx %s: %w", txID, err)
	}

	// Step 3: write each table; from here the transaction runs to
	// completion, commit or full rollback.
	for i, w := range writes {
		err := s.WriteTable(w.Table, w.Records, WriteOptions{SkipValidation: true})
		if err == nil {
			continue
		}

		// The failing table is restored too, not just the ones before it.
		restoreErr := s.rollback(backups[:i+1])

		s.log.Error("atomic write failed, rolled back",
			"tx", txID, "table", w.Table, "err", err, "restoreErr", restoreErr)

		return nil, &AtomicError{
			TxID:       txID,
			Table:      w.Table,
			Restored:   tableNames(writes[:i+1]),
			WriteErr:   err,
			RestoreErr: restoreErr,
		}
	}

	s.log.Info("atomic multi-write committed", "tx", txID, "tables", tableNames(writes))

	return &TxResult{TxID: txID, Backups: backups}, nil
}

func (s *Store) rollback(backups []BackupDescriptor) error {
	var errs []error

	for _, desc := range backups {
		err := s.Restore(desc)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func tableNames(writes []Write) []string {
	names := make([]string, 0, len(writes))

	for _, w := range writes {
		names = append(names, w.Table)
	}

	return names
}

// newTxID returns a time-ordered UUID for log correlation, falling back to
// a random one if the clock source misbehaves.
func newTxID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
