package db

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BackupDescriptor identifies one snapshot of one table file.
//
// Missing marks a backup of a table that did not exist yet; restoring such
// a descriptor removes the live file, returning the table to "unborn".
type BackupDescriptor struct {
	Table     string    `json:"table"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Missing   bool      `json:"missing,omitempty"`
}

const backupInfix = ".backup."

// Backup snapshots the live table file to <name>.backup.<unix-millis> in
// the same directory. A missing source is a warning, not a failure: the
// returned descriptor records the absence so Restore can undo a later
// first write. Backups accumulate; nothing here ever prunes them.
func (s *Store) Backup(name string) (BackupDescriptor, error) {
	if _, ok := s.reg.Lookup(name); !ok {
		return BackupDescriptor{}, fmt.Errorf("backup %s: %w", name, ErrTableUnknown)
	}

	now := time.Now()
	desc := BackupDescriptor{
		Table:     name,
		CreatedAt: now,
	}

	data, err := s.fsys.ReadFile(s.TablePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			desc.Missing = true
			s.log.Warn("backup source missing", "table", name)

			return desc, nil
		}

		return BackupDescriptor{}, fmt.Errorf("backup %s: %w", name, err)
	}

	desc.Path = s.TablePath(name + backupInfix + strconv.FormatInt(now.UnixMilli(), 10))

	err = s.fsys.WriteFile(desc.Path, data)
	if err != nil {
		return BackupDescriptor{}, fmt.Errorf("backup %s: %w", name, err)
	}

	s.log.Debug("backup created", "table", name, "path", desc.Path)

	return desc, nil
}

// Restore copies a snapshot back over the live table file. For a Missing
// descriptor it removes the live file instead.
func (s *Store) Restore(desc BackupDescriptor) error {
	if desc.Table == "" {
		return fmt.Errorf("restore: descriptor has no table")
	}

	live := s.TablePath(desc.Table)

	if desc.Missing {
		err := s.fsys.Remove(live)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("restore %s: %w", desc.Table, err)
		}

		return nil
	}

	data, err := s.fsys.ReadFile(desc.Path)
	if err != nil {
		return fmt.Errorf("restore %s: read snapshot: %w", desc.Table, err)
	}

	err = s.fsys.WriteFile(live, data)
	if err != nil {
		return fmt.Errorf("restore %s: %w", desc.Table, err)
	}

	s.log.Info("table restored from backup", "table", desc.Table, "backup", desc.Path)

	return nil
}

// ListBackups returns every snapshot of a table, oldest first.
func (s *Store) ListBackups(name string) ([]BackupDescriptor, error) {
	entries, err := s.fsys.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	prefix := name + backupInfix

	var backups []BackupDescriptor

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		millis, parseErr := strconv.ParseInt(strings.TrimPrefix(entry.Name(), prefix), 10, 64)
		if parseErr != nil {
			continue
		}

		backups = append(backups, BackupDescriptor{
			Table:     name,
			Path:      s.TablePath(entry.Name()),
			CreatedAt: time.UnixMilli(millis),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})

	return backups, nil
}
