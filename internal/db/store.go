package db

import (
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/turrero/turradb/internal/fs"
)

// Config carries everything a Store needs. It is built once per process
// and passed in explicitly; components never reach for globals.
type Config struct {
	// DBDir is the directory holding the table files.
	DBDir string

	// AssetDir is the flat directory of media files referenced by
	// enrichment records. Paths inside records are relative to it.
	AssetDir string

	// Registry defaults to DefaultRegistry when nil.
	Registry *Registry

	// FS defaults to the real filesystem when nil.
	FS fs.FS

	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// Store is the typed read/validate/write layer over one table directory.
//
// All mutations of table files in this repository go through Store
// primitives (WriteTable, Upsert, Remove) or the transaction coordinator;
// nothing edits a table file partially.
type Store struct {
	dir      string
	assetDir string
	reg      *Registry
	fsys     fs.FS
	log      *slog.Logger
}

// Open validates the configuration and returns a Store. The table
// directory must exist; individual table files are created by their first
// writer.
func Open(cfg Config) (*Store, error) {
	if cfg.DBDir == "" {
		return nil, errors.New("open store: db dir is empty")
	}

	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}

	if cfg.FS == nil {
		cfg.FS = fs.NewReal()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir := filepath.Clean(cfg.DBDir)

	info, err := cfg.FS.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: stat db dir: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("open store: %q is not a directory", dir)
	}

	assetDir := cfg.AssetDir
	if assetDir != "" {
		assetDir = filepath.Clean(assetDir)
	}

	return &Store{
		dir:      dir,
		assetDir: assetDir,
		reg:      cfg.Registry,
		fsys:     cfg.FS,
		log:      cfg.Logger,
	}, nil
}

// Registry returns the schema registry the store was opened with.
func (s *Store) Registry() *Registry { return s.reg }

// Dir returns the table directory.
func (s *Store) Dir() string { return s.dir }

// AssetDir returns the media asset directory ("" when unconfigured).
func (s *Store) AssetDir() string { return s.assetDir }

// TablePath returns the absolute path of a table file.
func (s *Store) TablePath(name string) string {
	return filepath.Join(s.dir, name)
}

// AssetPath resolves a record-relative asset path against the asset dir.
func (s *Store) AssetPath(rel string) string {
	return filepath.Join(s.assetDir, filepath.FromSlash(rel))
}

// StatAsset stats a record-relative asset path.
func (s *Store) StatAsset(rel string) (os.FileInfo, error) {
	return s.fsys.Stat(s.AssetPath(rel))
}

// ReadAssetDir lists the asset directory.
func (s *Store) ReadAssetDir() ([]iofs.DirEntry, error) {
	return s.fsys.ReadDir(s.assetDir)
}

// RemoveAsset deletes one asset file by record-relative path.
func (s *Store) RemoveAsset(rel string) error {
	err := s.fsys.Remove(s.AssetPath(rel))
	if err != nil {
		return fmt.Errorf("remove asset %s: %w", rel, err)
	}

	return nil
}

// ReadTable loads, parses and schema-validates one table.
//
// A missing optional table reads as an empty sequence. A missing required
// table returns ErrFileNotFound, a parse failure ErrInvalidJSON, and field
// violations a *SchemaError listing every failing field.
func (s *Store) ReadTable(name string) ([]json.RawMessage, error) {
	records, schema, err := s.readRaw(name)
	if err != nil {
		return nil, err
	}

	violations := schema.Validate(records)
	if len(violations) > 0 {
		return nil, &SchemaError{Table: name, Violations: violations}
	}

	return records, nil
}

// ReadRaw loads and parses one table without the schema gate. The
// integrity validator uses it so that field-level violations surface as
// findings instead of aborting the whole scan.
func (s *Store) ReadRaw(name string) ([]json.RawMessage, error) {
	records, _, err := s.readRaw(name)

	return records, err
}

func (s *Store) readRaw(name string) ([]json.RawMessage, *Schema, error) {
	schema, ok := s.reg.Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("read %s: %w", name, ErrTableUnknown)
	}

	data, err := s.fsys.ReadFile(s.TablePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			if schema.IsRequired() {
				return nil, nil, fmt.Errorf("read %s: %w", name, ErrFileNotFound)
			}

			return []json.RawMessage{}, schema, nil
		}

		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}

	var records []json.RawMessage

	err = json.Unmarshal(data, &records)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w: %w", name, ErrInvalidJSON, err)
	}

	return records, schema, nil
}

// WriteOptions configures WriteTable.
type WriteOptions struct {
	// SkipValidation writes the records without the schema gate. Reserved
	// for repair paths that must persist known-bad data for inspection.
	SkipValidation bool
}

// WriteTable validates and atomically replaces one table file.
//
// Output formatting is deterministic: two-space indentation, one trailing
// newline, record field order preserved from the input bytes, so diffs of
// producer runs stay reviewable. WriteTable takes no implicit backup;
// callers that need rollback use AtomicMultiWrite.
func (s *Store) WriteTable(name string, records []json.RawMessage, opts WriteOptions) error {
	schema, ok := s.reg.Lookup(name)
	if !ok {
		return fmt.Errorf("write %s: %w", name, ErrTableUnknown)
	}

	if !opts.SkipValidation {
		violations := schema.Validate(records)
		if len(violations) > 0 {
			return &SchemaError{Table: name, Violations: violations}
		}
	}

	data, err := marshalTable(records)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	err = s.fsys.WriteFile(s.TablePath(name), data)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	s.log.Debug("table written", "table", name, "records", len(records))

	return nil
}

// Exists reports whether a record with the given ID is present in a table
// (for thread tables, whether a turra with that root ID exists).
func (s *Store) Exists(table, id string) (bool, error) {
	records, err := s.ReadTable(table)
	if err != nil {
		return false, err
	}

	schema, _ := s.reg.Lookup(table)

	for _, raw := range records {
		recID, idErr := schema.RecordID(raw)
		if idErr != nil {
			continue
		}

		if recID == id {
			return true, nil
		}
	}

	return false, nil
}

// Upsert replaces the record with the given ID, or appends it when absent.
// This is the single shared mutation path producers use instead of ad hoc
// filter-and-append loops.
func (s *Store) Upsert(table, id string, record json.RawMessage) error {
	records, err := s.ReadTable(table)
	if err != nil {
		return err
	}

	schema, _ := s.reg.Lookup(table)
	replaced := false

	for i, raw := range records {
		recID, idErr := schema.RecordID(raw)
		if idErr != nil {
			continue
		}

		if recID == id {
			records[i] = record
			replaced = true

			break
		}
	}

	if !replaced {
		records = append(records, record)
	}

	return s.WriteTable(table, records, WriteOptions{})
}

// Remove deletes the record with the given ID. Removing an absent ID is a
// no-op, so repairs can be replayed safely.
func (s *Store) Remove(table, id string) error {
	records, err := s.ReadTable(table)
	if err != nil {
		return err
	}

	schema, _ := s.reg.Lookup(table)
	kept := make([]json.RawMessage, 0, len(records))

	for _, raw := range records {
		recID, idErr := schema.RecordID(raw)
		if idErr == nil && recID == id {
			continue
		}

		kept = append(kept, raw)
	}

	if len(kept) == len(records) {
		return nil
	}

	return s.WriteTable(table, kept, WriteOptions{})
}

// marshalTable renders records with fixed two-space indentation. Raw
// record bytes pass through encoding/json, which preserves their key
// order while normalizing whitespace.
func marshalTable(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal table: %w", err)
	}

	return append(data, '\n'), nil
}

// RecordIDs extracts the ID of every record in order, skipping records
// whose ID cannot be derived.
func RecordIDs(schema *Schema, records []json.RawMessage) []string {
	ids := make([]string, 0, len(records))

	for _, raw := range records {
		id, err := schema.RecordID(raw)
		if err != nil || id == "" {
			continue
		}

		ids = append(ids, id)
	}

	return ids
}
