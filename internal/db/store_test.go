package db_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/turrero/turradb/internal/db"
	"github.com/turrero/turradb/internal/fs"
)

func newTestStore(t *testing.T, fsys fs.FS) *db.Store {
	t.Helper()

	dir := t.TempDir()
	assetDir := filepath.Join(dir, "metadata")

	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		t.Fatalf("mkdir asset dir: %v", err)
	}

	store, err := db.Open(db.Config{
		DBDir:    dir,
		AssetDir: assetDir,
		FS:       fsys,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	return store
}

func writeRawFile(t *testing.T, store *db.Store, name, content string) {
	t.Helper()

	if err := os.WriteFile(store.TablePath(name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func readRawFile(t *testing.T, store *db.Store, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(store.TablePath(name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}

	return data
}

func rawRecords(t *testing.T, lits ...string) []json.RawMessage {
	t.Helper()

	records := make([]json.RawMessage, 0, len(lits))
	for _, lit := range lits {
		records = append(records, json.RawMessage(lit))
	}

	return records
}

func Test_WriteTable_Then_ReadTable_Returns_Equal_Records_In_Order(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	want := rawRecords(t,
		`{"id":"200","categories":"estrategia"}`,
		`{"id":"100","categories":"liderazgo,gestión"}`,
		`{"id":"300","categories":""}`,
	)

	if err := store.WriteTable(db.TableMap, want, db.WriteOptions{}); err != nil {
		t.Fatalf("write table: %v", err)
	}

	got, err := store.ReadTable(db.TableMap)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}

	schema, _ := store.Registry().Lookup(db.TableMap)

	gotIDs := db.RecordIDs(schema, got)
	if diff := cmp.Diff([]string{"200", "100", "300"}, gotIDs); diff != "" {
		t.Fatalf("record order changed (-want +got):\n%s", diff)
	}
}

func Test_WriteTable_Output_Is_Deterministic(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	records := rawRecords(t,
		`{"id":"100","summary":"Sobre la estrategia"}`,
		`{"id":"200","summary":"Sobre el producto"}`,
	)

	if err := store.WriteTable(db.TableSummary, records, db.WriteOptions{}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	first := readRawFile(t, store, db.TableSummary)

	if err := store.WriteTable(db.TableSummary, records, db.WriteOptions{}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	second := readRawFile(t, store, db.TableSummary)

	if string(first) != string(second) {
		t.Fatal("two writes of the same records produced different bytes")
	}

	if first[len(first)-1] != '\n' {
		t.Fatal("output does not end with a newline")
	}
}

func Test_WriteTable_Preserves_Record_Key_Order(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	// "summary" before "id", counter to struct or alphabetical order.
	records := rawRecords(t, `{"summary":"texto","id":"100"}`)

	if err := store.WriteTable(db.TableSummary, records, db.WriteOptions{}); err != nil {
		t.Fatalf("write table: %v", err)
	}

	want := "[\n  {\n    \"summary\": \"texto\",\n    \"id\": \"100\"\n  }\n]\n"

	got := string(readRawFile(t, store, db.TableSummary))
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func Test_WriteTable_Rejects_Schema_Violations(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	err := store.WriteTable(db.TableMap, rawRecords(t, `{"id":"100"}`), db.WriteOptions{})
	if !errors.Is(err, db.ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}

	var schemaErr *db.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("error is not a *SchemaError: %v", err)
	}

	if len(schemaErr.Violations) != 1 || schemaErr.Violations[0].Field != "categories" {
		t.Fatalf("unexpected violations: %v", schemaErr.Violations)
	}

	if _, statErr := os.Stat(store.TablePath(db.TableMap)); !os.IsNotExist(statErr) {
		t.Fatal("rejected write still created the table file")
	}
}

func Test_ReadTable_Missing_Optional_Table_Is_Empty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	records, err := store.ReadTable(db.TableEnriched)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}

	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func Test_ReadTable_Missing_Required_Table_Fails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	_, err := store.ReadTable(db.TableTweets)
	if !errors.Is(err, db.ErrFileNotFound) {
		t.Fatalf("got %v, want ErrFileNotFound", err)
	}
}

func Test_ReadTable_Malformed_JSON_Fails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	writeRawFile(t, store, db.TableMap, `[{"id":"100",`)

	_, err := store.ReadTable(db.TableMap)
	if !errors.Is(err, db.ErrInvalidJSON) {
		t.Fatalf("got %v, want ErrInvalidJSON", err)
	}
}

func Test_ReadTable_Unknown_Table_Fails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	_, err := store.ReadTable("mystery.json")
	if !errors.Is(err, db.ErrTableUnknown) {
		t.Fatalf("got %v, want ErrTableUnknown", err)
	}
}

func Test_ReadRaw_Skips_The_Schema_Gate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	writeRawFile(t, store, db.TableMap, `[{"id":"100"}]`)

	records, err := store.ReadRaw(db.TableMap)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func Test_Upsert_Replaces_Existing_And_Appends_New(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	seed := rawRecords(t,
		`{"id":"100","categories":"estrategia"}`,
		`{"id":"200","categories":"producto"}`,
	)
	if err := store.WriteTable(db.TableMap, seed, db.WriteOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.Upsert(db.TableMap, "100", json.RawMessage(`{"id":"100","categories":"liderazgo"}`))
	if err != nil {
		t.Fatalf("upsert existing: %v", err)
	}

	err = store.Upsert(db.TableMap, "300", json.RawMessage(`{"id":"300","categories":"historia"}`))
	if err != nil {
		t.Fatalf("upsert new: %v", err)
	}

	records, err := db.ReadAs[db.CategoryRecord](store, db.TableMap)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	want := []db.CategoryRecord{
		{ID: "100", Categories: "liderazgo"},
		{ID: "200", Categories: "producto"},
		{ID: "300", Categories: "historia"},
	}

	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func Test_Remove_Deletes_Record_And_Is_Idempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	seed := rawRecords(t,
		`{"id":"100","categories":"estrategia"}`,
		`{"id":"200","categories":"producto"}`,
	)
	if err := store.WriteTable(db.TableMap, seed, db.WriteOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.Remove(db.TableMap, "100"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := store.Remove(db.TableMap, "100"); err != nil {
		t.Fatalf("second remove: %v", err)
	}

	exists, err := store.Exists(db.TableMap, "100")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}

	if exists {
		t.Fatal("record still present after remove")
	}

	exists, err = store.Exists(db.TableMap, "200")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}

	if !exists {
		t.Fatal("remove dropped an unrelated record")
	}
}

func Test_Exists_Resolves_Thread_Tables_By_Root_Tweet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	writeRawFile(t, store, db.TableTweets,
		`[[{"id":"100","tweet":"root"},{"id":"101","tweet":"reply"}]]`)

	exists, err := store.Exists(db.TableTweets, "100")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}

	if !exists {
		t.Fatal("thread not found by its root tweet id")
	}

	exists, err = store.Exists(db.TableTweets, "101")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}

	if exists {
		t.Fatal("non-root tweet id resolved as a turra")
	}
}

func Test_Open_Requires_An_Existing_DB_Dir(t *testing.T) {
	t.Parallel()

	_, err := db.Open(db.Config{DBDir: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("open succeeded on a missing directory")
	}
}
