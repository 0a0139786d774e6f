package db_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/turrero/turradb/internal/db"
)

func Test_ReadCSVIDs_Extracts_The_ID_Column(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	writeRawFile(t, store, db.FileTurrasCSV,
		"fecha,id,enlace\n2023-01-10,100,https://x.com/Recuenco/status/100\n2023-01-17,200,\n,,\n")

	ids, err := store.ReadCSVIDs(db.FileTurrasCSV)
	if err != nil {
		t.Fatalf("read csv ids: %v", err)
	}

	if diff := cmp.Diff([]string{"100", "200"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func Test_ReadCSVIDs_Missing_File_Is_Empty(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	ids, err := store.ReadCSVIDs(db.FileTurrasCSV)
	if err != nil {
		t.Fatalf("read csv ids: %v", err)
	}

	if len(ids) != 0 {
		t.Fatalf("got %d ids, want 0", len(ids))
	}
}

func Test_ReadCSVIDs_Requires_An_ID_Header(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	writeRawFile(t, store, db.FileTurrasCSV, "fecha,enlace\n2023-01-10,https://x.com\n")

	_, err := store.ReadCSVIDs(db.FileTurrasCSV)
	if err == nil {
		t.Fatal("csv without an id column accepted")
	}
}
