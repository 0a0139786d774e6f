package repair_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/turrero/turradb/internal/db"
	"github.com/turrero/turradb/internal/fs"
	"github.com/turrero/turradb/internal/integrity"
	"github.com/turrero/turradb/internal/repair"
)

// seedFiles is one test dataset: table file names to contents, plus asset
// names to contents.
type seedFiles struct {
	tables map[string]string
	assets map[string]string
}

// brokenSeed has turra 100 missing from tweets_map.json, an orphaned
// summary for 999, and one unreferenced asset.
func brokenSeed() seedFiles {
	return seedFiles{
		tables: map[string]string{
			db.TableTweets: `[
				[{"id":"100","tweet":"root","stats":{"replies":"2","likes":"1.2K"}},{"id":"101","tweet":"reply"}],
				[{"id":"200","tweet":"second"}]
			]`,
			db.TableMap: `[
				{"id":"200","categories":"producto"}
			]`,
			db.TableSummary: `[
				{"id":"100","summary":"El primero"},
				{"id":"200","summary":"El segundo"},
				{"id":"999","summary":"De una turra borrada"}
			]`,
			db.TableExam: `[
				{"id":"100","questions":[]},
				{"id":"200","questions":[]}
			]`,
			db.TableGraph: `[
				{"id":"200","related_threads":[]}
			]`,
			db.TableEnriched: `[
				{"id":"101","type":"card","img":"a.jpg"}
			]`,
			db.FileTurrasCSV: "fecha,id\n2023-01-10,100\n2023-01-17,200\n",
		},
		assets: map[string]string{
			"a.jpg": "referenced",
			"b.jpg": "orphaned asset",
		},
	}
}

func newRepairer(t *testing.T, seed seedFiles, fsys fs.FS) (*repair.Repairer, *db.Store) {
	t.Helper()

	dir := t.TempDir()
	assetDir := filepath.Join(dir, "metadata")

	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		t.Fatalf("mkdir asset dir: %v", err)
	}

	for name, content := range seed.tables {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	for name, content := range seed.assets {
		if err := os.WriteFile(filepath.Join(assetDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write asset %s: %v", name, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := db.Open(db.Config{
		DBDir:    dir,
		AssetDir: assetDir,
		FS:       fsys,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	validator := integrity.NewValidator(store, logger)

	return repair.NewRepairer(store, validator, logger), store
}

func snapshotDir(t *testing.T, dir string) map[string]string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	snap := make(map[string]string, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, readErr := os.ReadFile(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			t.Fatalf("read %s: %v", entry.Name(), readErr)
		}

		snap[entry.Name()] = string(data)
	}

	return snap
}

func Test_DryRun_Plans_Without_Mutating_Anything(t *testing.T) {
	t.Parallel()

	repairer, store := newRepairer(t, brokenSeed(), nil)

	tablesBefore := snapshotDir(t, store.Dir())
	assetsBefore := snapshotDir(t, store.AssetDir())

	outcome, err := repairer.DryRun(context.Background())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	counts := outcome.Plan.Counts()
	if counts.Add != 2 || counts.Remove != 1 || counts.Delete != 1 {
		t.Fatalf("plan counts = %+v, want add=2 remove=1 delete=1", counts)
	}

	if outcome.Applied || outcome.After != nil {
		t.Fatal("dry run claims to have applied repairs")
	}

	if repairer.State() != repair.StateIdle {
		t.Fatalf("state %s after dry run, want idle", repairer.State())
	}

	tablesAfter := snapshotDir(t, store.Dir())
	for name, before := range tablesBefore {
		if tablesAfter[name] != before {
			t.Fatalf("dry run modified %s", name)
		}
	}

	assetsAfter := snapshotDir(t, store.AssetDir())
	for name, before := range assetsBefore {
		if assetsAfter[name] != before {
			t.Fatalf("dry run modified asset %s", name)
		}
	}
}

func Test_Execute_Fixes_Every_AutoFixable_Issue_And_Converges(t *testing.T) {
	t.Parallel()

	repairer, store := newRepairer(t, brokenSeed(), nil)

	outcome, err := repairer.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !outcome.Applied {
		t.Fatal("execute did not apply the plan")
	}

	if !outcome.Converged {
		t.Fatalf("repairs did not converge; remaining issues: %v", outcome.After.Issues)
	}

	if repairer.State() != repair.StateIdle {
		t.Fatalf("state %s after execute, want idle", repairer.State())
	}

	// The backfilled map entry exists and the orphaned summary is gone.
	exists, err := store.Exists(db.TableMap, "100")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}

	if !exists {
		t.Fatal("missing tweets_map.json entry was not backfilled")
	}

	summaries, err := db.ReadAs[db.SummaryRecord](store, db.TableSummary)
	if err != nil {
		t.Fatalf("read summaries: %v", err)
	}

	for _, rec := range summaries {
		if rec.ID == "999" {
			t.Fatal("orphaned summary survived the repair")
		}
	}

	if _, statErr := os.Stat(store.AssetPath("b.jpg")); !os.IsNotExist(statErr) {
		t.Fatal("unused asset was not deleted")
	}

	if _, statErr := os.Stat(store.AssetPath("a.jpg")); statErr != nil {
		t.Fatal("referenced asset was deleted")
	}
}

func Test_Execute_Backfills_Graph_Entries_With_Real_Stats(t *testing.T) {
	t.Parallel()

	repairer, store := newRepairer(t, brokenSeed(), nil)

	_, err := repairer.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	graph, err := db.ReadAs[db.GraphRecord](store, db.TableGraph)
	if err != nil {
		t.Fatalf("read graph: %v", err)
	}

	var rec *db.GraphRecord

	for i := range graph {
		if graph[i].ID == "100" {
			rec = &graph[i]

			break
		}
	}

	if rec == nil {
		t.Fatal("graph entry for turra 100 was not backfilled")
	}

	if rec.Replies != 2 || rec.Likes != 1200 {
		t.Fatalf("backfilled graph entry has stub stats: %+v", rec)
	}
}

func Test_Execute_On_A_Healthy_Dataset_Is_A_NoOp(t *testing.T) {
	t.Parallel()

	seed := brokenSeed()
	seed.tables[db.TableMap] = `[
		{"id":"100","categories":"estrategia"},
		{"id":"200","categories":"producto"}
	]`
	seed.tables[db.TableSummary] = `[
		{"id":"100","summary":"El primero"},
		{"id":"200","summary":"El segundo"}
	]`
	seed.tables[db.TableGraph] = `[
		{"id":"100","related_threads":[]},
		{"id":"200","related_threads":[]}
	]`
	delete(seed.assets, "b.jpg")

	repairer, store := newRepairer(t, seed, nil)

	before := snapshotDir(t, store.Dir())

	outcome, err := repairer.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if outcome.Applied {
		t.Fatal("empty plan was applied")
	}

	if !outcome.Converged {
		t.Fatal("healthy dataset did not converge")
	}

	after := snapshotDir(t, store.Dir())
	for name, content := range before {
		if after[name] != content {
			t.Fatalf("no-op execute modified %s", name)
		}
	}
}

func Test_Execute_Enters_Failed_State_And_Rolls_Back_On_Write_Failure(t *testing.T) {
	t.Parallel()

	flaky := fs.NewFlaky(fs.NewReal())
	repairer, store := newRepairer(t, brokenSeed(), flaky)

	tablesBefore := snapshotDir(t, store.Dir())

	flaky.FailWriteTo(db.TableSummary)

	_, err := repairer.Execute(context.Background())
	if !errors.Is(err, db.ErrAtomicOperation) {
		t.Fatalf("got %v, want ErrAtomicOperation", err)
	}

	if repairer.State() != repair.StateFailed {
		t.Fatalf("state %s after failure, want failed", repairer.State())
	}

	tablesAfter := snapshotDir(t, store.Dir())
	for name := range tablesBefore {
		if tablesAfter[name] != tablesBefore[name] {
			t.Fatalf("failed repair left %s modified", name)
		}
	}

	// Assets are only touched after a committed transaction.
	if _, statErr := os.Stat(store.AssetPath("b.jpg")); statErr != nil {
		t.Fatal("failed repair deleted an asset")
	}
}

func Test_Plan_Describe_Names_Every_Action(t *testing.T) {
	t.Parallel()

	repairer, _ := newRepairer(t, brokenSeed(), nil)

	outcome, err := repairer.DryRun(context.Background())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	lines := outcome.Plan.Describe()
	if len(lines) == 0 {
		t.Fatal("plan description is empty")
	}

	joined := ""
	for _, line := range lines {
		joined += line + "\n"
	}

	for _, want := range []string{
		"add 1 missing entries to " + db.TableGraph,
		"add 1 missing entries to " + db.TableMap,
		"remove 1 orphaned entries from " + db.TableSummary,
		"delete 1 unused asset files",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("description is missing %q:\n%s", want, joined)
		}
	}
}

func Test_Empty_Plan_Describes_Itself(t *testing.T) {
	t.Parallel()

	plan := &repair.Plan{}

	lines := plan.Describe()
	if len(lines) != 1 || lines[0] != "nothing to repair" {
		t.Fatalf("unexpected description: %v", lines)
	}
}
