package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/turrero/turradb/internal/db"
)

// Validator scans all tables plus the asset directory and emits a Report.
// It holds no mutable state between runs.
type Validator struct {
	store *db.Store
	log   *slog.Logger
}

// NewValidator builds a validator over one store.
func NewValidator(store *db.Store, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Validator{store: store, log: logger}
}

// derivedTables are the per-turra tables checked for missing and orphaned
// entries. Each is evaluated independently: one turra can be missing from
// tweets_map.json and present in tweets_summary.json.
var derivedTables = []string{
	db.TableMap,
	db.TableSummary,
	db.TableExam,
	db.TableGraph,
}

// dataset is everything one run reads. Loaded once so every check sees
// the same state.
type dataset struct {
	threads   []db.Thread
	enriched  []db.EnrichmentRecord
	search    []db.SearchEntry
	books     []db.BookRecord
	booksRaw  []db.BookRecord
	summaries []db.SummaryRecord
	derived   map[string][]string // table → record IDs in file order
	csvIDs    []string

	turraIDs map[string]bool
	tweetIDs map[string]bool
	dupIDs   []string // turra IDs seen more than once, in scan order
}

// Run executes every check and aggregates the report. It returns an error
// only for I/O or parse failures; inconsistent data is the report's job.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := v.load()
	if err != nil {
		return nil, err
	}

	var issues []Issue

	issues = append(issues, checkDuplicateIDs(data)...)
	issues = append(issues, checkDerivedTables(data)...)
	issues = append(issues, checkCSV(data)...)
	issues = append(issues, checkBooks(data)...)
	issues = append(issues, checkSearchEntries(data)...)
	issues = append(issues, checkEnrichment(data)...)
	issues = append(issues, checkGraphReferences(data)...)
	issues = append(issues, checkSemanticDuplicates(data)...)

	assetIssues, meta, err := v.checkAssets(data)
	if err != nil {
		return nil, err
	}

	issues = append(issues, assetIssues...)

	sortIssues(issues)

	report := &Report{
		GeneratedAt:      time.Now(),
		OverallStatus:    overallStatus(issues),
		Issues:           issues,
		MetadataAnalysis: meta,
		TurraAnalysis:    turraAnalysis(data, issues),
		Recommendations:  buildRecommendations(issues),
	}

	v.log.Debug("validation finished",
		"status", report.OverallStatus,
		"errors", report.Errors(),
		"warnings", report.Warnings())

	return report, nil
}

func (v *Validator) load() (*dataset, error) {
	data := &dataset{
		derived:  make(map[string][]string),
		turraIDs: make(map[string]bool),
		tweetIDs: make(map[string]bool),
	}

	rawThreads, err := v.store.ReadRaw(db.TableTweets)
	if err != nil {
		return nil, err
	}

	data.threads = decodeLoose[db.Thread](v.log, db.TableTweets, rawThreads)

	for _, thread := range data.threads {
		id := thread.TurraID()
		if id == "" {
			continue
		}

		if data.turraIDs[id] {
			data.dupIDs = append(data.dupIDs, id)
		}

		data.turraIDs[id] = true

		for _, tweet := range thread {
			data.tweetIDs[tweet.ID] = true
		}
	}

	for _, table := range derivedTables {
		raw, readErr := v.store.ReadRaw(table)
		if readErr != nil {
			return nil, readErr
		}

		schema, _ := v.store.Registry().Lookup(table)
		data.derived[table] = db.RecordIDs(schema, raw)

		if table == db.TableSummary {
			data.summaries = decodeLoose[db.SummaryRecord](v.log, table, raw)
		}
	}

	rawEnriched, err := v.store.ReadRaw(db.TableEnriched)
	if err != nil {
		return nil, err
	}

	data.enriched = decodeLoose[db.EnrichmentRecord](v.log, db.TableEnriched, rawEnriched)

	rawSearch, err := v.store.ReadRaw(db.TableSearch)
	if err != nil {
		return nil, err
	}

	data.search = decodeLoose[db.SearchEntry](v.log, db.TableSearch, rawSearch)

	rawBooks, err := v.store.ReadRaw(db.TableBooks)
	if err != nil {
		return nil, err
	}

	data.books = decodeLoose[db.BookRecord](v.log, db.TableBooks, rawBooks)

	rawBooksRaw, err := v.store.ReadRaw(db.TableBooksRaw)
	if err != nil {
		return nil, err
	}

	data.booksRaw = decodeLoose[db.BookRecord](v.log, db.TableBooksRaw, rawBooksRaw)

	data.csvIDs, err = v.store.ReadCSVIDs(db.FileTurrasCSV)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// decodeLoose decodes records one by one, skipping those that fail so one
// malformed record cannot hide every other finding in the table.
func decodeLoose[T any](logger *slog.Logger, table string, records []json.RawMessage) []T {
	out := make([]T, 0, len(records))

	for i, raw := range records {
		var v T

		err := json.Unmarshal(raw, &v)
		if err != nil {
			logger.Debug("skipping undecodable record", "table", table, "index", i, "err", err)

			continue
		}

		out = append(out, v)
	}

	return out
}

func checkDuplicateIDs(data *dataset) []Issue {
	issues := make([]Issue, 0, len(data.dupIDs))

	for _, id := range data.dupIDs {
		issues = append(issues, Issue{
			Type:            IssueDuplicateID,
			Severity:        SeverityError,
			FileName:        db.TableTweets,
			RecordID:        id,
			Message:         fmt.Sprintf("two threads share turra ID %s", id),
			SuggestedAction: "merge or delete one of the duplicate threads manually",
		})
	}

	return issues
}

func checkDerivedTables(data *dataset) []Issue {
	var issues []Issue

	for _, table := range derivedTables {
		present := make(map[string]bool, len(data.derived[table]))
		for _, id := range data.derived[table] {
			present[id] = true
		}

		// Iterate threads, not the ID set, to keep output order stable.
		for _, thread := range data.threads {
			id := thread.TurraID()
			if id == "" || present[id] {
				continue
			}

			issues = append(issues, Issue{
				Type:             IssueMissingTurra,
				Severity:         SeverityWarning,
				FileName:         table,
				RecordID:         id,
				Message:          fmt.Sprintf("turra %s has no entry in %s", id, table),
				SuggestedAction:  fmt.Sprintf("add a %s entry for turra %s", table, id),
				AutoFixAvailable: true,
			})
		}

		for _, id := range data.derived[table] {
			if data.turraIDs[id] {
				continue
			}

			issues = append(issues, Issue{
				Type:             IssueOrphanedTurra,
				Severity:         SeverityWarning,
				FileName:         table,
				RecordID:         id,
				Message:          fmt.Sprintf("%s entry %s references a nonexistent turra", table, id),
				SuggestedAction:  fmt.Sprintf("remove the orphaned %s entry %s", table, id),
				AutoFixAvailable: true,
			})
		}
	}

	return issues
}

// checkCSV cross-checks turras.csv the way the rest of the derived tables
// are checked, but the CSV belongs to the exporter, so neither direction
// is auto-fixable here.
func checkCSV(data *dataset) []Issue {
	if data.csvIDs == nil {
		return nil
	}

	present := make(map[string]bool, len(data.csvIDs))
	for _, id := range data.csvIDs {
		present[id] = true
	}

	var issues []Issue

	for _, thread := range data.threads {
		id := thread.TurraID()
		if id == "" || present[id] {
			continue
		}

		issues = append(issues, Issue{
			Type:            IssueMissingTurra,
			Severity:        SeverityWarning,
			FileName:        db.FileTurrasCSV,
			RecordID:        id,
			Message:         fmt.Sprintf("turra %s has no row in %s", id, db.FileTurrasCSV),
			SuggestedAction: "re-run the CSV exporter",
		})
	}

	for _, id := range data.csvIDs {
		if data.turraIDs[id] {
			continue
		}

		issues = append(issues, Issue{
			Type:            IssueOrphanedTurra,
			Severity:        SeverityWarning,
			FileName:        db.FileTurrasCSV,
			RecordID:        id,
			Message:         fmt.Sprintf("%s row %s references a nonexistent turra", db.FileTurrasCSV, id),
			SuggestedAction: "re-run the CSV exporter",
		})
	}

	return issues
}

// checkBooks flags orphaned book entries. Books are optional per turra,
// so there is no missing-side check.
func checkBooks(data *dataset) []Issue {
	var issues []Issue

	check := func(table string, records []db.BookRecord) {
		for _, book := range records {
			if book.ID == "" || data.turraIDs[book.ID] {
				continue
			}

			issues = append(issues, Issue{
				Type:             IssueOrphanedTurra,
				Severity:         SeverityWarning,
				FileName:         table,
				RecordID:         book.ID,
				Message:          fmt.Sprintf("%s entry %s references a nonexistent turra", table, book.ID),
				SuggestedAction:  fmt.Sprintf("remove the orphaned %s entry %s", table, book.ID),
				AutoFixAvailable: true,
			})
		}
	}

	check(db.TableBooks, data.books)
	check(db.TableBooksRaw, data.booksRaw)

	return issues
}

func checkSearchEntries(data *dataset) []Issue {
	var issues []Issue

	for _, entry := range data.search {
		turraID := entry.TurraID()

		if !data.turraIDs[turraID] {
			issues = append(issues, Issue{
				Type:             IssueOrphanedTurra,
				Severity:         SeverityWarning,
				FileName:         db.TableSearch,
				RecordID:         entry.ID,
				Message:          fmt.Sprintf("search entry %s references a nonexistent turra", entry.ID),
				SuggestedAction:  fmt.Sprintf("remove the orphaned search entry %s", entry.ID),
				AutoFixAvailable: true,
			})

			continue
		}

		// The tweet half of the key must resolve too.
		if idx := len(turraID); idx < len(entry.ID) {
			tweetID := entry.ID[idx+1:]
			if tweetID != "" && !data.tweetIDs[tweetID] {
				issues = append(issues, Issue{
					Type:            IssueMissingRef,
					Severity:        SeverityError,
					FileName:        db.TableSearch,
					RecordID:        entry.ID,
					Message:         fmt.Sprintf("search entry %s references unknown tweet %s", entry.ID, tweetID),
					SuggestedAction: "rebuild the search index for this turra",
				})
			}
		}
	}

	return issues
}

func checkEnrichment(data *dataset) []Issue {
	var issues []Issue

	for _, rec := range data.enriched {
		if data.tweetIDs[rec.ID] {
			continue
		}

		issues = append(issues, Issue{
			Type:            IssueInvalidRef,
			Severity:        SeverityError,
			FileName:        db.TableEnriched,
			RecordID:        rec.ID,
			Message:         fmt.Sprintf("enrichment record %s matches no known tweet", rec.ID),
			SuggestedAction: "verify the tweet ID or delete the enrichment record",
		})
	}

	return issues
}

// checkGraphReferences verifies the embed-derived cross-links stored in
// the graph table still resolve.
func checkGraphReferences(data *dataset) []Issue {
	var issues []Issue

	for _, thread := range data.threads {
		for _, tweet := range thread {
			if tweet.Metadata == nil || tweet.Metadata.Embed == nil {
				continue
			}

			embed := tweet.Metadata.Embed
			if embed.Type != "embed" || embed.ID == "" {
				continue
			}

			// Embeds of external posts are normal; only self-referencing
			// archive IDs that dangle are findings.
			if embed.ID == tweet.ID {
				issues = append(issues, Issue{
					Type:            IssueInvalidRef,
					Severity:        SeverityError,
					FileName:        db.TableTweets,
					RecordID:        tweet.ID,
					Message:         fmt.Sprintf("tweet %s embeds itself", tweet.ID),
					SuggestedAction: "fix the embed metadata of the tweet",
				})
			}
		}
	}

	return issues
}

// checkSemanticDuplicates flags summaries that normalize to the same text
// and double-claimed embedded references. Both need human judgement, so
// they are never auto-fixed.
func checkSemanticDuplicates(data *dataset) []Issue {
	var issues []Issue

	seenSummary := make(map[string]string) // normalized text → first turra ID

	for _, rec := range data.summaries {
		norm := normalizeText(rec.Summary)
		if norm == "" {
			continue
		}

		if first, dup := seenSummary[norm]; dup {
			issues = append(issues, Issue{
				Type:            IssueSemanticDup,
				Severity:        SeverityWarning,
				FileName:        db.TableSummary,
				RecordID:        rec.ID,
				Message:         fmt.Sprintf("summary of %s duplicates summary of %s", rec.ID, first),
				SuggestedAction: "rewrite one of the duplicate summaries",
			})

			continue
		}

		seenSummary[norm] = rec.ID
	}

	seenEmbed := make(map[string]bool) // "recordID|url"

	for _, rec := range data.enriched {
		if rec.Kind != "embed" || rec.URL == "" {
			continue
		}

		key := rec.ID + "|" + rec.URL
		if seenEmbed[key] {
			issues = append(issues, Issue{
				Type:            IssueSemanticDup,
				Severity:        SeverityWarning,
				FileName:        db.TableEnriched,
				RecordID:        rec.ID,
				Message:         fmt.Sprintf("embedded reference %s claimed twice for tweet %s", rec.URL, rec.ID),
				SuggestedAction: "remove one of the duplicate enrichment records",
			})

			continue
		}

		seenEmbed[key] = true
	}

	return issues
}

func turraAnalysis(data *dataset, issues []Issue) TurraAnalysis {
	analysis := TurraAnalysis{TotalTurras: len(data.turraIDs)}

	for _, issue := range issues {
		switch issue.Type {
		case IssueMissingTurra:
			analysis.MissingLinks++
		case IssueOrphanedTurra:
			analysis.OrphanedLinks++
		}
	}

	// A turra is linked when every core derived table has its entry.
	for id := range data.turraIDs {
		linked := true

		for _, table := range derivedTables {
			found := false

			for _, derivedID := range data.derived[table] {
				if derivedID == id {
					found = true

					break
				}
			}

			if !found {
				linked = false

				break
			}
		}

		if linked {
			analysis.LinkedTurras++
		}
	}

	return analysis
}
