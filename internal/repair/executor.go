package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/turrero/turradb/internal/db"
	"github.com/turrero/turradb/internal/integrity"
)

// Execute analyzes, plans, and applies every auto-fixable category in one
// multi-table transaction, then deletes confirmed unused assets and
// re-validates. On a coordinator failure the engine enters Failed and the
// tables keep their pre-call bytes.
func (r *Repairer) Execute(ctx context.Context) (*Outcome, error) {
	r.setState(StateAnalyzing)

	before, err := r.validator.Run(ctx)
	if err != nil {
		r.setState(StateIdle)

		return nil, err
	}

	r.setState(StatePlanning)

	plan := buildPlan(before)
	outcome := &Outcome{Plan: plan, Before: before}

	if plan.Empty() {
		r.setState(StateReporting)
		defer r.setState(StateIdle)

		outcome.Converged = true

		return outcome, nil
	}

	r.setState(StateApplying)

	writes, err := r.buildWrites(plan)
	if err != nil {
		r.setState(StateFailed)

		return nil, err
	}

	if len(writes) > 0 {
		_, err = r.store.AtomicMultiWrite(ctx, writes)
		if err != nil {
			r.setState(StateFailed)

			return nil, fmt.Errorf("apply repairs: %w", err)
		}
	}

	// Asset deletes happen only after the table writes committed, so a
	// rolled-back transaction never leaves records pointing at nothing.
	for _, rel := range plan.DeleteAssets {
		removeErr := r.store.RemoveAsset(rel)
		if removeErr != nil {
			r.log.Warn("could not delete unused asset", "asset", rel, "err", removeErr)
		}
	}

	outcome.Applied = true

	r.setState(StateVerifying)

	after, err := r.validator.Run(ctx)
	if err != nil {
		r.setState(StateFailed)

		return nil, fmt.Errorf("verify repairs: %w", err)
	}

	outcome.After = after
	outcome.Converged = converged(after)

	r.setState(StateReporting)
	defer r.setState(StateIdle)

	return outcome, nil
}

// buildWrites merges the add/remove actions per table into full
// replacement record sequences for the coordinator.
func (r *Repairer) buildWrites(plan *Plan) ([]db.Write, error) {
	tables := make(map[string]bool)

	for table := range plan.AddMissing {
		tables[table] = true
	}

	for table := range plan.RemoveOrphaned {
		tables[table] = true
	}

	graph, err := r.graphRecords(plan)
	if err != nil {
		return nil, err
	}

	var writes []db.Write

	for _, table := range sortedKeys(tables) {
		records, readErr := r.store.ReadRaw(table)
		if readErr != nil {
			return nil, readErr
		}

		schema, _ := r.store.Registry().Lookup(table)

		drop := make(map[string]bool, len(plan.RemoveOrphaned[table]))
		for _, id := range plan.RemoveOrphaned[table] {
			drop[id] = true
		}

		kept := make([]json.RawMessage, 0, len(records))

		for _, raw := range records {
			id, idErr := schema.RecordID(raw)
			if idErr == nil && drop[id] {
				continue
			}

			kept = append(kept, raw)
		}

		for _, id := range plan.AddMissing[table] {
			stub, stubErr := defaultRecord(table, id, graph)
			if stubErr != nil {
				return nil, stubErr
			}

			kept = append(kept, stub)
		}

		writes = append(writes, db.Write{Table: table, Records: kept})
	}

	return writes, nil
}

// graphRecords rebuilds the graph table records when the plan backfills
// processed_graph_data.json, so new entries carry real aggregated stats
// instead of zeroed stubs.
func (r *Repairer) graphRecords(plan *Plan) (map[string]db.GraphRecord, error) {
	if len(plan.AddMissing[db.TableGraph]) == 0 {
		return nil, nil
	}

	threads, err := db.ReadAs[db.Thread](r.store, db.TableTweets)
	if err != nil {
		return nil, err
	}

	summaries, err := db.ReadAs[db.SummaryRecord](r.store, db.TableSummary)
	if err != nil {
		return nil, err
	}

	categories, err := db.ReadAs[db.CategoryRecord](r.store, db.TableMap)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]db.GraphRecord)

	for _, rec := range db.BuildGraphRecords(threads, summaries, categories) {
		byID[rec.ID] = rec
	}

	return byID, nil
}

// defaultRecord builds the backfill entry for one missing turra.
func defaultRecord(table, id string, graph map[string]db.GraphRecord) (json.RawMessage, error) {
	var record any

	switch table {
	case db.TableMap:
		record = db.CategoryRecord{ID: id, Categories: ""}
	case db.TableSummary:
		record = db.SummaryRecord{ID: id, Summary: ""}
	case db.TableExam:
		record = db.ExamRecord{ID: id, Questions: []db.ExamQuestion{}}
	case db.TableGraph:
		rec, ok := graph[id]
		if !ok {
			return nil, fmt.Errorf("rebuild graph: no thread data for turra %s", id)
		}

		record = rec
	default:
		return nil, fmt.Errorf("no backfill template for table %s", table)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode backfill record for %s: %w", table, err)
	}

	return data, nil
}

// converged reports whether any auto-fixable issue survived the repair.
func converged(report *integrity.Report) bool {
	for _, issue := range report.Issues {
		if issue.AutoFixAvailable {
			return false
		}
	}

	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
