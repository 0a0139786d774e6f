// Package repair turns validator findings into dry-run plans or guided
// fixes. Every table mutation goes through the transaction coordinator,
// so a failed fix never leaves tables partially repaired.
package repair

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/turrero/turradb/internal/db"
	"github.com/turrero/turradb/internal/integrity"
)

// State of the repair engine. Transitions:
//
//	Idle → Analyzing → Planning → (dry-run) Reporting → Idle
//	                 └→ (execute) Applying → Verifying → Reporting → Idle
//
// Applying moves to Failed on any coordinator failure.
type State int

const (
	StateIdle State = iota
	StateAnalyzing
	StatePlanning
	StateApplying
	StateVerifying
	StateReporting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAnalyzing:
		return "analyzing"
	case StatePlanning:
		return "planning"
	case StateApplying:
		return "applying"
	case StateVerifying:
		return "verifying"
	case StateReporting:
		return "reporting"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Plan classifies every finding into concrete actions. Manual-only issues
// are carried along for reporting but never acted on.
type Plan struct {
	AddMissing     map[string][]string // table → turra IDs to backfill
	RemoveOrphaned map[string][]string // table → record IDs to drop
	DeleteAssets   []string            // asset-dir-relative paths
	ManualReview   []integrity.Issue
}

// Counts summarizes a plan for dry-run output.
type Counts struct {
	Add    int
	Remove int
	Delete int
	Manual int
}

// Counts totals the planned actions.
func (p *Plan) Counts() Counts {
	c := Counts{
		Delete: len(p.DeleteAssets),
		Manual: len(p.ManualReview),
	}

	for _, ids := range p.AddMissing {
		c.Add += len(ids)
	}

	for _, ids := range p.RemoveOrphaned {
		c.Remove += len(ids)
	}

	return c
}

// Empty reports whether the plan has no automatic actions.
func (p *Plan) Empty() bool {
	c := p.Counts()

	return c.Add == 0 && c.Remove == 0 && c.Delete == 0
}

// Outcome is the result of one dry-run or execute pass.
type Outcome struct {
	Plan    *Plan
	Before  *integrity.Report
	After   *integrity.Report // nil for dry runs
	Applied bool
	// Converged is true when the post-repair validation found no
	// remaining auto-fixable issues.
	Converged bool
}

// Repairer drives the state machine over one store.
type Repairer struct {
	store     *db.Store
	validator *integrity.Validator
	log       *slog.Logger
	state     State
}

// NewRepairer builds a repairer sharing the caller's store and validator.
func NewRepairer(store *db.Store, validator *integrity.Validator, logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Repairer{store: store, validator: validator, log: logger, state: StateIdle}
}

// State returns the current engine state.
func (r *Repairer) State() State { return r.state }

func (r *Repairer) setState(s State) {
	r.log.Debug("repair state", "from", r.state.String(), "to", s.String())
	r.state = s
}

// DryRun analyzes and plans without touching any table or asset.
func (r *Repairer) DryRun(ctx context.Context) (*Outcome, error) {
	r.setState(StateAnalyzing)

	report, err := r.validator.Run(ctx)
	if err != nil {
		r.setState(StateIdle)

		return nil, err
	}

	r.setState(StatePlanning)

	plan := buildPlan(report)

	r.setState(StateReporting)
	defer r.setState(StateIdle)

	return &Outcome{Plan: plan, Before: report}, nil
}

// buildPlan classifies each issue as auto-fixable or manual-only.
func buildPlan(report *integrity.Report) *Plan {
	plan := &Plan{
		AddMissing:     make(map[string][]string),
		RemoveOrphaned: make(map[string][]string),
	}

	for _, issue := range report.Issues {
		if !issue.AutoFixAvailable {
			plan.ManualReview = append(plan.ManualReview, issue)

			continue
		}

		switch issue.Type {
		case integrity.IssueMissingTurra:
			plan.AddMissing[issue.FileName] = append(plan.AddMissing[issue.FileName], issue.RecordID)
		case integrity.IssueOrphanedTurra:
			plan.RemoveOrphaned[issue.FileName] = append(plan.RemoveOrphaned[issue.FileName], issue.RecordID)
		case integrity.IssueUnusedMetadata:
			plan.DeleteAssets = append(plan.DeleteAssets, issue.FileName)
		default:
			// Auto-fixable flag on a type we have no executor for: keep it
			// visible rather than dropping it silently.
			plan.ManualReview = append(plan.ManualReview, issue)
		}
	}

	return plan
}

// Describe renders the plan as dry-run lines.
func (p *Plan) Describe() []string {
	var lines []string

	c := p.Counts()

	for _, table := range sortedKeys(p.AddMissing) {
		lines = append(lines, fmt.Sprintf("add %d missing entries to %s", len(p.AddMissing[table]), table))
	}

	for _, table := range sortedKeys(p.RemoveOrphaned) {
		lines = append(lines, fmt.Sprintf("remove %d orphaned entries from %s", len(p.RemoveOrphaned[table]), table))
	}

	if c.Delete > 0 {
		lines = append(lines, fmt.Sprintf("delete %d unused asset files", c.Delete))
	}

	if c.Manual > 0 {
		lines = append(lines, fmt.Sprintf("flag %d issues for manual review", c.Manual))
	}

	if len(lines) == 0 {
		lines = append(lines, "nothing to repair")
	}

	return lines
}
