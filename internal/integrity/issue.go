// Package integrity cross-references every table and the media asset
// directory into a structured report. Bad data is never an error here:
// surfacing it as findings is the point. Only I/O failures while reading
// tables or the asset directory return an error.
package integrity

import (
	"sort"
	"time"
)

// Severity of a consistency issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueType tags each consistency check.
type IssueType string

const (
	IssueDuplicateID    IssueType = "duplicate_id"
	IssueMissingTurra   IssueType = "missing_turra"
	IssueOrphanedTurra  IssueType = "orphaned_turra"
	IssueBrokenAssetRef IssueType = "broken_asset_reference"
	IssueUnusedMetadata IssueType = "unused_metadata"
	IssueSemanticDup    IssueType = "semantic_duplicate"
	IssueMissingRef     IssueType = "missing_reference"
	IssueInvalidRef     IssueType = "invalid_reference"
)

// Issue is one structured finding. It is data, not an exception: the
// validator collects issues and never throws on bad records.
type Issue struct {
	Type             IssueType `json:"type"`
	Severity         Severity  `json:"severity"`
	FileName         string    `json:"fileName"`
	RecordID         string    `json:"recordId,omitempty"`
	Message          string    `json:"message"`
	SuggestedAction  string    `json:"suggestedAction"`
	AutoFixAvailable bool      `json:"autoFixAvailable"`
}

// MetadataAnalysis summarizes asset usage across the asset directory.
type MetadataAnalysis struct {
	TotalAssets      int   `json:"totalAssets"`
	UsedAssets       int   `json:"usedAssets"`
	OrphanedAssets   int   `json:"orphanedAssets"`
	ReclaimableBytes int64 `json:"reclaimableBytes"`
}

// TurraAnalysis summarizes thread linkage across the derived tables.
type TurraAnalysis struct {
	TotalTurras   int `json:"totalTurras"`
	LinkedTurras  int `json:"linkedTurras"`
	MissingLinks  int `json:"missingLinks"`
	OrphanedLinks int `json:"orphanedLinks"`
}

// Recommendation is one deduplicated, priority-ranked remediation hint.
type Recommendation struct {
	Priority         int    `json:"priority"`
	Action           string `json:"action"`
	AutoFixAvailable bool   `json:"autoFixAvailable"`
}

// Overall status values.
const (
	StatusHealthy = "healthy"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Report aggregates one validation run. Reports are ephemeral: every run
// recomputes from scratch, and the same table/asset state always yields
// the same issue list in the same order.
type Report struct {
	GeneratedAt      time.Time        `json:"generatedAt"`
	OverallStatus    string           `json:"overallStatus"`
	Issues           []Issue          `json:"issues"`
	MetadataAnalysis MetadataAnalysis `json:"metadataAnalysis"`
	TurraAnalysis    TurraAnalysis    `json:"turraAnalysis"`
	Recommendations  []Recommendation `json:"recommendations"`
}

// Errors counts error-severity issues.
func (r *Report) Errors() int {
	n := 0

	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			n++
		}
	}

	return n
}

// Warnings counts warning-severity issues.
func (r *Report) Warnings() int {
	return len(r.Issues) - r.Errors()
}

// sortIssues fixes the report order: severity desc (errors first), then
// file name, then record id, then type.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]

		if a.Severity != b.Severity {
			return a.Severity == SeverityError
		}

		if a.FileName != b.FileName {
			return a.FileName < b.FileName
		}

		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}

		return a.Type < b.Type
	})
}

func overallStatus(issues []Issue) string {
	status := StatusHealthy

	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return StatusError
		}

		status = StatusWarning
	}

	return status
}
