package integrity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// recommendation metadata per issue type. Lower priority ranks first.
var recommendationByType = map[IssueType]Recommendation{
	IssueDuplicateID:    {Priority: 1, Action: "resolve duplicate turra IDs before any other repair"},
	IssueBrokenAssetRef: {Priority: 2, Action: "restore missing asset files or correct enrichment paths"},
	IssueInvalidRef:     {Priority: 3, Action: "review enrichment records pointing at unknown tweets"},
	IssueMissingRef:     {Priority: 4, Action: "rebuild search-index entries with dangling tweet references"},
	IssueOrphanedTurra:  {Priority: 5, Action: "remove derived entries for deleted turras", AutoFixAvailable: true},
	IssueMissingTurra:   {Priority: 6, Action: "backfill derived entries for unprocessed turras", AutoFixAvailable: true},
	IssueUnusedMetadata: {Priority: 7, Action: "delete unreferenced asset files", AutoFixAvailable: true},
	IssueSemanticDup:    {Priority: 8, Action: "review semantically duplicate records manually"},
}

// buildRecommendations deduplicates per issue type and ranks by priority.
func buildRecommendations(issues []Issue) []Recommendation {
	seen := make(map[IssueType]int)

	for _, issue := range issues {
		seen[issue.Type]++
	}

	recs := make([]Recommendation, 0, len(seen))

	for typ, count := range seen {
		rec, ok := recommendationByType[typ]
		if !ok {
			continue
		}

		rec.Action = fmt.Sprintf("%s (%d)", rec.Action, count)
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Priority < recs[j].Priority })

	return recs
}

// RenderJSON returns the report as indented JSON, the same shape the
// producer scripts consume.
func (r *Report) RenderJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	return append(data, '\n'), nil
}

// RenderMarkdown returns the operator-facing report artifact.
func (r *Report) RenderMarkdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Integrity Report\n\n")
	fmt.Fprintf(&b, "- Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Status: **%s**\n", r.OverallStatus)
	fmt.Fprintf(&b, "- Issues: %d errors, %d warnings\n\n", r.Errors(), r.Warnings())

	fmt.Fprintf(&b, "## Turra linkage\n\n")
	fmt.Fprintf(&b, "| total | linked | missing links | orphaned links |\n")
	fmt.Fprintf(&b, "|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n",
		r.TurraAnalysis.TotalTurras, r.TurraAnalysis.LinkedTurras,
		r.TurraAnalysis.MissingLinks, r.TurraAnalysis.OrphanedLinks)

	fmt.Fprintf(&b, "## Asset usage\n\n")
	fmt.Fprintf(&b, "| total | used | orphaned | reclaimable |\n")
	fmt.Fprintf(&b, "|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %s |\n\n",
		r.MetadataAnalysis.TotalAssets, r.MetadataAnalysis.UsedAssets,
		r.MetadataAnalysis.OrphanedAssets,
		humanize.Bytes(uint64(r.MetadataAnalysis.ReclaimableBytes)))

	if len(r.Issues) > 0 {
		fmt.Fprintf(&b, "## Issues\n\n")

		for _, issue := range r.Issues {
			fix := ""
			if issue.AutoFixAvailable {
				fix = " [auto-fixable]"
			}

			fmt.Fprintf(&b, "- **%s** `%s` %s", issue.Severity, issue.Type, issue.FileName)

			if issue.RecordID != "" {
				fmt.Fprintf(&b, " (%s)", issue.RecordID)
			}

			fmt.Fprintf(&b, ": %s%s\n", issue.Message, fix)
		}

		fmt.Fprintf(&b, "\n")
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintf(&b, "## Recommendations\n\n")

		for _, rec := range r.Recommendations {
			fix := ""
			if rec.AutoFixAvailable {
				fix = " (auto-fix available)"
			}

			fmt.Fprintf(&b, "%d. %s%s\n", rec.Priority, rec.Action, fix)
		}
	}

	return b.String()
}
