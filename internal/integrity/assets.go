package integrity

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// checkAssets resolves every enrichment asset reference against the asset
// directory and flags the two failure directions: referenced-but-missing
// (error) and on-disk-but-unreferenced (warning, with reclaimable bytes).
func (v *Validator) checkAssets(data *dataset) ([]Issue, MetadataAnalysis, error) {
	var meta MetadataAnalysis

	assetDir := v.store.AssetDir()
	if assetDir == "" {
		return nil, meta, nil
	}

	referenced := make(map[string]bool)

	var issues []Issue

	for _, rec := range data.enriched {
		for _, rel := range rec.AssetPaths() {
			referenced[rel] = true

			_, err := v.store.StatAsset(rel)
			if err == nil {
				continue
			}

			if !os.IsNotExist(err) {
				return nil, meta, fmt.Errorf("stat asset %s: %w", rel, err)
			}

			issues = append(issues, Issue{
				Type:            IssueBrokenAssetRef,
				Severity:        SeverityError,
				FileName:        rel,
				RecordID:        rec.ID,
				Message:         fmt.Sprintf("enrichment record %s references missing asset %s", rec.ID, rel),
				SuggestedAction: "restore the asset file or fix the record's path",
			})
		}
	}

	entries, err := v.store.ReadAssetDir()
	if err != nil {
		if os.IsNotExist(err) {
			return issues, meta, nil
		}

		return nil, meta, fmt.Errorf("read asset dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		meta.TotalAssets++

		if referenced[entry.Name()] {
			meta.UsedAssets++

			continue
		}

		meta.OrphanedAssets++

		var size int64

		info, infoErr := entry.Info()
		if infoErr == nil {
			size = info.Size()
		}

		meta.ReclaimableBytes += size

		issues = append(issues, Issue{
			Type:             IssueUnusedMetadata,
			Severity:         SeverityWarning,
			FileName:         entry.Name(),
			Message:          fmt.Sprintf("asset %s (%s) is referenced by no enrichment record", entry.Name(), humanize.Bytes(uint64(size))),
			SuggestedAction:  fmt.Sprintf("delete the unused asset %s", entry.Name()),
			AutoFixAvailable: true,
		})
	}

	return issues, meta, nil
}

// normalizeText reduces a summary to a comparison key: lowercase, letters
// and digits only, single spaces.
func normalizeText(s string) string {
	var b strings.Builder

	lastSpace := true

	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)

			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')

			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}
