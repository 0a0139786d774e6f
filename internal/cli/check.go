package cli

import (
	"context"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/turrero/turradb/internal/integrity"
	"github.com/turrero/turradb/internal/repair"
)

func cmdCheck(env *cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		printCheckHelp(env.io)

		return 0
	}

	flagSet := flag.NewFlagSet("check", flag.ContinueOnError)
	flagSet.SetOutput(&strings.Builder{}) // discard

	saveReport := flagSet.String("save-report", "", "Write the report to a file")
	jsonReport := flagSet.Bool("json", false, "Render the report as JSON instead of Markdown")
	fix := flagSet.Bool("fix", false, "Apply auto-fixable repairs after validating")
	dryRun := flagSet.Bool("dry-run", false, "With --fix, plan repairs without writing")
	watch := flagSet.Bool("watch", false, "Re-validate whenever a table or asset changes")
	yes := flagSet.Bool("yes", false, "With --fix, skip the interactive confirmation")

	err := flagSet.Parse(args)
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	store, err := env.openStore()
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	validator := integrity.NewValidator(store, env.log)

	if *fix {
		return runFix(env, store, validator, *dryRun, *yes)
	}

	if *watch {
		return watchAndValidate(env, store, validator, *saveReport, *jsonReport)
	}

	return runCheckOnce(env, validator, *saveReport, *jsonReport)
}

func runCheckOnce(env *cmdEnv, validator *integrity.Validator, saveReport string, jsonReport bool) int {
	report, err := validator.Run(context.Background())
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	printReport(env.io, report)

	if saveReport != "" {
		err = writeReport(report, saveReport, jsonReport)
		if err != nil {
			env.io.Errorln("error:", err)

			return 1
		}

		env.io.Println("report saved to", saveReport)
	}

	if report.OverallStatus == integrity.StatusError {
		return 1
	}

	return 0
}

// printReport groups issues by severity, errors first, colorized when
// stdout is a terminal.
func printReport(ioCtx *IO, report *integrity.Report) {
	status := ioCtx.Colored(statusColor(report.OverallStatus), strings.ToUpper(report.OverallStatus))
	ioCtx.Printf("status: %s (%d errors, %d warnings)\n", status, report.Errors(), report.Warnings())

	ioCtx.Printf("turras: %d total, %d fully linked, %d missing links, %d orphaned links\n",
		report.TurraAnalysis.TotalTurras,
		report.TurraAnalysis.LinkedTurras,
		report.TurraAnalysis.MissingLinks,
		report.TurraAnalysis.OrphanedLinks)

	if report.MetadataAnalysis.TotalAssets > 0 || report.MetadataAnalysis.OrphanedAssets > 0 {
		ioCtx.Printf("assets: %d total, %d used, %d orphaned (%s reclaimable)\n",
			report.MetadataAnalysis.TotalAssets,
			report.MetadataAnalysis.UsedAssets,
			report.MetadataAnalysis.OrphanedAssets,
			humanize.Bytes(uint64(report.MetadataAnalysis.ReclaimableBytes)))
	}

	for _, issue := range report.Issues {
		label := ioCtx.Colored(severityColor(issue.Severity), string(issue.Severity))

		ioCtx.Printf("  %s %s %s", label, issue.Type, issue.FileName)

		if issue.RecordID != "" {
			ioCtx.Printf(" (%s)", issue.RecordID)
		}

		ioCtx.Printf(": %s\n", issue.Message)
	}

	for _, rec := range report.Recommendations {
		fix := ""
		if rec.AutoFixAvailable {
			fix = " [auto-fix]"
		}

		ioCtx.Printf("recommendation %d: %s%s\n", rec.Priority, rec.Action, fix)
	}
}

func severityColor(severity integrity.Severity) string {
	if severity == integrity.SeverityError {
		return colorRed
	}

	return colorYellow
}

func writeReport(report *integrity.Report, path string, jsonReport bool) error {
	var data []byte

	if jsonReport {
		rendered, err := report.RenderJSON()
		if err != nil {
			return err
		}

		data = rendered
	} else {
		data = []byte(report.RenderMarkdown())
	}

	return os.WriteFile(path, data, 0o644) //nolint:gosec // operator-facing report
}

func printRepairSummary(env *cmdEnv, outcome *repair.Outcome) {
	for _, line := range outcome.Plan.Describe() {
		env.io.Println(line)
	}

	if outcome.After != nil {
		converged := "did not converge"
		if outcome.Converged {
			converged = "converged"
		}

		env.io.Printf("verification: %s (%d errors, %d warnings remain)\n",
			converged, outcome.After.Errors(), outcome.After.Warnings())
	}
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == helpFlag || arg == "-h" {
			return true
		}
	}

	return false
}

func printCheckHelp(ioCtx *IO) {
	ioCtx.Println("Usage: turradb check [flags]")
	ioCtx.Println("")
	ioCtx.Println("Cross-reference every table and the asset directory.")
	ioCtx.Println("Exit code is 0 on healthy or warning status, 1 on errors.")
	ioCtx.Println("")
	ioCtx.Println("Flags:")
	ioCtx.Println("  --save-report <file>  Write the report artifact")
	ioCtx.Println("  --json                Report as JSON instead of Markdown")
	ioCtx.Println("  --fix                 Apply auto-fixable repairs")
	ioCtx.Println("  --dry-run             With --fix, show the plan only")
	ioCtx.Println("  --yes                 With --fix, skip confirmation")
	ioCtx.Println("  --watch               Re-validate on file changes")
}
