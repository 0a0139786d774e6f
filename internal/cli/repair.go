package cli

import (
	"context"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/turrero/turradb/internal/db"
	"github.com/turrero/turradb/internal/integrity"
	"github.com/turrero/turradb/internal/repair"
)

func cmdRepair(env *cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		printRepairHelp(env.io)

		return 0
	}

	flagSet := flag.NewFlagSet("repair", flag.ContinueOnError)
	flagSet.SetOutput(&strings.Builder{}) // discard

	dryRun := flagSet.Bool("dry-run", false, "Show what would be fixed without writing")
	yes := flagSet.Bool("yes", false, "Skip the interactive confirmation")

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

	return runFix(env, store, validator, *dryRun, *yes)
}

// runFix is shared by `repair` and `check --fix`.
func runFix(env *cmdEnv, store *db.Store, validator *integrity.Validator, dryRun, yes bool) int {
	repairer := repair.NewRepairer(store, validator, env.log)

	if dryRun {
		outcome, err := repairer.DryRun(context.Background())
		if err != nil {
			env.io.Errorln("error:", err)

			return 1
		}

		printRepairSummary(env, outcome)

		return exitForStatus(outcome.Before.OverallStatus)
	}

	// Show the plan before asking for confirmation.
	preview, err := repairer.DryRun(context.Background())
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	printRepairSummary(env, preview)

	if preview.Plan.Empty() {
		return exitForStatus(preview.Before.OverallStatus)
	}

	if !yes && !confirmRepair(env) {
		env.io.Println("aborted")

		return exitForStatus(preview.Before.OverallStatus)
	}

	outcome, err := repairer.Execute(context.Background())
	if err != nil {
		env.io.Errorln("error: repair failed:", err)

		return 1
	}

	printRepairSummary(env, outcome)

	if outcome.After != nil && outcome.After.OverallStatus == integrity.StatusError {
		return 1
	}

	return 0
}

// confirmRepair prompts on the terminal before mutating tables.
func confirmRepair(env *cmdEnv) bool {
	prompt := liner.NewLiner()
	defer func() { _ = prompt.Close() }()

	prompt.SetCtrlCAborts(true)

	answer, err := prompt.Prompt("apply these repairs? [y/N] ")
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))

	return answer == "y" || answer == "yes"
}

func exitForStatus(status string) int {
	if status == integrity.StatusError {
		return 1
	}

	return 0
}

func printRepairHelp(ioCtx *IO) {
	ioCtx.Println("Usage: turradb repair [flags]")
	ioCtx.Println("")
	ioCtx.Println("Apply auto-fixable repairs through one atomic multi-table write.")
	ioCtx.Println("Manual-only findings are reported, never altered.")
	ioCtx.Println("")
	ioCtx.Println("Flags:")
	ioCtx.Println("  --dry-run  Show the planned actions without writing")
	ioCtx.Println("  --yes      Skip the interactive confirmation")
}
