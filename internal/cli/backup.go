package cli

import (
	"strings"

	flag "github.com/spf13/pflag"
)

func cmdBackup(env *cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		printBackupHelp(env.io)

		return 0
	}

	flagSet := flag.NewFlagSet("backup", flag.ContinueOnError)
	flagSet.SetOutput(&strings.Builder{}) // discard

	list := flagSet.Bool("list", false, "List existing snapshots instead of creating one")

	err := flagSet.Parse(args)
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	remaining := flagSet.Args()
	if len(remaining) == 0 {
		env.io.Errorln("error: table name is required")
		printBackupHelp(env.io)

		return 1
	}

	table := remaining[0]

	store, err := env.openStore()
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	if *list {
		backups, listErr := store.ListBackups(table)
		if listErr != nil {
			env.io.Errorln("error:", listErr)

			return 1
		}

		if len(backups) == 0 {
			env.io.Println("no backups for", table)

			return 0
		}

		for _, desc := range backups {
			env.io.Printf("%s  %s\n", desc.CreatedAt.Format("2006-01-02 15:04:05.000"), desc.Path)
		}

		return 0
	}

	desc, err := store.Backup(table)
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	if desc.Missing {
		env.io.Println("table", table, "does not exist yet; nothing to snapshot")

		return 0
	}

	env.io.Println("backup created:", desc.Path)

	return 0
}

func printBackupHelp(ioCtx *IO) {
	ioCtx.Println("Usage: turradb backup <table> [--list]")
	ioCtx.Println("")
	ioCtx.Println("Snapshot one table to <table>.backup.<unix-millis>.")
	ioCtx.Println("Snapshots accumulate; none are deleted automatically.")
}
