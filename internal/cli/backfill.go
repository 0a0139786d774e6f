package cli

import (
	"context"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/turrero/turradb/internal/db"
)

// cmdBackfillAuthor fills a missing author field across every tweet, the
// maintenance pass older scrapes need. The write goes through the
// transaction coordinator so an interrupted run cannot half-edit the
// thread table.
func cmdBackfillAuthor(env *cmdEnv, args []string) int {
	if hasHelpFlag(args) {
		printBackfillHelp(env.io)

		return 0
	}

	flagSet := flag.NewFlagSet("backfill-author", flag.ContinueOnError)
	flagSet.SetOutput(&strings.Builder{}) // discard

	author := flagSet.String("author", env.cfg.Author, "Author URL to fill in")

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

	threads, err := db.ReadAs[db.Thread](store, db.TableTweets)
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	changed := db.EnsureAuthors(threads, *author)
	if changed == 0 {
		env.io.Println("all tweets already have an author")

		return 0
	}

	records, err := db.EncodeRecords(threads)
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	_, err = store.AtomicMultiWrite(context.Background(), []db.Write{
		{Table: db.TableTweets, Records: records},
	})
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	env.io.Printf("author set on %d tweets\n", changed)

	return 0
}

func printBackfillHelp(ioCtx *IO) {
	ioCtx.Println("Usage: turradb backfill-author [--author <url>]")
	ioCtx.Println("")
	ioCtx.Println("Fill the author field on tweets that predate author scraping.")
}
