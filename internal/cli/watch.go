package cli

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turrero/turradb/internal/db"
	"github.com/turrero/turradb/internal/integrity"
)

// debounce window for bursts of writes from producer scripts.
const watchSettle = 500 * time.Millisecond

// watchAndValidate re-runs the validator whenever a table or asset file
// changes. Runs until interrupted; the final exit code reflects the last
// completed validation.
func watchAndValidate(env *cmdEnv, store *db.Store, validator *integrity.Validator, saveReport string, jsonReport bool) int {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	defer func() { _ = watcher.Close() }()

	err = watcher.Add(store.Dir())
	if err != nil {
		env.io.Errorln("error: watch db dir:", err)

		return 1
	}

	if store.AssetDir() != "" {
		// The asset dir may not exist yet; producers create it lazily.
		if addErr := watcher.Add(store.AssetDir()); addErr != nil {
			env.log.Warn("not watching asset dir", "err", addErr)
		}
	}

	exit := runCheckOnce(env, validator, saveReport, jsonReport)

	var timer *time.Timer

	pending := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return exit
			}

			if !relevantEvent(event) {
				continue
			}

			env.log.Debug("change detected", "file", event.Name, "op", event.Op.String())

			if timer != nil {
				timer.Stop()
			}

			timer = time.AfterFunc(watchSettle, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			env.io.Println("---")

			exit = runCheckOnce(env, validator, saveReport, jsonReport)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return exit
			}

			env.log.Warn("watch error", "err", watchErr)
		}
	}
}

// relevantEvent filters out backup snapshots, temp files and the report
// artifact itself, which would otherwise retrigger validation forever.
func relevantEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := event.Name

	if strings.Contains(name, ".backup.") || strings.Contains(name, ".tmp") {
		return false
	}

	return true
}
