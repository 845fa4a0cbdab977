package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pwnzer0tt1/firegexctl/journal"
)

// historyCmd prints the most recent runs recorded in the journal.
func historyCmd(path string, limit int, stdout, stderr io.Writer) int {
	store, err := journal.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening journal %s: %v\n", path, err)
		return 1
	}
	defer store.Close()

	entries, err := store.Recent(limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading journal: %v\n", err)
		return 1
	}
	printHistory(stdout, entries)
	return 0
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No commands recorded yet.")
		return
	}

	fmt.Fprintf(w, "%-20s  %-8s  %-12s  %-9s  %s\n", "STARTED", "COMMAND", "OUTCOME", "DURATION", "DETAIL")
	for _, e := range entries {
		detail := e.Detail
		if e.Error != "" {
			detail = strings.TrimSpace(detail + " (" + e.Error + ")")
		}
		fmt.Fprintf(w, "%-20s  %-8s  %-12s  %-9s  %s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Command,
			e.Outcome,
			e.Duration().Round(10*time.Millisecond),
			detail,
		)
	}
}
