// Batch decider over the three JSON screening datasets.
//
// Usage:
//
//	kestrel-batch -entries entries.json -watchlist watchlist.json -countries countries.json
//
// This tool:
//  1. Reads the entry records, watchlist, and country policy datasets
//  2. Runs every record through the screening rules
//  3. Prints one final label per record, in input order
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/rules"
	"github.com/kanadia-gov/kestrel/internal/screening"
)

func main() {
	entriesPath := flag.String("entries", "", "Path to the entry records JSON file")
	watchlistPath := flag.String("watchlist", "", "Path to the watchlist JSON file")
	countriesPath := flag.String("countries", "", "Path to the country policies JSON file")
	todayFlag := flag.String("today", "", "Reference date for visa expiry (YYYY-MM-DD, default: current date)")
	flag.Parse()

	if *entriesPath == "" || *watchlistPath == "" || *countriesPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: kestrel-batch -entries entries.json -watchlist watchlist.json -countries countries.json [-today YYYY-MM-DD]")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
		os.Exit(2)
	}

	today := time.Now().UTC()
	if *todayFlag != "" {
		parsed, err := rules.ParseDate(*todayFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kestrel-batch: invalid -today value %q: expected YYYY-MM-DD\n", *todayFlag)
			os.Exit(2)
		}
		today = parsed
	}

	var entries []domain.EntryRecord
	if err := loadDataset(*entriesPath, &entries); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel-batch: %v\n", err)
		os.Exit(1)
	}

	var watchlist []domain.WatchlistEntry
	if err := loadDataset(*watchlistPath, &watchlist); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel-batch: %v\n", err)
		os.Exit(1)
	}

	var policies domain.PolicyTable
	if err := loadDataset(*countriesPath, &policies); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel-batch: %v\n", err)
		os.Exit(1)
	}

	outcomes, err := screening.Decide(entries, watchlist, policies, today)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel-batch: %v\n", err)
		os.Exit(1)
	}

	for _, outcome := range outcomes {
		fmt.Println(outcome)
	}
}

// loadDataset reads and decodes one JSON dataset. A missing, unreadable, or
// empty file is a source fault: the batch never runs on a partial load.
func loadDataset(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s is empty", domain.ErrSourceUnavailable, path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: invalid JSON: %v", domain.ErrSourceUnavailable, path, err)
	}
	return nil
}
