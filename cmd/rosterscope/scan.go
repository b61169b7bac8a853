package main

import (
	"flag"
	"fmt"
	"sort"

	"rosterscope/internal/locate"
)

func cmdScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	target := fs.String("target", "", "target executable name")
	dir := fs.String("dir", "", "schema search directory")
	file := fs.String("file", "", "pin the load to one schema file")
	parallel := fs.Bool("parallel", false, "fan scan ranges out across workers")
	workers := fs.Int("workers", 0, "worker count for --parallel")
	threshold := fs.Int("threshold", 0, "override the vote threshold")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := newLogger(*verbose)
	ctx, closeCtx, err := openContext(*target, schemaDirDefault(*dir), *file, log)
	if err != nil {
		return err
	}
	defer closeCtx()

	overrides, report, err := ctx.FindDynamicBases(locate.Params{
		Parallel:      *parallel,
		Workers:       *workers,
		VoteThreshold: *threshold,
	})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	labels := make([]string, 0, len(overrides))
	for l := range overrides {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Printf("%-8s 0x%X\n", l, overrides[l])
	}
	if len(overrides) == 0 {
		fmt.Println("no tables confirmed; static offsets remain in effect")
	}

	if report != nil {
		fmt.Printf("pid=%d elapsed=%s hits=%d skipped_regions=%d fallback=%v\n",
			report.PID, report.Elapsed, len(report.PlayerHits), report.SkippedRegions, report.FallbackHints)
		if report.PlayerRejectedVotes > 0 {
			fmt.Printf("player candidate rejected at %d votes\n", report.PlayerRejectedVotes)
		}
		for i, c := range report.PlayerCandidates {
			fmt.Printf("player candidate %d: 0x%X votes=%d\n", i, c.Address, c.Votes)
		}
	}
	return nil
}
