package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"rosterscope/internal/layout"
)

func cmdDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	pathA := fs.String("a", "", "first snapshot JSON")
	pathB := fs.String("b", "", "second snapshot JSON")
	jsonOut := fs.Bool("json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pathA == "" || *pathB == "" {
		return fmt.Errorf("--a and --b are required")
	}

	a, err := layout.LoadSnapshot(*pathA)
	if err != nil {
		return err
	}
	b, err := layout.LoadSnapshot(*pathB)
	if err != nil {
		return err
	}

	report := layout.Diff(a, b)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("%s -> %s: %d entries compared, %d changed, %d flagged\n",
		a.Label, b.Label, report.Compared, len(report.Changes), len(report.Flagged))
	for _, c := range report.Flagged {
		fmt.Printf("  FLAG record %d offset 0x%X: %s -> %s\n", c.RecordIndex, c.Offset, c.ClassBefore, c.ClassAfter)
	}
	for _, s := range report.OffsetSummary {
		fmt.Printf("  offset 0x%X dominant=%s unknown_ratio=%.2f\n", s.Offset, s.Dominant, s.UnknownRatio)
	}
	return nil
}
