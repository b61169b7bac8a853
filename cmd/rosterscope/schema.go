package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"rosterscope/internal/schema"
)

func cmdSchema(args []string) error {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	target := fs.String("target", "", "target executable name")
	dir := fs.String("dir", "", "schema search directory")
	file := fs.String("file", "", "pin the load to one schema file")
	jsonOut := fs.Bool("json", false, "output as JSON")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return fmt.Errorf("--target is required")
	}

	log := newLogger(*verbose)
	dirs := []string{schemaDirDefault(*dir)}
	candidates := []string{"offsets.json"}
	if *file != "" {
		dirs = []string{filepath.Dir(*file)}
		candidates = []string{filepath.Base(*file)}
	}

	repo := schema.NewRepository(nil, log)
	path, bundle, err := repo.LoadBundle(*target, dirs, candidates, schema.NewResolver())
	if err != nil {
		return err
	}

	if *jsonOut {
		out := map[string]any{
			"path":          path,
			"target":        bundle.Target,
			"version":       bundle.Version,
			"categories":    len(bundle.Categories),
			"base_pointers": bundle.BasePointers,
			"sizes":         bundle.Sizes,
			"report":        bundle.Report,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("schema: %s\n", path)
	fmt.Printf("target: %s  version: %s\n", bundle.Target, bundle.Version)

	cats := make([]string, 0, len(bundle.Categories))
	for c := range bundle.Categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	total := 0
	for _, c := range cats {
		total += len(bundle.Categories[c])
	}
	fmt.Printf("fields: %d across %d categories\n", total, len(cats))
	for _, c := range cats {
		fmt.Printf("  %-24s %d\n", c, len(bundle.Categories[c]))
	}

	labels := make([]string, 0, len(bundle.BasePointers))
	for l := range bundle.BasePointers {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		c := bundle.BasePointers[l]
		fmt.Printf("base %-8s 0x%X steps=%d absolute=%v direct=%v\n", l, c.Address, len(c.Steps), c.Absolute, c.DirectTable)
	}

	if r := bundle.Report; r != nil {
		fmt.Printf("parse report: discovered=%d emitted=%d skipped=%d untracked_loss=%d\n",
			r.DiscoveredLeaf, r.Emitted, r.SkippedCount, r.UntrackedLoss)
		reasons := make([]string, 0, len(r.SkipsByReason))
		for reason := range r.SkipsByReason {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Printf("  skip %-36s %d\n", reason, r.SkipsByReason[reason])
		}
	}
	return nil
}
