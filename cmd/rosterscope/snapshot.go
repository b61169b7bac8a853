package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"rosterscope/internal/export"
)

func cmdSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	target := fs.String("target", "", "target executable name")
	dir := fs.String("dir", "", "schema search directory")
	file := fs.String("file", "", "pin the load to one schema file")
	kindArg := fs.String("kind", "player", "record kind")
	start := fs.Int("start", 0, "first record index")
	count := fs.Int("count", 1, "record count")
	offsetsArg := fs.String("offsets", "0x0", "comma-separated slot offsets (hex or decimal)")
	window := fs.Int("window", 64, "bytes captured per slot")
	label := fs.String("label", "", "snapshot label")
	out := fs.String("out", "", "output JSON path")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("--out is required")
	}
	kind, err := parseKind(*kindArg)
	if err != nil {
		return err
	}
	offsets, err := parseOffsets(*offsetsArg)
	if err != nil {
		return err
	}

	log := newLogger(*verbose)
	ctx, closeCtx, err := openContext(*target, schemaDirDefault(*dir), *file, log)
	if err != nil {
		return err
	}
	defer closeCtx()

	recs, err := ctx.Snapshot(kind, *start, *count)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	records := make([][]byte, *count)
	for i := range records {
		rec, err := recs.Record(i)
		if err != nil {
			return err
		}
		records[i] = rec
	}

	snap := export.CaptureSnapshot(*label, records, offsets, *window)
	if err := export.WriteSnapshotJSON(*out, snap); err != nil {
		return err
	}
	fmt.Printf("wrote %d entries to %s\n", len(snap.Entries), *out)
	return nil
}

func parseOffsets(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("--offsets: %w", err)
		}
		out = append(out, int(v))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("--offsets is empty")
	}
	return out, nil
}
