package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"rosterscope/internal/layout"
)

func cmdClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	in := fs.String("in", "", "path to a raw memory dump")
	teamHint := fs.String("team-hint", "", "expected low 32 bits of team record word 0 (hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	payload, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read dump: %w", err)
	}

	var hint *layout.Hint
	if *teamHint != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(*teamHint), "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("--team-hint: %w", err)
		}
		hint = &layout.Hint{TeamLow32: uint32(v)}
	}

	kind := layout.Classify(payload, hint)
	fmt.Printf("%s (%d bytes)\n", kind, len(payload))
	return nil
}
