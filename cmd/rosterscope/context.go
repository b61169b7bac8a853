package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"rosterscope/internal/procmem"
	"rosterscope/internal/roster"
)

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openContext attaches to the target process and loads its schema.
// The returned close func detaches.
func openContext(target, dir, file string, log *slog.Logger) (*roster.Context, func(), error) {
	if target == "" {
		return nil, nil, fmt.Errorf("--target is required")
	}
	if dir == "" && file == "" {
		return nil, nil, fmt.Errorf("--dir or --file is required")
	}
	proc, err := procmem.Attach(target, roster.AcceptedTargets)
	if err != nil {
		return nil, nil, fmt.Errorf("attach %s: %w", target, err)
	}
	var dirs []string
	if dir != "" {
		dirs = []string{dir}
	}
	ctx := roster.NewContext(proc, nil, roster.Config{SearchDirs: dirs}, log)
	if err := ctx.RefreshSchema(target, false, file); err != nil {
		proc.Close()
		return nil, nil, err
	}
	return ctx, func() { proc.Close() }, nil
}

func parseKind(s string) (roster.Kind, error) {
	switch roster.Kind(s) {
	case roster.Player, roster.Team, roster.Staff, roster.Stadium:
		return roster.Kind(s), nil
	}
	return "", fmt.Errorf("unknown kind %q (player, team, staff, stadium)", s)
}

func schemaDirDefault(dir string) string {
	if dir != "" {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "Offsets")
	}
	return ""
}
