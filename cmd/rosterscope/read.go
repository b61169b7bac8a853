package main

import (
	"flag"
	"fmt"
)

func cmdRead(args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	target := fs.String("target", "", "target executable name")
	dir := fs.String("dir", "", "schema search directory")
	file := fs.String("file", "", "pin the load to one schema file")
	kindArg := fs.String("kind", "player", "record kind")
	index := fs.Int("index", 0, "record index")
	category := fs.String("category", "", "field category")
	name := fs.String("name", "", "field name")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *category == "" || *name == "" {
		return fmt.Errorf("--category and --name are required")
	}
	kind, err := parseKind(*kindArg)
	if err != nil {
		return err
	}

	log := newLogger(*verbose)
	ctx, closeCtx, err := openContext(*target, schemaDirDefault(*dir), *file, log)
	if err != nil {
		return err
	}
	defer closeCtx()

	got, err := ctx.DecodeField(kind, *index, *category, *name, nil, 0)
	if err != nil {
		return fmt.Errorf("decode %s/%s: %w", *category, *name, err)
	}
	if !got.IsValue() {
		fmt.Println("(unavailable)")
		return nil
	}
	fmt.Println(got.String())
	return nil
}
