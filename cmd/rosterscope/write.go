package main

import (
	"flag"
	"fmt"
)

func cmdWrite(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	target := fs.String("target", "", "target executable name")
	dir := fs.String("dir", "", "schema search directory")
	file := fs.String("file", "", "pin the load to one schema file")
	kindArg := fs.String("kind", "player", "record kind")
	index := fs.Int("index", 0, "record index")
	category := fs.String("category", "", "field category")
	name := fs.String("name", "", "field name")
	value := fs.String("value", "", "value to write")
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

	wrote, err := ctx.EncodeField(kind, *index, *category, *name, nil, 0, *value, nil)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", *category, *name, err)
	}
	if !wrote {
		return fmt.Errorf("value %q not coercible for %s/%s; field unchanged", *value, *category, *name)
	}

	got, err := ctx.DecodeField(kind, *index, *category, *name, nil, 0)
	if err != nil {
		return fmt.Errorf("readback %s/%s: %w", *category, *name, err)
	}
	fmt.Printf("wrote %s/%s[%d] = %s\n", *category, *name, *index, got.String())
	return nil
}
