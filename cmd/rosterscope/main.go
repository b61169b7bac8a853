package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "schema":
		err = cmdSchema(os.Args[2:])
	case "scan":
		err = cmdScan(os.Args[2:])
	case "read":
		err = cmdRead(os.Args[2:])
	case "write":
		err = cmdWrite(os.Args[2:])
	case "snapshot":
		err = cmdSnapshot(os.Args[2:])
	case "classify":
		err = cmdClassify(os.Args[2:])
	case "diff":
		err = cmdDiff(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `rosterscope — live roster memory toolkit

Usage:
  rosterscope schema   --target <exe> --dir <dir> [--json]          Load a schema bundle and print its parse report
  rosterscope scan     --target <exe> --dir <dir> [--parallel]      Re-discover player/team table bases in the process
  rosterscope read     --target <exe> --dir <dir> --kind <k> --index <n> --category <c> --name <f>
  rosterscope write    --target <exe> --dir <dir> --kind <k> --index <n> --category <c> --name <f> --value <v>
  rosterscope snapshot --target <exe> --dir <dir> --kind <k> --count <n> --offsets <list> --out <file>
  rosterscope classify --in <dump> [--team-hint <hex>]              Classify a raw memory dump
  rosterscope diff     --a <snap.json> --b <snap.json> [--json]       Diff two labeled snapshots

Flags:
  --target <exe>     Target executable name (e.g. NBA2K26.exe)
  --dir <dir>           Schema search directory
  --file <path>         Pin the load to one schema file
  --kind <k>            Record kind: player, team, staff, stadium
  --index <n>           Record index within the table
  --json                Output as JSON
  -v                    Debug logging
`)
}
