// Package chain resolves table base addresses by walking pointer
// chains declared in the schema.
package chain

import (
	"errors"
	"fmt"

	"rosterscope/internal/procmem"
	"rosterscope/internal/schema"
)

// ErrUnresolved means a chain walked to completion but the candidate
// address was rejected by the validator, or a dereference produced a
// nil pointer. It is distinct from a chain that legitimately resolves
// to address zero.
var ErrUnresolved = errors.New("chain: unresolved")

// Validator is a cheap sanity probe on a candidate table address.
type Validator func(addr uint64) bool

// Resolve walks a pointer chain against the attached process and
// returns the address of the table's first record.
//
// The cursor starts at Address plus the module base unless Absolute.
// Each step adds Offset, optionally replaces the cursor with the
// pointer stored at it, then adds PostAdd; FinalOffset lands last.
// A DirectTable chain skips the steps and performs no reads. An
// empty step list is a valid no-chain case, not a failure.
func Resolve(mem procmem.Accessor, c schema.Chain, v Validator) (uint64, error) {
	if c.Address == 0 {
		return 0, fmt.Errorf("chain: zero base address: %w", ErrUnresolved)
	}
	cursor := c.Address
	if !c.Absolute {
		cursor += mem.ModuleBase()
	}
	if !c.DirectTable {
		for i, step := range c.Steps {
			cursor = addSigned(cursor, step.Offset)
			if step.Dereference {
				ptr, err := procmem.ReadPointer(mem, cursor)
				if err != nil {
					return 0, fmt.Errorf("chain: step %d at 0x%016X: %w", i, cursor, err)
				}
				if ptr == 0 {
					return 0, fmt.Errorf("chain: step %d at 0x%016X: nil pointer: %w", i, cursor, ErrUnresolved)
				}
				cursor = ptr
			}
			cursor = addSigned(cursor, step.PostAdd)
		}
	}
	cursor = addSigned(cursor, c.FinalOffset)
	if v != nil && !v(cursor) {
		return 0, fmt.Errorf("chain: candidate 0x%016X rejected: %w", cursor, ErrUnresolved)
	}
	return cursor, nil
}

func addSigned(base uint64, delta int64) uint64 {
	if delta >= 0 {
		return base + uint64(delta)
	}
	return base - uint64(-delta)
}
