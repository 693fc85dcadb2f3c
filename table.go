/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

package art

import "github.com/lpmtrie/art/internal/diag"

// Kind selects which trie engine a Table uses. The source picks
// between variants with function pointers stored on the table record;
// in Go the idiomatic equivalent is a small enum dispatched at the top
// of each public method (spec.md §9 "Global-ish API dispatch").
type Kind int

const (
	// Simple is the dense trie: one heap is allocated per stride
	// level on the path to every stored prefix (spec.md §4.4).
	Simple Kind = iota
	// PathCompressed elides heaps at levels where no two stored
	// prefixes diverge (spec.md §4.5).
	PathCompressed
)

func (k Kind) String() string {
	if k == PathCompressed {
		return "PathCompressed"
	}
	return "Simple"
}

// Table is an Allotment Routing Table: a stride plan, a single root
// heap, and the running route count (spec.md §3 "Routing table").
type Table struct {
	plan *StridePlan
	kind Kind
	root *node

	nRoutes int

	debug *diag.Registry

	// failNextAlloc is a test-only hook: when set, the next heap
	// allocation fails with ErrOutOfMemory instead of succeeding,
	// letting tests drive the "insert leaves the trie untouched on
	// allocation failure" contract of spec.md §7 point 3 without a
	// real allocator abstraction (see SPEC_FULL.md Open Questions).
	failNextAlloc bool
}

// NewTable constructs a table for the given stride plan and address
// width. strides must sum to addrBits and each stride must be in
// [1,24] (spec.md §6 preconditions).
func NewTable(strides []int, addrBits int, kind Kind) (*Table, error) {
	plan, err := NewStridePlan(strides, addrBits)
	if err != nil {
		return nil, err
	}
	t := &Table{plan: plan, kind: kind}
	var root *node
	if kind == PathCompressed {
		root, err = t.newCompressedNode(0, make([]byte, (addrBits+7)/8))
	} else {
		root, err = t.newNode(0)
	}
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

// EnableDiagnostics turns on heap-liveness tracking (internal/diag),
// used by invariant tests to verify no heap is ever leaked or
// double-freed (spec.md §8).
func (t *Table) EnableDiagnostics() {
	if t.debug == nil {
		t.debug = diag.New()
		t.trackAlloc(t.root)
	}
}

// LiveHeapCount reports the number of heaps the diagnostics registry
// currently considers live. Requires EnableDiagnostics to have been
// called before any mutation tests want to cross-check.
func (t *Table) LiveHeapCount() int {
	if t.debug == nil {
		return -1
	}
	return int(t.debug.LiveCount())
}

func (t *Table) trackAlloc(n *node) {
	if t.debug == nil {
		return
	}
	n.dbgID = t.debug.Alloc()
	n.dbgValid = true
}

func (t *Table) trackFree(n *node) {
	if t.debug == nil || !n.dbgValid {
		return
	}
	t.debug.Free(n.dbgID)
	n.dbgValid = false
}

// NumRoutes returns the number of routes currently stored, including
// the table-wide default but not allotted copies.
func (t *Table) NumRoutes() int { return t.nRoutes }

// Kind reports which trie engine this table uses.
func (t *Table) Kind() Kind { return t.kind }

// Insert adds r to the table. If an entry with the same (Dest masked
// to PrefixLen, PrefixLen) already exists, Insert reports Duplicate and
// leaves the table unchanged; r remains owned by the caller in that
// case (spec.md §5, §7 point 1).
func (t *Table) Insert(r *Route) (InsertResult, error) {
	if r.PrefixLen < 0 || r.PrefixLen > t.plan.AddrBits {
		fatalf("art: prefix length %d out of range [0,%d]", r.PrefixLen, t.plan.AddrBits)
	}
	var existing *Route
	var err error
	if t.kind == PathCompressed {
		existing, err = t.pcInsert(t.root, r)
	} else {
		existing, err = t.simpleInsert(r)
	}
	if err != nil {
		return InsertResult{}, err
	}
	if existing != r {
		return InsertResult{Outcome: Duplicate, Route: existing}, nil
	}
	t.nRoutes++
	return InsertResult{Outcome: Inserted, Route: r}, nil
}

// Delete removes the route identified by (dest, plen), if present, and
// returns it.
func (t *Table) Delete(dest []byte, plen int) (*Route, bool) {
	var r *Route
	var ok bool
	if t.kind == PathCompressed {
		r, ok = t.pcDelete(dest, plen)
	} else {
		r, ok = t.simpleDelete(dest, plen)
	}
	if ok {
		t.nRoutes--
	}
	return r, ok
}

// FindLongestMatch returns the most specific stored route whose prefix
// contains dest, or (nil, false) if even the table default is unset.
func (t *Table) FindLongestMatch(dest []byte) (*Route, bool) {
	var r *Route
	if t.kind == PathCompressed {
		r = t.pcLookup(dest)
	} else {
		r = t.simpleLookup(dest)
	}
	return r, r != nil
}

// FindExact returns the route stored under exactly (dest, plen). On a
// miss it falls back to the table default and reports exact=false so
// callers can tell the two cases apart (spec.md §9 open question on
// exact-match miss semantics).
func (t *Table) FindExact(dest []byte, plen int) (route *Route, exact bool) {
	var r *Route
	if t.kind == PathCompressed {
		r = t.pcExact(dest, plen)
	} else {
		r = t.simpleExact(dest, plen)
	}
	if r != nil && r.PrefixLen == plen && bitsEqual(r.Dest, dest, plen) {
		return r, true
	}
	return r, false
}

// Destroy drops the table's reference to its root heap. Callers must
// not use the table afterwards.
func (t *Table) Destroy() {
	t.trackFree(t.root)
	t.root = nil
	t.nRoutes = 0
}
