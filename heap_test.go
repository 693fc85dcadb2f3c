/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

package art

import "testing"

// TestNewNodeSizing checks that a freshly allocated simple-variant
// heap has the 2*2^sl slot count spec.md §3 requires and that index 1
// (the subtable default) starts empty.
func TestNewNodeSizing(t *testing.T) {
	tbl, err := NewTable([]int{8, 8, 8, 8}, 32, Simple)
	if err != nil {
		t.Fatal(err)
	}
	n, err := tbl.newNode(1)
	if err != nil {
		t.Fatal(err)
	}
	if n.size != 256 {
		t.Errorf("size = %d, want 256 (2^8)", n.size)
	}
	if len(n.slots) != 2*256 {
		t.Errorf("len(slots) = %d, want %d", len(n.slots), 2*256)
	}
	if n.slots[1].kind != slotEmpty {
		t.Error("fresh node's default slot should start empty")
	}
}

// TestNewCompressedNodeSeedsPrefixCache checks that a path-compressed
// heap's cached prefix is truncated to exactly the bits above its
// level (spec.md §3 "hidden region... a copy of the address bits of
// the canonical prefix").
func TestNewCompressedNodeSeedsPrefixCache(t *testing.T) {
	tbl, err := NewTable([]int{8, 8, 8, 8}, 32, PathCompressed)
	if err != nil {
		t.Fatal(err)
	}
	n, err := tbl.newCompressedNode(2, []byte{10, 255, 255, 255})
	if err != nil {
		t.Fatal(err)
	}
	if n.prefixLen != 16 {
		t.Errorf("prefixLen = %d, want 16", n.prefixLen)
	}
	if len(n.prefix) != 2 || n.prefix[0] != 10 || n.prefix[1] != 255 {
		t.Errorf("prefix = %v, want [10 255]", n.prefix)
	}
}

// TestFailNextAllocLeavesTrieUntouched drives the allocation-failure
// contract of spec.md §7 point 3: Insert must return ErrOutOfMemory
// without mutating the table when a subtable allocation fails, and a
// later successful insert of the same route must still work.
func TestFailNextAllocLeavesTrieUntouched(t *testing.T) {
	tbl, err := NewTable([]int{8, 8, 8, 8}, 32, Simple)
	if err != nil {
		t.Fatal(err)
	}
	r := &Route{Dest: []byte{10, 0, 0, 0}, PrefixLen: 16}
	tbl.failNextAlloc = true
	if _, err := tbl.Insert(r); err != ErrOutOfMemory {
		t.Fatalf("Insert with forced allocation failure: got err=%v, want ErrOutOfMemory", err)
	}
	if tbl.NumRoutes() != 0 {
		t.Errorf("NumRoutes after failed insert = %d, want 0", tbl.NumRoutes())
	}
	res, err := tbl.Insert(r)
	if err != nil || res.Outcome != Inserted {
		t.Fatalf("retry insert after failure: got (%v, %v), want (Inserted, nil)", res.Outcome, err)
	}
}

// TestFreeNodeReturnsInheritedDefault checks freeNode's contract
// (spec.md §4.2 "freeHeap... returns the current heap[1]"): whatever
// route currently sits in slots[1] at the moment of freeing is
// returned so the caller can splice it back into the parent.
func TestFreeNodeReturnsInheritedDefault(t *testing.T) {
	tbl, err := NewTable([]int{8, 8, 8, 8}, 32, Simple)
	if err != nil {
		t.Fatal(err)
	}
	n, err := tbl.newNode(1)
	if err != nil {
		t.Fatal(err)
	}
	want := &Route{PrefixLen: 8}
	n.slots[1] = routeSlot(want)
	got := tbl.freeNode(n)
	if got.routeOrNil() != want {
		t.Errorf("freeNode returned %+v, want slot carrying %+v", got, want)
	}
}

// TestDiagnosticsTracksAllocAndFree checks that EnableDiagnostics
// wires every subsequent node allocation/free through the registry,
// and that a table created before EnableDiagnostics still has its
// root accounted for retroactively.
func TestDiagnosticsTracksAllocAndFree(t *testing.T) {
	tbl, err := NewTable([]int{8, 8, 8, 8}, 32, Simple)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.LiveHeapCount() != -1 {
		t.Fatal("LiveHeapCount before EnableDiagnostics should report -1 (disabled)")
	}
	tbl.EnableDiagnostics()
	if tbl.LiveHeapCount() != 1 {
		t.Fatalf("LiveHeapCount right after EnableDiagnostics = %d, want 1", tbl.LiveHeapCount())
	}
	mustInsert(t, tbl, &Route{Dest: []byte{10, 0, 0, 0}, PrefixLen: 32})
	if tbl.LiveHeapCount() != 4 {
		t.Errorf("LiveHeapCount after a /32 insert into a 4-level stride plan = %d, want 4", tbl.LiveHeapCount())
	}
	if _, ok := tbl.Delete([]byte{10, 0, 0, 0}, 32); !ok {
		t.Fatal("delete of the /32 failed")
	}
	if tbl.LiveHeapCount() != 1 {
		t.Errorf("LiveHeapCount after deleting the /32 = %d, want 1 (root only)", tbl.LiveHeapCount())
	}
}

// collectReachableHeapIDs walks the trie actually reachable from root
// and returns the diagnostics id of every heap it finds, for
// cross-checking against the registry's own bookkeeping.
func collectReachableHeapIDs(n *node, ids map[uint]bool) {
	ids[n.dbgID] = true
	for _, s := range n.slots {
		if s.kind == slotChild {
			collectReachableHeapIDs(s.child, ids)
		}
	}
}

// TestDiagnosticsLiveIDsMatchesReachableHeaps drives spec.md §8's "no
// orphan heaps" invariant directly: the set of ids the registry
// considers live (IsLive/LiveIDs) must equal the set of heaps actually
// reachable from the root by structural traversal, both while routes
// are present and after every one has been deleted.
func TestDiagnosticsLiveIDsMatchesReachableHeaps(t *testing.T) {
	tbl, err := NewTable([]int{8, 8, 8, 8}, 32, PathCompressed)
	if err != nil {
		t.Fatal(err)
	}
	tbl.EnableDiagnostics()

	routes := []*Route{
		{Dest: []byte{10, 0, 0, 0}, PrefixLen: 24},
		{Dest: []byte{10, 1, 1, 1}, PrefixLen: 32},
		{Dest: []byte{192, 168, 1, 0}, PrefixLen: 24},
	}
	for _, r := range routes {
		mustInsert(t, tbl, r)
	}

	reachable := map[uint]bool{}
	collectReachableHeapIDs(tbl.root, reachable)

	live := tbl.debug.LiveIDs()
	if len(live) != len(reachable) {
		t.Fatalf("LiveIDs() = %v (len %d), want %d reachable heaps", live, len(live), len(reachable))
	}
	for _, id := range live {
		if !reachable[id] {
			t.Errorf("registry reports id %d live but it is not reachable from root", id)
		}
		if !tbl.debug.IsLive(id) {
			t.Errorf("IsLive(%d) = false for an id LiveIDs just returned", id)
		}
	}

	for _, r := range routes {
		if _, ok := tbl.Delete(r.Dest, r.PrefixLen); !ok {
			t.Fatalf("delete %+v failed", r)
		}
	}
	live = tbl.debug.LiveIDs()
	if len(live) != 1 || !tbl.debug.IsLive(live[0]) || live[0] != tbl.root.dbgID {
		t.Fatalf("LiveIDs() after full deletion = %v, want exactly the root's id (%d)", live, tbl.root.dbgID)
	}
}
