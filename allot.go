/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

package art

// allot propagates the replacement of covering route cur with repl
// through the subtree rooted at heap index k in n, stopping at any
// slot already overwritten by a more specific route (spec.md §4.3).
//
// It is used identically by insert (cur is the route k covered before
// the new, more specific route arrived; repl is the inserted route)
// and by delete (cur is the deleted route; repl is the next covering
// route, i.e. n.slots[k>>1]).
//
// At a fringe slot that holds a subtable pointer, the propagation
// target is the child's own default (slots[1]) rather than the fringe
// cell itself — overwriting the fringe cell would destroy the pointer
// that owns the child heap.
func allot(n *node, k int, cur, repl *Route) {
	s := n.slots[k]
	if s.kind == slotChild {
		if k < n.size {
			fatalf("art: non-fringe index %d holds a subtable pointer", k)
		}
		if routeIdentical(s.child.slots[1].routeOrNil(), cur) {
			s.child.slots[1] = routeSlot(repl)
		}
		return
	}
	if !routeIdentical(s.routeOrNil(), cur) {
		return
	}
	n.slots[k] = routeSlot(repl)
	if k < n.size {
		allot(n, 2*k, cur, repl)
		allot(n, 2*k+1, cur, repl)
	}
}
