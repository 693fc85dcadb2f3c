/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

package art

// WalkOrder selects traversal order for Table.Walk (spec.md §4.6).
type WalkOrder int

const (
	// DepthFirst visits each heap's subtree before moving to its
	// siblings.
	DepthFirst WalkOrder = iota
	// BreadthFirst visits heaps level by level using an auxiliary
	// FIFO queue.
	BreadthFirst
)

// Walk visits every stored route exactly once, in the given order,
// skipping allotted copies (spec.md §4.6). Altering the table from
// within visit is not supported; use Flush to remove everything.
func (t *Table) Walk(order WalkOrder, visit func(*Route)) {
	if t.root == nil {
		return
	}
	if order == BreadthFirst {
		t.walkBreadthFirst(visit)
		return
	}
	t.walkDepthFirst(t.root, visit)
}

func (t *Table) walkDepthFirst(n *node, visit func(*Route)) {
	base := t.plan.LevelStart(n.level)
	walkNodeSlots(n, base, t.kind, visit, func(child *node) {
		t.walkDepthFirst(child, visit)
	})
}

func (t *Table) walkBreadthFirst(visit func(*Route)) {
	queue := []*node{t.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		base := t.plan.LevelStart(n.level)
		walkNodeSlots(n, base, t.kind, visit, func(child *node) {
			queue = append(queue, child)
		})
	}
}

// walkNodeSlots applies the §4.6 slot-filter rules to a single heap:
// a slot contributes its route when the route is native to that slot
// (its PrefixLen matches the length implied by the heap index) and,
// in the non-fringe range, it differs from the route inherited at
// idx/2. Fringe slots holding a subtable pointer are handed to
// descend instead of being read directly.
//
// Index 1 (the subtable default) follows the same PrefixLen rule: a
// route there is reported when its PrefixLen equals the bits consumed
// above the node. The path-compressed engine adds one case: a route
// native to a fringe slot that already points at a child lives only in
// that child's slots[1] (insertAtCompressed's slotChild branch,
// compressed.go), and when the child sits more than one level down its
// PrefixLen is shorter than the child's own base. Such a route is
// reported from the parent's fringe slot, just before descending.
func walkNodeSlots(n *node, base int, kind Kind, visit func(*Route), descend func(*node)) {
	isNative := func(idx int, r *Route) bool {
		return r.PrefixLen == base+prefixLenOfIndex(idx)
	}
	for idx := 1; idx < n.size; idx++ {
		s := n.slots[idx]
		if s.kind != slotRoute || s.route == nil {
			continue
		}
		if !isNative(idx, s.route) {
			continue
		}
		if idx > 1 && n.slots[idx>>1].routeOrNil() == s.route {
			continue
		}
		visit(s.route)
	}
	for idx := n.size; idx < 2*n.size; idx++ {
		s := n.slots[idx]
		switch s.kind {
		case slotChild:
			if kind == PathCompressed {
				if d := s.child.slots[1].routeOrNil(); d != nil && isNative(idx, d) && d.PrefixLen != s.child.prefixLen {
					visit(d)
				}
			}
			descend(s.child)
		case slotRoute:
			if s.route == nil || !isNative(idx, s.route) {
				continue
			}
			if n.slots[idx>>1].routeOrNil() == s.route {
				continue
			}
			visit(s.route)
		}
	}
}

// Flush removes every route from the table. It collects every
// (dest, plen) pair with a full walk before deleting any of them, so
// that path-compressed heap collapses triggered by early deletes
// cannot invalidate the in-flight walk (spec.md §4.6 "Flush").
func (t *Table) Flush() {
	type key struct {
		dest []byte
		plen int
	}
	var keys []key
	t.Walk(DepthFirst, func(r *Route) {
		keys = append(keys, key{r.Dest, r.PrefixLen})
	})
	for _, k := range keys {
		t.Delete(k.dest, k.plen)
	}
}
