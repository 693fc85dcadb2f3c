/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

package art

// pcFrame is one step of a recorded path-compressed descent: the
// parent node and which of its fringe slots was followed into a child.
type pcFrame struct {
	parent    *node
	fringeIdx int
}

// pcInsert implements path-compressed insertion (spec.md §4.5). n is
// the node already known to own the bits r.Dest agrees with over
// n.prefixLen (the caller — either Table.Insert or a previous
// recursive call — has already verified that).
func (t *Table) pcInsert(n *node, r *Route) (*Route, error) {
	sl := t.plan.Strides[n.level]
	tl := n.prefixLen + sl
	lstar := t.plan.PrefixLevel(r.PrefixLen)
	val := extractBits(r.Dest, n.prefixLen, sl)

	if r.PrefixLen < tl {
		idx := baseIndexInNode(val, r.PrefixLen-n.prefixLen, sl)
		return insertAtCompressed(n, idx, r), nil
	}

	fringeIdx := int(val) + n.size
	existing := n.slots[fringeIdx]

	if r.PrefixLen == tl {
		return insertAtCompressed(n, fringeIdx, r), nil
	}
	if existing.kind != slotChild {
		child, err := t.newCompressedNode(lstar, r.Dest)
		if err != nil {
			return nil, err
		}
		// existing always moves into the new child's default slot,
		// even when its PrefixLen is shorter than child.prefixLen —
		// it's still the best covering route for the whole stride
		// this child now owns, and dropping it would silently break
		// longest-prefix lookups for addresses it covers but r
		// doesn't. The child's nRoutes is not credited: existing sits
		// in n's fringe, so its native level is n's or above and it
		// stays counted there.
		if existing.kind == slotRoute {
			child.slots[1] = existing
		}
		n.slots[fringeIdx] = childSlot(child)
		n.nSubtables++
		idx := baseIndexInNode(extractBits(r.Dest, child.prefixLen, t.plan.Strides[lstar]), r.PrefixLen-child.prefixLen, t.plan.Strides[lstar])
		return insertAtCompressed(child, idx, r), nil
	}

	c := existing.child
	cmpLen := minInt(c.prefixLen, t.plan.LevelStart(lstar))
	if bitsEqual(c.prefix, r.Dest, cmpLen) {
		switch {
		case lstar > c.level:
			return t.pcInsert(c, r)
		case lstar < c.level:
			return t.insertNewSubtable(n, fringeIdx, c, lstar, lstar, r)
		default:
			idx := baseIndexInNode(extractBits(r.Dest, c.prefixLen, t.plan.Strides[c.level]), r.PrefixLen-c.prefixLen, t.plan.Strides[c.level])
			return insertAtCompressed(c, idx, r), nil
		}
	}

	diffBit := firstDiffBit(c.prefix, r.Dest, cmpLen)
	nl := t.plan.PrefixLevel(diffBit + 1)
	return t.insertNewSubtable(n, fringeIdx, c, nl, lstar, r)
}

// insertNewSubtable interposes a new heap at level nl between the
// parent's fringe slot and the displaced child c, then inserts r
// either directly into the interposer (nl == lstar) or into a fresh
// leaf hung off it (nl < lstar) (spec.md §4.5 "insertNewSubtable").
func (t *Table) insertNewSubtable(parent *node, fringeIdx int, c *node, nl, lstar int, r *Route) (*Route, error) {
	prefixLen := t.plan.LevelStart(nl)
	nst2, err := t.newCompressedNode(nl, c.prefix)
	if err != nil {
		return nil, err
	}

	strideNl := t.plan.Strides[nl]
	valToC := extractBits(c.prefix, prefixLen, strideNl)
	idxToC := int(valToC) + nst2.size

	nst2.slots[1] = c.slots[1]
	c.slots[1] = slot{}
	nst2.slots[idxToC] = childSlot(c)
	nst2.nSubtables++
	parent.slots[fringeIdx] = childSlot(nst2)

	if nl == lstar {
		idx := baseIndexInNode(extractBits(r.Dest, prefixLen, strideNl), r.PrefixLen-prefixLen, strideNl)
		return insertAtCompressed(nst2, idx, r), nil
	}

	nst, err := t.newCompressedNode(lstar, r.Dest)
	if err != nil {
		return nil, err
	}
	valToNst := extractBits(r.Dest, prefixLen, strideNl)
	idxToNst := int(valToNst) + nst2.size
	nst2.slots[idxToNst] = childSlot(nst)
	nst2.nSubtables++

	strideLstar := t.plan.Strides[lstar]
	idx := baseIndexInNode(extractBits(r.Dest, nst.prefixLen, strideLstar), r.PrefixLen-nst.prefixLen, strideLstar)
	return insertAtCompressed(nst, idx, r), nil
}

// insertAtCompressed is the path-compressed terminal insert step,
// mirroring insertAtSimple but maintaining nRoutes instead of count.
//
// idx can already hold a subtable pointer: a shorter route's native
// level sometimes coincides with a fringe slot a deeper insert already
// converted into a child heap (e.g. a /16 inserted after a /24 of the
// same network). allot redirects the write into that child's own
// default slot (slots[1]) in that case, so the current value to
// compare against must be read from there, not from idx's own slot —
// and the route still counts toward n's nRoutes since n.level is its
// native level (plen2level), regardless of where it physically lands.
func insertAtCompressed(n *node, idx int, r *Route) *Route {
	existing := n.slots[idx]
	if existing.kind == slotChild {
		cur := existing.child.slots[1].routeOrNil()
		if cur != nil && cur.PrefixLen == r.PrefixLen {
			return cur
		}
		n.nRoutes++
		allot(n, idx, cur, r)
		return r
	}
	if existing.kind == slotRoute && existing.route != nil && existing.route.PrefixLen == r.PrefixLen {
		return existing.route
	}
	n.nRoutes++
	allot(n, idx, existing.routeOrNil(), r)
	return r
}

// pcDelete implements path-compressed deletion (spec.md §4.5).
func (t *Table) pcDelete(dest []byte, plen int) (*Route, bool) {
	var path []pcFrame
	n := t.root
	for {
		sl := t.plan.Strides[n.level]
		tl := n.prefixLen + sl
		val := extractBits(dest, n.prefixLen, sl)

		if plen < tl {
			idx := baseIndexInNode(val, plen-n.prefixLen, sl)
			deleted, ok := deleteAtCompressed(n, idx, plen)
			if !ok {
				return nil, false
			}
			t.collapseCompressed(n, path)
			return deleted, true
		}

		fringeIdx := int(val) + n.size
		s := n.slots[fringeIdx]
		if s.kind == slotChild {
			// Symmetric case to insertAtCompressed's redirect: this
			// route's native level is n, but a later, more specific
			// insert turned the fringe slot into a child heap, so the
			// route (if present) lives in that child's own default
			// slot rather than here. Credit the decrement to n (the
			// native owner), not the child, and restore whatever
			// n's own allotment chain would otherwise supply.
			if plen == tl {
				child := s.child
				cur := child.slots[1].routeOrNil()
				if cur == nil || cur.PrefixLen != plen || !bitsEqual(cur.Dest, dest, plen) {
					return nil, false
				}
				next := n.slots[fringeIdx>>1].routeOrNil()
				allot(child, 1, cur, next)
				n.nRoutes--
				t.collapseCompressed(n, path)
				return cur, true
			}
			c := s.child
			if !bitsEqual(c.prefix, dest, c.prefixLen) {
				return nil, false
			}
			path = append(path, pcFrame{n, fringeIdx})
			n = c
			continue
		}

		if plen == tl {
			deleted, ok := deleteAtCompressed(n, fringeIdx, plen)
			if !ok {
				return nil, false
			}
			t.collapseCompressed(n, path)
			return deleted, true
		}
		return nil, false
	}
}

func deleteAtCompressed(n *node, idx, plen int) (*Route, bool) {
	existing := n.slots[idx]
	if existing.kind != slotRoute || existing.route == nil || existing.route.PrefixLen != plen {
		return nil, false
	}
	deleted := existing.route
	var next *Route
	if idx > 1 {
		next = n.slots[idx>>1].routeOrNil()
	}
	allot(n, idx, deleted, next)
	n.nRoutes--
	return deleted, true
}

// collapseCompressed walks back up the recorded descent path while the
// current node is empty of its own routes and has at most one
// remaining child (spec.md §4.5 "Delete"). A node with exactly one
// child is spliced out (its parent now points directly at that child;
// the parent's own bookkeeping is unchanged, so the walk stops). A
// node with zero children is freed outright and its default promoted
// into the grandparent's fringe slot as a plain route, which does
// change the grandparent's nSubtables, so the walk continues upward
// from there (see SPEC_FULL.md Open Question 4).
func (t *Table) collapseCompressed(n *node, path []pcFrame) {
	for len(path) > 0 && n.nRoutes == 0 && n.nSubtables <= 1 {
		top := path[len(path)-1]
		path = path[:len(path)-1]

		if n.nSubtables == 1 {
			child := soleChild(n)
			if def := child.slots[1].routeOrNil(); def == nil {
				child.slots[1] = n.slots[1]
				if d := n.slots[1].routeOrNil(); d != nil && d.PrefixLen == child.prefixLen {
					child.nRoutes++
				}
			}
			t.freeNode(n)
			top.parent.slots[top.fringeIdx] = childSlot(child)
			return
		}

		inherited := t.freeNode(n)
		top.parent.slots[top.fringeIdx] = inherited
		top.parent.nSubtables--
		n = top.parent
	}
}

// pcLookup implements longest-prefix-match over the path-compressed
// trie (spec.md §4.5 "Lookup"). Because heaps may be skipped, every
// candidate — the eventual hit and every remembered default — must be
// verified against dest before being trusted.
func (t *Table) pcLookup(dest []byte) *Route {
	n := t.root
	var pDef []*Route
	for {
		sl := t.plan.Strides[n.level]
		val := extractBits(dest, n.prefixLen, sl)
		fringeIdx := int(val) + n.size
		s := n.slots[fringeIdx]

		if s.kind == slotChild {
			if def := s.child.slots[1].routeOrNil(); def != nil {
				pDef = append(pDef, def)
			}
			n = s.child
			continue
		}

		if s.kind == slotRoute && s.route != nil && bitsEqual(s.route.Dest, dest, s.route.PrefixLen) {
			return s.route
		}
		for i := len(pDef) - 1; i >= 0; i-- {
			if bitsEqual(pDef[i].Dest, dest, pDef[i].PrefixLen) {
				return pDef[i]
			}
		}
		return defaultRoute(t.root)
	}
}

// pcExact implements exact-match over the path-compressed trie
// (spec.md §4.5 "Exact match").
func (t *Table) pcExact(dest []byte, plen int) *Route {
	n := t.root
	for {
		sl := t.plan.Strides[n.level]
		tl := n.prefixLen + sl
		val := extractBits(dest, n.prefixLen, sl)

		if plen < tl {
			idx := baseIndexInNode(val, plen-n.prefixLen, sl)
			return ascendExact(n, idx, plen, t.root)
		}
		fringeIdx := int(val) + n.size
		s := n.slots[fringeIdx]
		if s.kind == slotChild {
			if plen < s.child.prefixLen {
				if d := s.child.slots[1].routeOrNil(); d != nil && d.PrefixLen == plen {
					return d
				}
				return defaultRoute(t.root)
			}
			n = s.child
			continue
		}
		if plen == tl {
			return ascendExact(n, fringeIdx, plen, t.root)
		}
		return defaultRoute(t.root)
	}
}
