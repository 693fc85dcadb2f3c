/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

package art

// Route is an entry in the routing table: a destination prefix plus an
// opaque payload. The prefix identity is (Dest masked to PrefixLen,
// PrefixLen); bits of Dest at or beyond PrefixLen are never inspected
// for identity but are kept verbatim for the caller.
type Route struct {
	Dest      []byte // network byte order, len(Dest) == ceil(AddrBits/8)
	PrefixLen int
	Payload   interface{}
}

// sameKey reports whether a and b identify the same route, i.e. same
// prefix length and same bits over that length. It does not compare
// Payload: two routes with the same key are the same table entry by
// definition (spec.md §3 "A route is identified by the pair").
func sameKey(a, b *Route) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.PrefixLen == b.PrefixLen && bitsEqual(a.Dest, b.Dest, a.PrefixLen)
}

// routeIdentical is pointer-or-nil equality, used by the allotment
// algorithm to recognize "the same covering route pointer" while it
// propagates a replacement (spec.md §4.3).
func routeIdentical(a, b *Route) bool {
	return a == b
}
