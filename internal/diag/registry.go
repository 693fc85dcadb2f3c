/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

// Package diag tracks heap (trie node) liveness for the invariant
// checks described in spec.md §8 ("No orphan heaps: the set of heaps
// reachable from the root equals the set of heaps allocated and not
// freed") and §9 ("DEBUG_FREE_HEAP instrumentation in the source").
//
// It is opt-in: Table only reports to a Registry when diagnostics are
// enabled, so normal operation pays no bookkeeping cost beyond a nil
// check.
package diag

import "github.com/bits-and-blooms/bitset"

// Registry assigns a monotonically increasing id to every tracked
// heap allocation and records which ids are still live in a bitset,
// the same structure gaissmai/bart and admpub/bart use for their own
// per-node occupancy bookkeeping.
type Registry struct {
	next uint
	live *bitset.BitSet
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{live: bitset.New(256)}
}

// Alloc records a new live heap and returns its id.
func (r *Registry) Alloc() uint {
	id := r.next
	r.next++
	r.live.Set(id)
	return id
}

// Free marks id as no longer live. Freeing an id that was never
// allocated, or that is already free, is a programmer error the
// caller is expected to have prevented; Free is idempotent regardless.
func (r *Registry) Free(id uint) {
	r.live.Clear(id)
}

// LiveCount returns the number of currently-live heaps.
func (r *Registry) LiveCount() uint {
	return r.live.Count()
}

// IsLive reports whether id is currently tracked as live.
func (r *Registry) IsLive(id uint) bool {
	return r.live.Test(id)
}

// LiveIDs returns the sorted set of currently-live heap ids, for tests
// that want to cross-check against a structural scan of the trie
// reachable from the root (spec.md §8).
func (r *Registry) LiveIDs() []uint {
	ids := make([]uint, 0, r.live.Count())
	for i, ok := r.live.NextSet(0); ok; i, ok = r.live.NextSet(i + 1) {
		ids = append(ids, i)
	}
	return ids
}
