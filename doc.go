/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2020 Tailscale Inc. All Rights Reserved.
 */

// Package art implements the Allotment Routing Table, "A Fast Free
// Multibit Trie Based Routing Table".
//
// See https://cseweb.ucsd.edu/~varghese/TEACH/cs228/artlookup.pdf
//
// The table stores prefixes of arbitrary but fixed bit-width keys
// (IPv4 /32, IPv6 /128, or anything else that fits a byte string) and
// answers longest-prefix-match and exact-match lookups in O(levels)
// indexed loads. Two variants are provided: a dense trie with one heap
// per stride level, and a path-compressed trie that elides heaps at
// levels where no two stored prefixes diverge.
package art
