// Copyright 2024 The structidx Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package setalg implements the sorted-integer set algebra that backs
// posting-list evaluation: a k-way union, which allocates only its output
// slice, and a pairwise intersection, which writes into a caller-provided
// buffer to avoid allocation on the hot path. Every input and output slice
// is sorted ascending and duplicate-free; callers (the index builder, the
// query evaluator) are responsible for that invariant on the way in.
package setalg

import "container/heap"

// Union merges any number of sorted, duplicate-free slices into one sorted,
// duplicate-free slice. It takes the fast paths the spec calls out
// explicitly: zero lists is the empty slice, one list is returned as a
// defensive copy, two lists use a plain two-pointer merge. Three or more
// lists go through a min-heap k-way merge, O(N log k).
func Union(lists ...[]int) []int {
	switch len(lists) {
	case 0:
		return []int{}
	case 1:
		out := make([]int, len(lists[0]))
		copy(out, lists[0])
		return out
	case 2:
		return union2(lists[0], lists[1])
	default:
		return unionK(lists)
	}
}

func union2(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

type headItem struct {
	list int
	val  int
}

type headHeap []headItem

func (h headHeap) Len() int            { return len(h) }
func (h headHeap) Less(i, j int) bool  { return h[i].val < h[j].val }
func (h headHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *headHeap) Push(x any)         { *h = append(*h, x.(headItem)) }
func (h *headHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func unionK(lists [][]int) []int {
	total := 0
	h := make(headHeap, 0, len(lists))
	for idx, l := range lists {
		total += len(l)
		if len(l) > 0 {
			h = append(h, headItem{list: idx, val: l[0]})
		}
	}
	heap.Init(&h)

	next := make([]int, len(lists))
	out := make([]int, 0, total)
	hasLast := false
	var last int
	for h.Len() > 0 {
		top := heap.Pop(&h).(headItem)
		if !hasLast || top.val != last {
			out = append(out, top.val)
			last = top.val
			hasLast = true
		}
		next[top.list]++
		if n := next[top.list]; n < len(lists[top.list]) {
			heap.Push(&h, headItem{list: top.list, val: lists[top.list][n]})
		}
	}
	return out
}

// Intersect writes the sorted intersection of a and b into *target,
// reusing its backing array (truncated to zero length, never reallocated
// unless capacity is insufficient) so repeated calls in an intersection
// chain allocate at most once per growth. Intersect is commutative but,
// because it reuses *target in place, chaining a sequence of intersections
// through the same buffer is not associative: the evaluator alternates
// between two scratch buffers so neither call ever reads from the buffer
// it is about to overwrite.
func Intersect(a, b []int, target *[]int) {
	out := (*target)[:0]
	if out == nil {
		out = []int{}
	}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	*target = out
}
