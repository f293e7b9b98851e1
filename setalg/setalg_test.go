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

package setalg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srid-dev/structidx/setalg"
)

func TestUnionFastPaths(t *testing.T) {
	require.Equal(t, []int{}, setalg.Union())
	require.Equal(t, []int{1, 2, 3}, setalg.Union([]int{1, 2, 3}))
	require.Equal(t, []int{1, 2, 3, 4}, setalg.Union([]int{1, 3}, []int{2, 4}))
}

func TestUnionDeduplicatesAcrossLists(t *testing.T) {
	got := setalg.Union([]int{1, 2, 5}, []int{2, 3}, []int{3, 5, 6})
	require.Equal(t, []int{1, 2, 3, 5, 6}, got)
}

func TestUnionKWayLargeFanIn(t *testing.T) {
	lists := make([][]int, 10)
	for i := range lists {
		lists[i] = []int{i, i + 10}
	}
	got := setalg.Union(lists...)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, got)
}

func TestUnionEmptyInputs(t *testing.T) {
	require.Equal(t, []int{1, 2}, setalg.Union(nil, []int{1, 2}, nil))
}

func TestIntersectBasic(t *testing.T) {
	var target []int
	setalg.Intersect([]int{1, 2, 3, 4}, []int{2, 4, 6}, &target)
	require.Equal(t, []int{2, 4}, target)
}

func TestIntersectEmpty(t *testing.T) {
	var target []int
	setalg.Intersect([]int{1, 2}, []int{3, 4}, &target)
	require.Equal(t, []int{}, target)
}

func TestIntersectReusesBuffer(t *testing.T) {
	target := make([]int, 0, 8)
	setalg.Intersect([]int{1, 2, 3}, []int{2, 3, 4}, &target)
	require.Equal(t, []int{2, 3}, target)
	prevCap := cap(target)

	setalg.Intersect([]int{5, 6}, []int{6, 7}, &target)
	require.Equal(t, []int{6}, target)
	require.Equal(t, prevCap, cap(target), "buffer should be reused, not reallocated, when capacity suffices")
}

func TestIntersectChainingAlternatesBuffers(t *testing.T) {
	a := []int{1, 2, 3, 4, 5}
	b := []int{2, 3, 4, 5, 6}
	c := []int{3, 4, 5, 6, 7}

	var bufA, bufB []int
	setalg.Intersect(a, b, &bufA)
	setalg.Intersect(bufA, c, &bufB)
	require.Equal(t, []int{3, 4, 5}, bufB)
}
