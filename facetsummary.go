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

package sridx

import (
	"sort"

	"github.com/spf13/cast"
)

// FacetValueCount is one re-typed, sorted entry of a facet summary.
type FacetValueCount struct {
	Value any
	Count int
}

// GetFacetSummary runs a zero-limit query (optionally narrowed by filters,
// whose pagination/enrichment/facet-count settings are ignored) with
// IncludeFacetCounts forced on, and re-types the stringified posting keys
// for field according to its declared type: numbers become float64,
// booleans become bool, everything else stays string. Entries are sorted
// per spec §4.3(iv): numbers ascending, false before true, strings in
// lexicographic code-point order.
func (b *Bundle) GetFacetSummary(field string, filters *Query) ([]FacetValueCount, error) {
	f, ok := b.manifest.FieldByName(field)
	if !ok || f.Kind != KindFacet {
		return nil, ErrBundleFormat.New("not a facet field: " + field)
	}

	q := Query{}
	if filters != nil {
		q = *filters
	}
	zero := 0
	q.Limit = &zero
	q.IncludeFacetCounts = true
	q.EnrichAliases = nil

	res := b.Query(q)
	counts := res.Facets[field]

	out := make([]FacetValueCount, 0, len(counts))
	for key, count := range counts {
		out = append(out, FacetValueCount{Value: retypeFacetKey(key, f.Type), Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return facetValueLess(out[i].Value, out[j].Value) })
	return out, nil
}

func retypeFacetKey(key string, t FieldType) any {
	switch t {
	case TypeNumber:
		if n, err := cast.ToFloat64E(key); err == nil {
			return n
		}
	case TypeBoolean:
		return key == "true"
	}
	return key
}

func facetValueLess(a, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return !av && bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return false
}
