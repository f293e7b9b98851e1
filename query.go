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
	"context"
	"sort"
	"time"

	opentracing "github.com/opentracing/opentracing-go"

	"github.com/srid-dev/structidx/auth"
	"github.com/srid-dev/structidx/setalg"
)

// RangeBound is an inclusive [Min, Max] numeric bound; either side may be
// omitted.
type RangeBound struct {
	Min *float64
	Max *float64
}

// Query is the evaluator's input contract (spec §4.3). All filter families
// are conjoined (AND); within a single field's Equal list the semantics
// are IN (disjunction).
type Query struct {
	Equal     map[string]any
	NotEqual  map[string]any
	Ranges    map[string]RangeBound
	IsNull    []string
	IsNotNull []string

	Limit  *int
	Offset *int

	IncludeFacetCounts bool
	// EnrichAliases is bool (enrich every declared alias) or []string
	// (enrich only the named alias fields).
	EnrichAliases any

	// Caller identifies who issued the query, for the audit trail only.
	// It plays no part in evaluation.
	Caller string
}

// FacetCounts maps a facet field name to its stringified-value -> count
// table.
type FacetCounts map[string]map[string]int

// Result is what Bundle.Query returns. The evaluator is total: it never
// panics or returns an error, it returns an (possibly empty) Result.
type Result struct {
	Items           []Item
	Total           int
	Applied         Query
	Facets          FacetCounts
	Snapshot        Snapshot
	EnrichedAliases []map[string][]string
}

// Query evaluates q against the bundle and returns a deterministic Result.
// See spec §4.3 for the exact, numbered pipeline this implements.
func (b *Bundle) Query(q Query) Result {
	began := time.Now()
	span := opentracing.GlobalTracer().StartSpan("sridx.query")
	defer span.Finish()
	ctx := opentracing.ContextWithSpan(context.Background(), span)

	applied := Query{
		Equal:     q.Equal,
		NotEqual:  q.NotEqual,
		Ranges:    q.Ranges,
		IsNull:    q.IsNull,
		IsNotNull: q.IsNotNull,
	}

	eq, eqOrNull, eqPlainNull, queryIsEmpty := b.stageNormalizeEqual(ctx, q.Equal)
	notEq, notEqIsNotNull := b.stageNotEqual(ctx, q.NotEqual)

	isNull := appendUnique(q.IsNull, eqPlainNull)
	isNotNull := appendUnique(q.IsNotNull, notEqIsNotNull)

	if !queryIsEmpty {
		eq, queryIsEmpty = b.resolveAliases(ctx, eq)
	}

	var candidates []int
	if queryIsEmpty {
		candidates = []int{}
	} else {
		candidates = b.equalCandidates(ctx, eq)
	}

	if !queryIsEmpty {
		for field := range eqOrNull {
			nullIdx := b.nullIndices(field)
			candidates = setalg.Union(candidates, nullIdx)
		}
	}

	rangeOK := true
	if len(q.Ranges) > 0 {
		for field := range q.Ranges {
			if !b.manifest.isRange(field) {
				rangeOK = false
			}
		}
		if rangeOK {
			candidates = b.applyRanges(candidates, q.Ranges)
		} else {
			candidates = []int{}
		}
	}

	candidates = b.applyNullChecks(candidates, isNull, eqOrNull, isNotNull)
	candidates = b.applyExclusions(candidates, notEq)

	total := len(candidates)

	var facets FacetCounts
	if q.IncludeFacetCounts {
		facets = b.facetCounts(candidates)
	}

	start, end := paginationBounds(q.Offset, q.Limit, len(candidates))
	page := candidates[start:end]

	items := make([]Item, len(page))
	for i, idx := range page {
		items[i] = b.items[idx]
	}

	result := Result{
		Items:    items,
		Total:    total,
		Applied:  applied,
		Facets:   facets,
		Snapshot: b.manifest.snapshot(),
	}

	if shouldEnrich(q.EnrichAliases) {
		items2, enriched := b.enrich(items, q.EnrichAliases)
		result.Items = items2
		result.EnrichedAliases = enriched
	}

	b.auditor.Query(auth.QueryRecord{
		DatasetID: b.manifest.DatasetID,
		Caller:    q.Caller,
		Equal:     q.Equal,
		Duration:  time.Since(began),
		Total:     total,
	})

	return result
}

// stageNormalizeEqual wraps normalizeInSet in its own child span: the query
// as a whole is one span, each instrumented pipeline stage is a child.
func (b *Bundle) stageNormalizeEqual(ctx context.Context, equal map[string]any) (resolved map[string][]string, orNull map[string]bool, plainNull []string, empty bool) {
	span, _ := opentracing.StartSpanFromContext(ctx, "normalize.equal")
	defer span.Finish()
	return normalizeInSet(equal)
}

func (b *Bundle) stageNotEqual(ctx context.Context, notEqual map[string]any) (map[string][]string, []string) {
	span, _ := opentracing.StartSpanFromContext(ctx, "normalize.notEqual")
	defer span.Finish()

	resolved := map[string][]string{}
	var newIsNotNull []string
	for field, raw := range notEqual {
		vals := scalarValues(raw)
		var keys []string
		for _, v := range vals {
			if v == nil {
				newIsNotNull = append(newIsNotNull, field)
				continue
			}
			if s, ok := stringifyScalar(v); ok {
				keys = append(keys, s)
			}
		}
		if len(keys) > 0 {
			resolved[field] = keys
		}
	}
	return resolved, newIsNotNull
}

// normalizeInSet implements spec §4.3 step 1 for the Equal family: split
// nulls out into OR-null markers, detect the "empty IN list matches
// nothing" case.
func normalizeInSet(equal map[string]any) (resolved map[string][]string, orNull map[string]bool, plainNull []string, empty bool) {
	resolved = map[string][]string{}
	orNull = map[string]bool{}
	for field, raw := range equal {
		values, isList := raw.([]any)
		if !isList {
			values = []any{raw}
		}
		var nonNull []string
		hasNull := false
		for _, v := range values {
			if v == nil {
				hasNull = true
				continue
			}
			if s, ok := stringifyScalar(v); ok {
				nonNull = append(nonNull, s)
			}
		}
		switch {
		case len(values) == 0:
			// Explicit empty IN list: matches nothing, full stop.
			empty = true
			return
		case hasNull && len(nonNull) > 0:
			orNull[field] = true
			resolved[field] = dedupStrings(nonNull)
		case hasNull:
			// null-only: pure isNull semantics, no equal entry remains.
			plainNull = append(plainNull, field)
		default:
			resolved[field] = dedupStrings(nonNull)
			if len(resolved[field]) == 0 {
				// No supplied value stringified -- treat like an empty IN
				// list. stringifyScalar only fails for nil, which is split
				// out above, so this is a guard rather than a live path.
				empty = true
				return
			}
		}
	}
	return
}

func dedupStrings(ss []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func appendUnique(base []string, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	out := append([]string{}, base...)
	seen := map[string]struct{}{}
	for _, s := range out {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// resolveAliases implements spec §4.3 step 2: for every alias field in the
// (already null-split) equal set, resolve each value through aliasToIds.
// Unresolvable values are dropped with a warning; if every value for a
// field is unresolvable, the constraint is dropped entirely rather than
// forced empty.
func (b *Bundle) resolveAliases(ctx context.Context, eq map[string][]string) (map[string][]string, bool) {
	span, _ := opentracing.StartSpanFromContext(ctx, "alias-resolve")
	defer span.Finish()

	out := map[string][]string{}
	for field, values := range eq {
		if !b.manifest.isAlias(field) {
			out[field] = values
			continue
		}
		lt := b.lookups[field]
		var resolvedIDs []string
		for _, v := range values {
			ids, ok := lt.AliasToIDs[v]
			if !ok || len(ids) == 0 {
				b.diag.Warn(map[string]any{"alias": field, "value": v}, "alias value has no mapping; dropped")
				continue
			}
			resolvedIDs = append(resolvedIDs, ids...)
		}
		if len(resolvedIDs) == 0 {
			// Degrades to "no restriction": the constraint vanishes.
			continue
		}
		f, _ := b.manifest.FieldByName(field)
		target := f.AliasTarget
		resolvedIDs = dedupStrings(resolvedIDs)
		out[target] = dedupStrings(append(out[target], resolvedIDs...))
	}
	return out, false
}

// equalCandidates implements spec §4.3 step 3.
func (b *Bundle) equalCandidates(ctx context.Context, eq map[string][]string) []int {
	span, _ := opentracing.StartSpanFromContext(ctx, "equal-candidates")
	defer span.Finish()

	if len(eq) == 0 {
		all := make([]int, len(b.items))
		for i := range all {
			all[i] = i
		}
		return all
	}

	type fieldSet struct {
		field string
		ids   []int
	}
	sets := make([]fieldSet, 0, len(eq))
	for field, values := range eq {
		postings, ok := b.facetIndex[field]
		if !ok {
			return []int{}
		}
		if len(values) == 0 {
			return []int{}
		}
		var ids []int
		if len(values) == 1 {
			ids = postings[values[0]]
		} else {
			lists := make([][]int, 0, len(values))
			for _, v := range values {
				lists = append(lists, postings[v])
			}
			ids = setalg.Union(lists...)
		}
		sets = append(sets, fieldSet{field: field, ids: ids})
	}

	sort.Slice(sets, func(i, j int) bool { return len(sets[i].ids) < len(sets[j].ids) })

	current := sets[0].ids
	if len(current) == 0 {
		return []int{}
	}
	useA := true
	for _, s := range sets[1:] {
		if len(current) == 0 {
			break
		}
		var target []int
		if useA {
			setalg.Intersect(current, s.ids, &b.scratchA)
			target = b.scratchA
		} else {
			setalg.Intersect(current, s.ids, &b.scratchB)
			target = b.scratchB
		}
		useA = !useA
		out := make([]int, len(target))
		copy(out, target)
		current = out
	}
	return current
}

func (b *Bundle) nullIndices(field string) []int {
	var out []int
	for i, item := range b.items {
		if v, ok := b.access(item, field); !ok || v == nil {
			out = append(out, i)
		}
	}
	if out == nil {
		out = []int{}
	}
	return out
}

// applyRanges implements spec §4.3 step 5.
func (b *Bundle) applyRanges(candidates []int, ranges map[string]RangeBound) []int {
	b.scratchRange = b.scratchRange[:0]
	for _, idx := range candidates {
		item := b.items[idx]
		keep := true
		for field, bound := range ranges {
			f, _ := b.manifest.FieldByName(field)
			v, ok := b.access(item, field)
			if !ok {
				keep = false
				break
			}
			n, ok := coerceNumber(v, f.Type == TypeDate)
			if !ok {
				keep = false
				break
			}
			if bound.Min != nil && n < *bound.Min {
				keep = false
				break
			}
			if bound.Max != nil && n > *bound.Max {
				keep = false
				break
			}
		}
		if keep {
			b.scratchRange = append(b.scratchRange, idx)
		}
	}
	out := make([]int, len(b.scratchRange))
	copy(out, b.scratchRange)
	return out
}

// applyNullChecks implements spec §4.3 step 6, skipping fields already
// resolved as OR-null in step 4.
func (b *Bundle) applyNullChecks(candidates []int, isNull []string, orNull map[string]bool, isNotNull []string) []int {
	if len(isNull) == 0 && len(isNotNull) == 0 {
		return candidates
	}
	var effectiveNull []string
	for _, f := range isNull {
		if !orNull[f] {
			effectiveNull = append(effectiveNull, f)
		}
	}
	if len(effectiveNull) == 0 && len(isNotNull) == 0 {
		return candidates
	}

	out := make([]int, 0, len(candidates))
	for _, idx := range candidates {
		item := b.items[idx]
		ok := true
		for _, f := range effectiveNull {
			if v, present := b.access(item, f); present && v != nil {
				ok = false
				break
			}
		}
		if ok {
			for _, f := range isNotNull {
				if v, present := b.access(item, f); !present || v == nil {
					ok = false
					break
				}
			}
		}
		if ok {
			out = append(out, idx)
		}
	}
	return out
}

// applyExclusions implements spec §4.3 step 7. Null values never trigger
// exclusion; null handling is isNull/isNotNull's job exclusively.
func (b *Bundle) applyExclusions(candidates []int, notEqual map[string][]string) []int {
	if len(notEqual) == 0 {
		return candidates
	}
	out := make([]int, 0, len(candidates))
	for _, idx := range candidates {
		item := b.items[idx]
		excluded := false
		for field, excludedValues := range notEqual {
			v, ok := b.access(item, field)
			if !ok || v == nil {
				continue
			}
			for _, sv := range scalarValues(v) {
				s, ok := stringifyScalar(sv)
				if !ok {
					continue
				}
				if containsStr(excludedValues, s) {
					excluded = true
					break
				}
			}
			if excluded {
				break
			}
		}
		if !excluded {
			out = append(out, idx)
		}
	}
	return out
}

// facetCounts implements spec §4.3 step 9.
func (b *Bundle) facetCounts(candidates []int) FacetCounts {
	facets := make(FacetCounts, len(b.manifest.Capabilities.Facets))
	for _, field := range b.manifest.Capabilities.Facets {
		facets[field] = map[string]int{}
	}
	for _, idx := range candidates {
		item := b.items[idx]
		for _, field := range b.manifest.Capabilities.Facets {
			v, ok := b.access(item, field)
			if !ok || v == nil {
				continue
			}
			for _, sv := range scalarValues(v) {
				s, ok := stringifyScalar(sv)
				if !ok {
					continue
				}
				facets[field][s]++
			}
		}
	}
	return facets
}

// paginationBounds implements spec §4.3 step 10.
func paginationBounds(offset, limit *int, total int) (start, end int) {
	start = 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start > total {
		start = total
	}
	if limit == nil {
		return start, total
	}
	l := *limit
	if l < 0 {
		l = 0
	}
	end = start + l
	if end > total {
		end = total
	}
	return start, end
}

func shouldEnrich(e any) bool {
	switch v := e.(type) {
	case bool:
		return v
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return false
	}
}

// enrich implements spec §4.3 step 12: attach alias values back onto
// (shallow-copied) items, and build the parallel side table.
func (b *Bundle) enrich(items []Item, spec any) ([]Item, []map[string][]string) {
	var wanted []string
	switch v := spec.(type) {
	case bool:
		wanted = b.manifest.Capabilities.Aliases
	case []string:
		wanted = v
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				wanted = append(wanted, str)
			}
		}
	}

	aliasByTarget := map[string]Field{}
	for _, name := range wanted {
		f, ok := b.manifest.FieldByName(name)
		if !ok || f.Kind != KindAlias {
			continue
		}
		aliasByTarget[name] = f
	}

	outItems := make([]Item, len(items))
	enriched := make([]map[string][]string, len(items))
	for i, item := range items {
		enriched[i] = map[string][]string{}
		clone := cloneItem(item)
		for aliasField, f := range aliasByTarget {
			lt := b.lookups[aliasField]
			v, ok := b.access(item, f.AliasTarget)
			if !ok || v == nil {
				continue
			}
			var aliasVals []string
			for _, sv := range scalarValues(v) {
				id, ok := stringifyScalar(sv)
				if !ok {
					continue
				}
				aliasVals = append(aliasVals, lt.IDToAliases[id]...)
			}
			aliasVals = dedupStrings(aliasVals)
			clone[aliasField] = aliasVals
			enriched[i][aliasField] = aliasVals
		}
		outItems[i] = clone
	}
	return outItems, enriched
}

func cloneItem(item Item) Item {
	out := make(Item, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	return out
}
