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
	"time"

	"github.com/srid-dev/structidx/auth"
)

const manifestVersion = "2.0.0"

// Builder runs the offline build step: (items, schema) -> Bundle.
type Builder struct {
	diag          Diagnostics
	diagIsDefault bool
	auditor       auth.Method
}

// BuildOption configures a Builder.
type BuildOption func(*Builder)

// WithDiagnostics overrides the Builder's warning sink (default: a logrus
// logger writing to stderr, tagged "system":"build" for build-time warnings
// and "system":"query" for the warnings the resulting Bundle emits at query
// time). Supplying an explicit sink here replaces both: the caller's sink
// sees every warning, build- and query-time alike, under one "system" tag.
func WithDiagnostics(d Diagnostics) BuildOption {
	return func(b *Builder) { b.diag = d; b.diagIsDefault = false }
}

// WithAuditor attaches a query audit trail to every Bundle this Builder
// produces (default: auth.Discard{}, which records nothing).
func WithAuditor(m auth.Method) BuildOption {
	return func(b *Builder) { b.auditor = m }
}

// NewBuilder constructs a Builder.
func NewBuilder(opts ...BuildOption) *Builder {
	b := &Builder{diag: NewLogrusDiagnostics(nil, "build"), diagIsDefault: true, auditor: auth.Discard{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// bundleDiagnostics returns the sink a Bundle produced by this Builder
// should use for its own (query-time) warnings: the caller's explicit
// override if one was supplied, or the package's "query"-tagged default
// otherwise, kept distinct from the "build"-tagged default so build and
// query warnings are never conflated under the same system tag.
func (b *Builder) bundleDiagnostics() Diagnostics {
	if b.diagIsDefault {
		return defaultDiagnostics
	}
	return b.diag
}

// Build constructs a Bundle from items using the default map-field
// accessor. Items are held by reference; callers must not mutate them
// after this call returns.
func (b *Builder) Build(schema Schema, items []Item) (*Bundle, error) {
	return b.BuildWithAccessor(schema, items, defaultAccessor)
}

// BuildWithAccessor is Build with a caller-supplied field accessor, for
// item representations other than map[string]any.
func (b *Builder) BuildWithAccessor(schema Schema, items []Item, access Accessor) (*Bundle, error) {
	if len(schema.Fields) == 0 {
		return nil, ErrBuildConfig.New("schema declares no fields")
	}

	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	berr := &buildErrors{}
	fields := make([]Field, 0, len(names))
	kindOf := map[string]FieldKind{}

	for _, name := range names {
		spec := schema.Fields[name]
		switch spec.Kind {
		case KindID, KindFacet, KindRange, KindMeta, KindAlias:
		default:
			berr.add("field %q: unknown kind %q", name, spec.Kind)
			continue
		}
		switch spec.Type {
		case TypeString, TypeNumber, TypeBoolean, TypeDate:
		default:
			berr.add("field %q: unknown type %q", name, spec.Type)
			continue
		}
		if spec.Kind == KindAlias && spec.AliasTarget == "" {
			berr.add("field %q: alias field missing aliasTarget", name)
			continue
		}

		f := Field{Name: name, Kind: spec.Kind, Type: spec.Type, Ops: opsForKind(spec.Kind)}
		if spec.Kind == KindAlias {
			f.AliasTarget = spec.AliasTarget
		}
		fields = append(fields, f)
		kindOf[name] = spec.Kind
	}

	var facetNames, rangeNames, aliasNames []string
	for _, f := range fields {
		switch f.Kind {
		case KindFacet:
			facetNames = append(facetNames, f.Name)
		case KindRange:
			rangeNames = append(rangeNames, f.Name)
		case KindAlias:
			aliasNames = append(aliasNames, f.Name)
			targetKind, ok := kindOf[f.AliasTarget]
			if !ok || (targetKind != KindFacet && targetKind != KindRange) {
				berr.add("alias %q targets %q, which is not a declared facet or range field", f.Name, f.AliasTarget)
			}
		}
	}

	if err := berr.err(); err != nil {
		return nil, err
	}

	b.warnOnMissingFields(fields, items, access)

	facetIndex := buildFacetIndex(facetNames, items, access)
	lookups := b.buildLookups(fields, items, access)

	manifest := Manifest{
		Version:   manifestVersion,
		DatasetID: schema.DatasetID,
		BuiltAt:   nowUTCISO(),
		Fields:    fields,
		Capabilities: Capabilities{
			Facets:  orEmpty(facetNames),
			Ranges:  orEmpty(rangeNames),
			Aliases: aliasNames,
		},
	}
	if len(lookups) > 0 {
		manifest.Lookups = lookups
	}

	bundle := &Bundle{
		manifest:   manifest,
		items:      items,
		facetIndex: facetIndex,
		lookups:    lookups,
		access:     access,
		diag:       b.bundleDiagnostics(),
		auditor:    b.auditor,
	}
	return bundle, nil
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nowUTCISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// warnOnMissingFields implements the spec's soft schema validation: a
// declared field absent from every item is warned about, not fatal.
func (b *Builder) warnOnMissingFields(fields []Field, items []Item, access Accessor) {
	for _, f := range fields {
		present := false
		for _, item := range items {
			if _, ok := access(item, f.Name); ok {
				present = true
				break
			}
		}
		if !present {
			b.diag.Warn(map[string]any{"field": f.Name}, "declared field not present on any item")
		}
	}
}

// buildFacetIndex ingests items in input order, stringifying (possibly
// array) values into posting-list keys, then sorts and dedupes every
// posting list in place -- the hard invariant setalg relies on.
func buildFacetIndex(facetNames []string, items []Item, access Accessor) map[string]map[string][]int {
	index := make(map[string]map[string][]int, len(facetNames))
	for _, name := range facetNames {
		index[name] = map[string][]int{}
	}

	for idx, item := range items {
		for _, name := range facetNames {
			v, ok := access(item, name)
			if !ok || v == nil {
				continue
			}
			for _, sv := range scalarValues(v) {
				key, ok := stringifyScalar(sv)
				if !ok {
					continue
				}
				index[name][key] = append(index[name][key], idx)
			}
		}
	}

	for _, postings := range index {
		for key, list := range postings {
			sort.Ints(list)
			postings[key] = dedupSortedInts(list)
		}
	}
	return index
}

func dedupSortedInts(sorted []int) []int {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// buildLookups walks items once per declared alias field, building the
// aliasToIds/idToAliases inverses. Array-valued sides are skipped with a
// warning (aliases are scalar-to-scalar only); an alias with zero valid
// pairs is warned about but still produced, empty, so it matches nothing
// at query time rather than failing the build.
func (b *Builder) buildLookups(fields []Field, items []Item, access Accessor) map[string]LookupTable {
	lookups := map[string]LookupTable{}
	for _, f := range fields {
		if f.Kind != KindAlias {
			continue
		}
		aliasToIDs := map[string]map[string]struct{}{}
		idToAliases := map[string]map[string]struct{}{}
		validPairs := 0

		for _, item := range items {
			av, aok := access(item, f.Name)
			tv, tok := access(item, f.AliasTarget)
			if !aok || !tok || av == nil || tv == nil {
				continue
			}
			if isArrayValue(av) || isArrayValue(tv) {
				b.diag.Warn(map[string]any{"alias": f.Name, "target": f.AliasTarget},
					"skipping item: alias pairs must be scalar-to-scalar")
				continue
			}
			ak, ok1 := stringifyScalar(av)
			tk, ok2 := stringifyScalar(tv)
			if !ok1 || !ok2 {
				continue
			}
			addToSet(aliasToIDs, ak, tk)
			addToSet(idToAliases, tk, ak)
			validPairs++
		}

		if validPairs == 0 {
			b.diag.Warn(map[string]any{"alias": f.Name}, "alias field produced zero valid pairs; it will match nothing")
		}

		lookups[f.Name] = LookupTable{
			AliasToIDs:  flattenSet(aliasToIDs),
			IDToAliases: flattenSet(idToAliases),
		}
	}
	return lookups
}

func addToSet(m map[string]map[string]struct{}, key, val string) {
	set, ok := m[key]
	if !ok {
		set = map[string]struct{}{}
		m[key] = set
	}
	set[val] = struct{}{}
}

func flattenSet(m map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		out[k] = vals
	}
	return out
}
