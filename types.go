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

// Package sridx implements a portable, deterministic, precomputed
// structured-retrieval index: an offline builder turns a homogeneous
// collection of records plus a field schema into an immutable bundle that
// answers attribute queries with exact, repeatable semantics.
package sridx

// Scalar is a raw record value: nil, bool, a number (int/int64/float64),
// a string, or a []any of any of the above (array-valued fields). Nested
// objects are accepted but are stringified opaquely at index time, never
// recursed into.
type Scalar = any

// Item is a single indexed record. The default Accessor treats it as a
// plain field map; callers with a different in-memory representation can
// supply their own Accessor to Builder.BuildWithAccessor.
type Item = map[string]any

// Accessor reads a named field off a record, following the "dynamic field
// access" capability described for target languages that cannot reflect
// into arbitrary record shapes. The default accessor used throughout this
// package treats items as Item (map[string]any).
type Accessor func(item Item, field string) (Scalar, bool)

func defaultAccessor(item Item, field string) (Scalar, bool) {
	v, ok := item[field]
	return v, ok
}

// FieldKind says how a field participates in indexing.
type FieldKind string

const (
	KindID    FieldKind = "id"
	KindFacet FieldKind = "facet"
	KindRange FieldKind = "range"
	KindMeta  FieldKind = "meta"
	KindAlias FieldKind = "alias"
)

// FieldType is the scalar type a field is declared to hold.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	// TypeDate values are ISO-8601 strings or epoch-ms numbers; they are
	// always compared as epoch-ms in range queries.
	TypeDate FieldType = "date"
)

// FieldSpec is the explicit, build-time declaration of one field. This is
// the only config shape the core consumes; ergonomic/inferred config shapes
// are the job of an external "config inflator" collaborator (out of scope,
// see spec §6).
type FieldSpec struct {
	Kind FieldKind
	Type FieldType
	// AliasTarget names the canonical facet-or-range field this alias
	// resolves to. Required (and only meaningful) when Kind == KindAlias.
	AliasTarget string
}

// Schema is the explicit build input: a dataset identifier and a field
// dictionary keyed by field name.
type Schema struct {
	DatasetID string
	Fields    map[string]FieldSpec
}

// Field is the manifest's per-field description, derived from a FieldSpec
// at build time (Ops is computed, never user-supplied).
type Field struct {
	Name        string      `json:"name"`
	Kind        FieldKind   `json:"kind"`
	Type        FieldType   `json:"type"`
	Ops         []string    `json:"ops"`
	AliasTarget string      `json:"aliasTarget,omitempty"`
}

func opsForKind(k FieldKind) []string {
	if k == KindRange {
		return []string{"between", "gte", "lte"}
	}
	return []string{"eq", "in"}
}

// Capabilities is the authoritative list of queryable fields by role.
type Capabilities struct {
	Facets  []string `json:"facets"`
	Ranges  []string `json:"ranges"`
	Aliases []string `json:"aliases,omitempty"`
}

// LookupTable holds the two inverses built from item data for one alias
// field. Both maps are duplicate-free but unordered by contract.
type LookupTable struct {
	AliasToIDs  map[string][]string `json:"aliasToIds"`
	IDToAliases map[string][]string `json:"idToAliases"`
}

// Manifest is the bundle's immutable, self-describing schema. Any unknown
// top-level keys encountered on deserialize are preserved round-trip in
// Extra rather than stripped (spec §6 compatibility rule).
type Manifest struct {
	Version      string                  `json:"version"`
	DatasetID    string                  `json:"datasetId"`
	BuiltAt      string                  `json:"builtAt"`
	Fields       []Field                 `json:"fields"`
	Capabilities Capabilities            `json:"capabilities"`
	Lookups      map[string]LookupTable  `json:"lookups,omitempty"`

	// Extra carries any manifest keys this version of the package does not
	// know about, so a reader built against an older/newer minor revision
	// of the manifest shape doesn't silently drop caller data on a
	// serialize/deserialize round trip.
	Extra map[string]rawMessage `json:"-"`
}

// Snapshot is the identity card returned with every query result.
type Snapshot struct {
	DatasetID    string `json:"datasetId"`
	BuiltAt      string `json:"builtAt"`
	IndexVersion string `json:"indexVersion"`
}

func (m Manifest) snapshot() Snapshot {
	return Snapshot{DatasetID: m.DatasetID, BuiltAt: m.BuiltAt, IndexVersion: m.Version}
}

// FieldByName returns the Field declaration for name, if any.
func (m Manifest) FieldByName(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (m Manifest) isFacet(name string) bool {
	return containsStr(m.Capabilities.Facets, name)
}

func (m Manifest) isRange(name string) bool {
	return containsStr(m.Capabilities.Ranges, name)
}

func (m Manifest) isAlias(name string) bool {
	return containsStr(m.Capabilities.Aliases, name)
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
