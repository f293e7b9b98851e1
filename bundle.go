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
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/srid-dev/structidx/auth"
)

type rawMessage = json.RawMessage

// Bundle is the immutable aggregate described in spec §3: manifest, items,
// posting lists and alias lookups, plus the scratch buffers the evaluator
// reuses across queries. A single Bundle is not safe for concurrent
// queries (spec §5) because those buffers are mutated in place; distinct
// Bundle instances over the same data are always safe.
type Bundle struct {
	manifest   Manifest
	items      []Item
	facetIndex map[string]map[string][]int
	lookups    map[string]LookupTable
	access     Accessor
	diag       Diagnostics
	auditor    auth.Method

	scratchA     []int
	scratchB     []int
	scratchRange []int
}

// Describe returns the bundle's manifest.
func (b *Bundle) Describe() Manifest {
	return b.manifest
}

// Snapshot returns the bundle's identity card.
func (b *Bundle) Snapshot() Snapshot {
	return b.manifest.snapshot()
}

// Len reports the number of items in the bundle.
func (b *Bundle) Len() int {
	return len(b.items)
}

// Aliases returns a single alias value's resolved canonical IDs.
func (b *Bundle) Aliases(field, value string) []string {
	lt, ok := b.lookups[field]
	if !ok {
		return nil
	}
	return lt.AliasToIDs[value]
}

// AliasesBatch resolves multiple alias values for one alias field.
func (b *Bundle) AliasesBatch(field string, values []string) map[string][]string {
	lt, ok := b.lookups[field]
	out := make(map[string][]string, len(values))
	if !ok {
		return out
	}
	for _, v := range values {
		out[v] = lt.AliasToIDs[v]
	}
	return out
}

// AliasesForID returns every alias value, across the named alias fields,
// that resolves to canonical id. If fields is empty, every declared alias
// field is consulted.
func (b *Bundle) AliasesForID(id string, fields ...string) map[string][]string {
	if len(fields) == 0 {
		fields = b.manifest.Capabilities.Aliases
	}
	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		if lt, ok := b.lookups[f]; ok {
			out[f] = lt.IDToAliases[id]
		}
	}
	return out
}

// LookupTables returns the full alias field -> LookupTable map.
func (b *Bundle) LookupTables() map[string]LookupTable {
	return b.lookups
}

// wireFormat is the stable, JSON-compatible serialization shape (spec §6).
type wireFormat struct {
	Manifest   json.RawMessage                `json:"manifest"`
	Items      []Item                         `json:"items"`
	FacetIndex map[string]map[string][]int    `json:"facetIndex"`
}

// manifestAlias exists purely so MarshalJSON/UnmarshalJSON on Manifest
// don't recurse into themselves.
type manifestAlias Manifest

// MarshalJSON emits the manifest's known fields plus any Extra keys
// captured on a prior deserialize, so a round trip never drops data this
// version of the package doesn't understand.
func (m Manifest) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(manifestAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the manifest's known fields and stashes everything
// else in Extra.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var alias manifestAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{"version", "datasetId", "builtAt", "fields", "capabilities", "lookups"} {
		delete(raw, known)
	}
	*m = Manifest(alias)
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// Serialize emits {manifest, items, facetIndex} as a plain JSON-compatible
// tree (spec §6's stable wire format).
func (b *Bundle) Serialize() ([]byte, error) {
	manifestJSON, err := json.Marshal(b.manifest)
	if err != nil {
		return nil, errors.Wrap(err, "marshal manifest")
	}
	wire := wireFormat{
		Manifest:   manifestJSON,
		Items:      b.items,
		FacetIndex: b.facetIndex,
	}
	out, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(err, "marshal bundle")
	}
	return out, nil
}

// Deserialize validates and loads a bundle previously produced by
// Serialize (or any producer honoring the wire format). Fatal format
// violations return ErrBundleFormat.
func Deserialize(data []byte, opts ...BuildOption) (*Bundle, error) {
	var wire struct {
		Manifest json.RawMessage              `json:"manifest"`
		Items    []Item                       `json:"items"`
		FacetIndex map[string]map[string][]int `json:"facetIndex"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, ErrBundleFormat.New("not valid JSON: " + err.Error())
	}
	if wire.Manifest == nil {
		return nil, ErrBundleFormat.New("missing manifest")
	}
	if wire.Items == nil {
		return nil, ErrBundleFormat.New("missing items")
	}

	var manifest Manifest
	if err := json.Unmarshal(wire.Manifest, &manifest); err != nil {
		return nil, ErrBundleFormat.New("malformed manifest: " + err.Error())
	}

	major := manifest.Version
	if i := strings.IndexByte(major, '.'); i >= 0 {
		major = major[:i]
	}
	if major != "1" && major != "2" {
		return nil, ErrBundleFormat.New("unsupported manifest version " + manifest.Version)
	}
	if len(manifest.Fields) == 0 {
		return nil, ErrBundleFormat.New("manifest declares no fields")
	}

	declared := map[string]bool{}
	for _, f := range manifest.Fields {
		declared[f.Name] = true
	}
	for _, name := range manifest.Capabilities.Facets {
		if !declared[name] {
			return nil, ErrBundleFormat.New("capabilities.facets references undeclared field " + name)
		}
	}
	for _, name := range manifest.Capabilities.Ranges {
		if !declared[name] {
			return nil, ErrBundleFormat.New("capabilities.ranges references undeclared field " + name)
		}
	}
	isFacet := map[string]bool{}
	for _, name := range manifest.Capabilities.Facets {
		isFacet[name] = true
	}
	for field := range wire.FacetIndex {
		if !isFacet[field] {
			return nil, ErrBundleFormat.New("facetIndex references non-facet field " + field)
		}
	}

	facetIndex := wire.FacetIndex
	if facetIndex == nil {
		facetIndex = map[string]map[string][]int{}
	}
	for _, name := range manifest.Capabilities.Facets {
		if _, ok := facetIndex[name]; !ok {
			facetIndex[name] = map[string][]int{}
		}
	}

	b := NewBuilder(opts...)
	bundle := &Bundle{
		manifest:   manifest,
		items:      wire.Items,
		facetIndex: facetIndex,
		lookups:    manifest.Lookups,
		access:     defaultAccessor,
		diag:       b.bundleDiagnostics(),
		auditor:    b.auditor,
	}
	return bundle, nil
}
