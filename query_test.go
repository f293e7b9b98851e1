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

package sridx_test

import (
	"testing"
	"time"

	"github.com/mitchellh/hashstructure"
	"github.com/stretchr/testify/require"

	sridx "github.com/srid-dev/structidx"
)

func buildBundle(t *testing.T, schema sridx.Schema, items []sridx.Item) *sridx.Bundle {
	t.Helper()
	b := sridx.NewBuilder(sridx.WithDiagnostics(sridx.DiscardDiagnostics))
	bundle, err := b.Build(schema, items)
	require.NoError(t, err)
	return bundle
}

func ids(items []sridx.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it["id"].(string)
	}
	return out
}

// S1
func TestScenarioEqualSingleValue(t *testing.T) {
	bundle := buildBundle(t, statusPrioritySchema(), []sridx.Item{
		{"id": "1", "status": "open", "priority": "high"},
		{"id": "2", "status": "open", "priority": "low"},
		{"id": "3", "status": "closed", "priority": "high"},
	})
	res := bundle.Query(sridx.Query{Equal: map[string]any{"status": "open"}})
	require.Equal(t, 2, res.Total)
	require.Equal(t, []string{"1", "2"}, ids(res.Items))
}

// S2
func TestScenarioInPlusNotEqual(t *testing.T) {
	bundle := buildBundle(t, statusPrioritySchema(), []sridx.Item{
		{"id": "1", "status": "open", "priority": "high"},
		{"id": "2", "status": "open", "priority": "low"},
		{"id": "3", "status": "closed", "priority": "high"},
	})
	res := bundle.Query(sridx.Query{
		Equal:    map[string]any{"priority": []any{"high", "urgent"}},
		NotEqual: map[string]any{"status": "closed"},
	})
	require.Equal(t, 1, res.Total)
	require.Equal(t, []string{"1"}, ids(res.Items))
}

func catSchema() sridx.Schema {
	return sridx.Schema{
		DatasetID: "cats",
		Fields: map[string]sridx.FieldSpec{
			"id":  {Kind: sridx.KindID, Type: sridx.TypeString},
			"cat": {Kind: sridx.KindFacet, Type: sridx.TypeString},
		},
	}
}

// S3
func TestScenarioEqualNullPromotesToIsNull(t *testing.T) {
	bundle := buildBundle(t, catSchema(), []sridx.Item{
		{"id": "1", "cat": nil},
		{"id": "2", "cat": "A"},
		{"id": "3", "cat": nil},
	})
	res := bundle.Query(sridx.Query{Equal: map[string]any{"cat": nil}})
	require.Equal(t, 2, res.Total)
	require.Equal(t, []string{"1", "3"}, ids(res.Items))
}

// S4
func TestScenarioEqualInUnionNull(t *testing.T) {
	bundle := buildBundle(t, catSchema(), []sridx.Item{
		{"id": "1", "cat": nil},
		{"id": "2", "cat": "A"},
		{"id": "3", "cat": nil},
	})
	res := bundle.Query(sridx.Query{Equal: map[string]any{"cat": []any{"A", nil}}})
	require.Equal(t, 3, res.Total)
	require.Equal(t, []string{"1", "2", "3"}, ids(res.Items))
}

func dateSchema() sridx.Schema {
	return sridx.Schema{
		DatasetID: "events",
		Fields: map[string]sridx.FieldSpec{
			"id":        {Kind: sridx.KindID, Type: sridx.TypeString},
			"status":    {Kind: sridx.KindFacet, Type: sridx.TypeString},
			"createdAt": {Kind: sridx.KindRange, Type: sridx.TypeDate},
		},
	}
}

// S5
func TestScenarioDateRange(t *testing.T) {
	bundle := buildBundle(t, dateSchema(), []sridx.Item{
		{"id": "1", "status": "a", "createdAt": "2025-01-15T00:00:00Z"},
		{"id": "2", "status": "a", "createdAt": "2025-07-01T00:00:00Z"},
		{"id": "3", "status": "a", "createdAt": "2025-08-15T00:00:00Z"},
		{"id": "4", "status": "a", "createdAt": "2025-12-01T00:00:00Z"},
		{"id": "5", "status": "a", "createdAt": "not-a-date"},
	})
	min := float64(mustParseMillis(t, "2025-06-01T00:00:00Z"))
	max := float64(mustParseMillis(t, "2025-09-01T00:00:00Z"))
	res := bundle.Query(sridx.Query{
		Ranges: map[string]sridx.RangeBound{"createdAt": {Min: &min, Max: &max}},
	})
	require.Equal(t, 2, res.Total)
	require.Equal(t, []string{"2", "3"}, ids(res.Items))
}

func mustParseMillis(t *testing.T, iso string) int64 {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, iso)
	require.NoError(t, err)
	return tm.UnixMilli()
}

func zoneSchema() sridx.Schema {
	return sridx.Schema{
		DatasetID: "zones",
		Fields: map[string]sridx.FieldSpec{
			"id":    {Kind: sridx.KindID, Type: sridx.TypeString},
			"zid":   {Kind: sridx.KindFacet, Type: sridx.TypeString},
			"zname": {Kind: sridx.KindAlias, Type: sridx.TypeString, AliasTarget: "zid"},
		},
	}
}

// S6
func TestScenarioAliasEnrichment(t *testing.T) {
	bundle := buildBundle(t, zoneSchema(), []sridx.Item{
		{"id": "1", "zid": "Z-1", "zname": "Zone A"},
		{"id": "2", "zid": "Z-2", "zname": "Zone B"},
		{"id": "3", "zid": "Z-1", "zname": "Zone A"},
	})

	res := bundle.Query(sridx.Query{
		Equal:         map[string]any{"zname": "Zone A"},
		EnrichAliases: []string{"zname"},
	})
	require.Equal(t, 2, res.Total)
	require.Equal(t, []string{"1", "3"}, ids(res.Items))
	for _, it := range res.Items {
		require.Equal(t, []string{"Zone A"}, it["zname"])
	}

	unknown := bundle.Query(sridx.Query{Equal: map[string]any{"zname": "Unknown"}})
	require.Equal(t, 3, unknown.Total)
}

func TestAliasRoundTrip(t *testing.T) {
	bundle := buildBundle(t, zoneSchema(), []sridx.Item{
		{"id": "1", "zid": "Z-1", "zname": "Zone A"},
		{"id": "2", "zid": "Z-2", "zname": "Zone B"},
	})
	byAlias := bundle.Query(sridx.Query{Equal: map[string]any{"zname": "Zone A"}})
	byCanonical := bundle.Query(sridx.Query{Equal: map[string]any{"zid": "Z-1"}})
	require.Equal(t, ids(byAlias.Items), ids(byCanonical.Items))
}

func TestDeterminismAcrossRepeatedQueries(t *testing.T) {
	bundle := buildBundle(t, statusPrioritySchema(), []sridx.Item{
		{"id": "1", "status": "open", "priority": "high"},
		{"id": "2", "status": "open", "priority": "low"},
		{"id": "3", "status": "closed", "priority": "high"},
	})
	q := sridx.Query{Equal: map[string]any{"status": "open"}, IncludeFacetCounts: true}

	h1, err := hashstructure.Hash(bundle.Query(q), nil)
	require.NoError(t, err)
	h2, err := hashstructure.Hash(bundle.Query(q), nil)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestPaginationLaw(t *testing.T) {
	items := []sridx.Item{
		{"id": "1", "status": "open", "priority": "high"},
		{"id": "2", "status": "open", "priority": "low"},
		{"id": "3", "status": "open", "priority": "high"},
		{"id": "4", "status": "open", "priority": "low"},
	}
	bundle := buildBundle(t, statusPrioritySchema(), items)

	full := bundle.Query(sridx.Query{Equal: map[string]any{"status": "open"}})
	require.Equal(t, 4, full.Total)

	limit := 2
	offset := 1
	page := bundle.Query(sridx.Query{Equal: map[string]any{"status": "open"}, Limit: &limit, Offset: &offset})
	require.Equal(t, 4, page.Total)
	require.Equal(t, ids(full.Items)[1:3], ids(page.Items))
}

func TestNegativeLimitYieldsZeroItemsButSameTotal(t *testing.T) {
	items := []sridx.Item{
		{"id": "1", "status": "open", "priority": "high"},
		{"id": "2", "status": "open", "priority": "low"},
	}
	bundle := buildBundle(t, statusPrioritySchema(), items)
	neg := -1
	res := bundle.Query(sridx.Query{Equal: map[string]any{"status": "open"}, Limit: &neg})
	require.Equal(t, 2, res.Total)
	require.Empty(t, res.Items)
}

func TestUnknownFacetFieldReturnsEmpty(t *testing.T) {
	bundle := buildBundle(t, statusPrioritySchema(), []sridx.Item{{"id": "1", "status": "open"}})
	res := bundle.Query(sridx.Query{Equal: map[string]any{"nope": "x"}})
	require.Equal(t, 0, res.Total)
	require.Empty(t, res.Items)
}

func TestUnknownRangeFieldReturnsEmpty(t *testing.T) {
	bundle := buildBundle(t, statusPrioritySchema(), []sridx.Item{{"id": "1", "status": "open"}})
	min := 1.0
	res := bundle.Query(sridx.Query{Ranges: map[string]sridx.RangeBound{"nope": {Min: &min}}})
	require.Equal(t, 0, res.Total)
}

func TestEmptyInListMatchesNothing(t *testing.T) {
	bundle := buildBundle(t, statusPrioritySchema(), []sridx.Item{{"id": "1", "status": "open"}})
	res := bundle.Query(sridx.Query{Equal: map[string]any{"status": []any{}}})
	require.Equal(t, 0, res.Total)
}

func TestFacetSummaryOrdering(t *testing.T) {
	schema := sridx.Schema{
		DatasetID: "nums",
		Fields: map[string]sridx.FieldSpec{
			"id":  {Kind: sridx.KindID, Type: sridx.TypeString},
			"n":   {Kind: sridx.KindFacet, Type: sridx.TypeNumber},
			"b":   {Kind: sridx.KindFacet, Type: sridx.TypeBoolean},
		},
	}
	bundle := buildBundle(t, schema, []sridx.Item{
		{"id": "1", "n": 3, "b": true},
		{"id": "2", "n": 1, "b": false},
		{"id": "3", "n": 2, "b": true},
	})

	numSummary, err := bundle.GetFacetSummary("n", nil)
	require.NoError(t, err)
	require.Len(t, numSummary, 3)
	require.Equal(t, float64(1), numSummary[0].Value)
	require.Equal(t, float64(2), numSummary[1].Value)
	require.Equal(t, float64(3), numSummary[2].Value)

	boolSummary, err := bundle.GetFacetSummary("b", nil)
	require.NoError(t, err)
	require.Equal(t, false, boolSummary[0].Value)
	require.Equal(t, true, boolSummary[1].Value)
}
