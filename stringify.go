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
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// isArrayValue reports whether v is an array-valued field (§3: "if
// array-valued, iterate each element; else treat the value as a
// singleton").
func isArrayValue(v Scalar) bool {
	_, ok := v.([]any)
	return ok
}

// scalarValues expands v into its constituent scalars: itself for a
// singleton, its elements for an array. Nested arrays are not recursed
// into; an element that is itself a slice is stringified opaquely like any
// other non-scalar.
func scalarValues(v Scalar) []Scalar {
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []Scalar{v}
}

// stringifyScalar renders v with the canonical scalar-to-string mapping
// (§4.2): decimal digits for numbers, "true"/"false" for booleans, verbatim
// for strings. A value cast can't coerce to a string (an opaque nested
// structure) is rendered with fmt.Sprint, so this only returns ok=false for
// nil (no posting-list key).
func stringifyScalar(v Scalar) (string, bool) {
	if v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return s, true
}

// coerceNumber turns a raw range-position value into a float64 for
// min/max comparison (§4.3 step 5). A date field interprets a string as an
// ISO-8601 timestamp (epoch-ms) rather than a plain decimal number; a
// numeric value always passes through as-is regardless of declared type,
// matching the spec's "date means ISO-8601 string or epoch-ms number"
// rule. Unparseable or nil input reports ok=false so the caller rejects the
// item rather than guessing.
func coerceNumber(v Scalar, isDate bool) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if n, err := cast.ToFloat64E(v); err == nil {
		return n, true
	}
	if isDate {
		if s, ok := v.(string); ok {
			if t, err := parseISO8601(s); err == nil {
				return float64(t.UnixMilli()), true
			}
		}
	}
	return 0, false
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseISO8601(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
