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
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	kinds "gopkg.in/src-d/go-errors.v1"
)

// Error taxonomy (spec §7), expressed as reusable *errors.Kind sentinels the
// way the teacher package declares its own auth error kinds: each Kind
// formats its own message and supports Kind.Is(err) for callers that want to
// distinguish build-time from load-time failures.
var (
	// ErrBuildConfig is fatal at Build: invalid field kind/type, an alias
	// pointing at a missing or non-facet/non-range field, or an empty
	// field set.
	ErrBuildConfig = kinds.NewKind("invalid index configuration: %s")

	// ErrBundleFormat is fatal at Deserialize: missing manifest/items, an
	// unsupported major version, or a capability/posting-list reference to
	// a field that doesn't exist. GetFacetSummary also returns it when asked
	// for a field that is not a declared facet.
	ErrBundleFormat = kinds.NewKind("invalid bundle format: %s")
)

// buildErrors accumulates independent field-validation failures (the way a
// multi-column DDL validator reports every bad column, not just the first)
// and, once non-empty, renders a single ErrBuildConfig.
type buildErrors struct {
	merr *multierror.Error
}

func (b *buildErrors) add(format string, args ...any) {
	b.merr = multierror.Append(b.merr, errors.Errorf(format, args...))
}

func (b *buildErrors) err() error {
	if b.merr == nil || len(b.merr.Errors) == 0 {
		return nil
	}
	return ErrBuildConfig.New(b.merr.Error())
}
