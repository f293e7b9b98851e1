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
	"os"

	"github.com/sirupsen/logrus"
)

// Diagnostics is the pluggable sink build and query warnings are sent to
// (spec §6: "non-fatal warnings ... to a pluggable sink, default: process
// stderr"). Adapted from the teacher's auth.AuditMethod: wrap an event,
// attach structured fields, log it; here there's nothing to audit against,
// only a message and a field bag.
type Diagnostics interface {
	Warn(fields map[string]any, msg string)
}

// logrusDiagnostics logs through a *logrus.Logger the way auth.Log logs
// through one, tagging every entry with a "system" field so build and query
// warnings can be told apart in aggregate log output.
type logrusDiagnostics struct {
	log *logrus.Entry
}

// NewLogrusDiagnostics wraps l (or a fresh stderr logger, if l is nil) as a
// Diagnostics sink tagged with the given subsystem name.
func NewLogrusDiagnostics(l *logrus.Logger, system string) Diagnostics {
	if l == nil {
		l = logrus.New()
		l.Out = os.Stderr
	}
	return &logrusDiagnostics{log: l.WithField("system", system)}
}

func (d *logrusDiagnostics) Warn(fields map[string]any, msg string) {
	lf := make(logrus.Fields, len(fields))
	for k, v := range fields {
		lf[k] = v
	}
	d.log.WithFields(lf).Warn(msg)
}

// discardDiagnostics drops every warning; useful for tests and callers that
// pre-validate their input and don't want stderr noise.
type discardDiagnostics struct{}

func (discardDiagnostics) Warn(map[string]any, string) {}

// DiscardDiagnostics is a Diagnostics sink that ignores every warning.
var DiscardDiagnostics Diagnostics = discardDiagnostics{}

// defaultDiagnostics is the sink a Bundle falls back to for its own
// (query-time) warnings when the Builder that produced it was never given
// an explicit WithDiagnostics override, kept tagged separately from the
// "build" default so the two phases never share one system tag.
var defaultDiagnostics = NewLogrusDiagnostics(nil, "query")
