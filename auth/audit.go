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

// Package auth provides an optional audit trail for queries run against a
// bundle: who asked what, how long it took, and how many rows came back.
// It has no bearing on query evaluation itself.
package auth

import (
	"time"

	"github.com/sirupsen/logrus"
)

// QueryRecord describes one completed query, independent of the bundle or
// query types it came from, so this package stays usable without an import
// cycle back to the root package.
type QueryRecord struct {
	DatasetID string
	Caller    string
	Equal     map[string]any
	Duration  time.Duration
	Total     int
	Err       error
}

// Method is called once per query with its audit record.
type Method interface {
	Query(r QueryRecord)
}

const auditLogMessage = "query audit"

// Log logs audit records to a logrus.Logger under the "audit" system tag.
type Log struct {
	log *logrus.Entry
}

// NewLog creates a Method that logs to l. A nil l logs to logrus's
// standard logger.
func NewLog(l *logrus.Logger) Method {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Log{log: l.WithField("system", "audit")}
}

// Query implements Method.
func (a *Log) Query(r QueryRecord) {
	fields := logrus.Fields{
		"dataset":  r.DatasetID,
		"caller":   r.Caller,
		"equal":    r.Equal,
		"duration": r.Duration,
		"total":    r.Total,
		"success":  true,
	}
	if r.Err != nil {
		fields["success"] = false
		fields["err"] = r.Err
	}
	a.log.WithFields(fields).Info(auditLogMessage)
}

// Discard is a Method that records nothing. It is the zero-cost default
// when a bundle is built without an explicit auditor.
type Discard struct{}

// Query implements Method.
func (Discard) Query(QueryRecord) {}
