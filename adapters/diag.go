// File: adapters/diag.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package adapters provides glue code between the core API contracts
// and concrete implementations: the logrus diagnostics sink and the
// thread binder over published places.

package adapters

import (
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-affinity/api"
)

// LogrusDiagnostics routes the library's diagnostics onto a logrus
// logger. Warnings about recoverable conditions are muted unless
// enabled, matching the convention that affinity problems degrade
// silently by default.
type LogrusDiagnostics struct {
	log      *logrus.Logger
	warnings bool
}

// NewLogrusDiagnostics wraps log. A nil log uses the logrus standard
// logger. warnings enables the recoverable-condition warnings.
func NewLogrusDiagnostics(log *logrus.Logger, warnings bool) *LogrusDiagnostics {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusDiagnostics{log: log, warnings: warnings}
}

var _ api.Diagnostics = (*LogrusDiagnostics)(nil)

func (d *LogrusDiagnostics) Warnf(format string, args ...any) {
	if d.warnings {
		d.log.Warnf(format, args...)
	}
}

func (d *LogrusDiagnostics) Infof(format string, args ...any) {
	d.log.Infof(format, args...)
}

func (d *LogrusDiagnostics) Debugf(format string, args ...any) {
	d.log.Debugf(format, args...)
}
