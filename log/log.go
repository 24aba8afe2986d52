// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package log provides the engine's leveled logger.
// It mirrors driver.Register's use of the standard log package for
// diagnostic messages, but additionally forwards every message to a
// host-supplied callback (spec.md §6.2's DebugPrintCallback), since
// the core has no window of its own to print to.
package log

import (
	"fmt"
	"log"
)

// Severity is the severity of a logged message.
type Severity int

// Severities, in increasing order of importance.
const (
	Trace Severity = iota
	Info
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Trace:
		return "trace"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Callback receives every message logged at or above the
// configured minimum Severity.
type Callback func(sev Severity, msg string)

var (
	callback Callback
	minSev   = Info
)

// SetCallback installs the host's debug-print callback.
// Passing nil disables host forwarding; messages still go through
// the standard log package.
func SetCallback(cb Callback) { callback = cb }

// SetMinSeverity sets the minimum severity that reaches the
// callback and the standard logger. The default is Info.
func SetMinSeverity(sev Severity) { minSev = sev }

// Printf logs a formatted message at the given severity.
func Printf(sev Severity, format string, args ...any) {
	if sev < minSev {
		return
	}
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] %s", sev, msg)
	if callback != nil {
		callback(sev, msg)
	}
}
