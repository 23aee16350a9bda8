// Package logging provides the per-handle logger the rest of the image
// context is threaded through, replacing the source library's
// process-wide notify state per SPEC_FULL.md §9 design notes.
package logging

import "github.com/golang/glog"

// Logger is the narrow interface components receive instead of reaching
// for a package-level logger directly.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Nop discards everything; it is the zero-value default so a handle
// opened without WithLogger stays silent, matching the teacher's
// fmt.Printf-only-when-asked posture.
type Nop struct{}

func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}

// Glog backs Logger with glog's leveled verbosity convention: Infof maps
// to V(1), Warnf and Errorf always fire. glog's process-global flags
// still govern output destination and -v level, but callers never touch
// that global directly — they hold a Logger value.
type Glog struct{}

func (Glog) Infof(format string, args ...any) {
	if glog.V(1) {
		glog.Infof(format, args...)
	}
}

func (Glog) Warnf(format string, args ...any)  { glog.Warningf(format, args...) }
func (Glog) Errorf(format string, args ...any) { glog.Errorf(format, args...) }
