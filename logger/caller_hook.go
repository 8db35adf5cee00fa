package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const maxCallerDepth = 24

// callerHook points entry.Caller at the first frame outside logrus and this
// package, and names the caller's package as the component of entries that
// were logged without one.
type callerHook struct {
	skip []string
}

func newCallerHook() *callerHook {
	return &callerHook{skip: []string{"github.com/sirupsen/logrus", ownPackage()}}
}

// ownPackage is this package's import path, read from the running binary so
// the hook survives a module rename.
func ownPackage() string {
	pc, _, _, _ := runtime.Caller(0)
	name := runtime.FuncForPC(pc).Name()
	return name[:strings.LastIndex(name, ".")]
}

// packageName returns the last path element of fn's package:
// "heatflow/reader.(*NATSReader).Start.func1" gives "reader".
func packageName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		fn = fn[:i]
	}
	return fn
}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) internal(fn string) bool {
	for _, prefix := range h.skip {
		if strings.HasPrefix(fn, prefix+".") || strings.HasPrefix(fn, prefix+"/") {
			return true
		}
	}
	return false
}

func (h *callerHook) callSite() (runtime.Frame, bool) {
	pcs := make([]uintptr, maxCallerDepth)
	// runtime.Callers, callSite, Fire
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !h.internal(frame.Function) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	frame, ok := h.callSite()
	if !ok {
		return nil
	}
	entry.Caller = &frame
	if _, set := entry.Data["component"]; !set {
		if pkg := packageName(frame.Function); pkg != "" {
			entry.Data["component"] = pkg
		}
	}
	return nil
}
