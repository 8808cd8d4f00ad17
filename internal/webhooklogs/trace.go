package webhooklogs

import (
	"fmt"
	"time"
)

// Trace collects the processing steps of one webhook for the activity log.
type Trace struct {
	start time.Time
	steps []string
}

// NewTrace starts a trace at the current time.
func NewTrace() *Trace {
	return &Trace{start: time.Now()}
}

// Step appends a step prefixed with the elapsed time since the trace started.
func (t *Trace) Step(format string, args ...interface{}) {
	if t == nil {
		return
	}
	elapsed := time.Since(t.start).Round(time.Millisecond)
	t.steps = append(t.steps, fmt.Sprintf("+%s %s", elapsed, fmt.Sprintf(format, args...)))
}

// Steps returns a copy of the recorded steps.
func (t *Trace) Steps() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.steps))
	copy(out, t.steps)
	return out
}
