package progress

import (
	"sync"
	"time"
)

// Reporter stamps events with a run ID and keeps the percent monotonic for
// that run. A nil *Reporter discards everything.
type Reporter struct {
	pub   Publisher
	runID string

	mu   sync.Mutex
	last int
}

// NewReporter returns a Reporter publishing to pub. pub may be nil.
func NewReporter(pub Publisher, runID string) *Reporter {
	return &Reporter{pub: pub, runID: runID}
}

// RunID returns the run this reporter belongs to.
func (r *Reporter) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Report publishes msg at percent, clamped to [last, 100].
func (r *Reporter) Report(percent int, msg string) {
	r.ReportETA(percent, 0, msg)
}

// ReportETA is Report with a time estimate attached.
func (r *Reporter) ReportETA(percent int, eta time.Duration, msg string) {
	if r == nil {
		return
	}
	// Publishing under the lock keeps the order subscribers see monotonic.
	r.mu.Lock()
	defer r.mu.Unlock()
	if percent > 100 {
		percent = 100
	}
	if percent < r.last {
		percent = r.last
	}
	r.last = percent

	if r.pub != nil {
		r.pub.Publish(Event{RunID: r.runID, Percent: percent, ETA: eta, Message: msg})
	}
}

// Note publishes msg at the current percent.
func (r *Reporter) Note(msg string) {
	r.Report(r.Percent(), msg)
}

// Percent returns the last published percent.
func (r *Reporter) Percent() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Stage maps done/total fractions onto the [from, to] slice of the bar.
func (r *Reporter) Stage(from, to int) Stage {
	return Stage{r: r, from: from, to: to}
}

// Stage is a slice of the progress bar owned by one pipeline step.
type Stage struct {
	r        *Reporter
	from, to int
}

func (s Stage) percent(done, total int) int {
	if total <= 0 {
		return s.to
	}
	if done > total {
		done = total
	}
	return s.from + (s.to-s.from)*done/total
}

// Report publishes done/total mapped into the stage range.
func (s Stage) Report(done, total int, msg string) {
	s.r.Report(s.percent(done, total), msg)
}

// ReportETA is Report with a time estimate attached.
func (s Stage) ReportETA(done, total int, eta time.Duration, msg string) {
	s.r.ReportETA(s.percent(done, total), eta, msg)
}
