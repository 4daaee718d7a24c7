// Package progress carries human-readable pipeline status from the stages
// that produce it to any number of observers.
package progress

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Event is a single progress update. Percent never decreases within one run.
type Event struct {
	RunID   string        `json:"run_id"`
	Percent int           `json:"percent"`
	ETA     time.Duration `json:"eta,omitempty"`
	Message string        `json:"message"`
}

var (
	percentRe = regexp.MustCompile(`Progress: (\d+)%`)
	etaRe     = regexp.MustCompile(`ETA: (\d+)s`)
)

// Format renders e as "Progress: P% | msg", adding "ETA: Ns | " when the
// event carries an estimate.
func Format(e Event) string {
	if e.ETA > 0 {
		return fmt.Sprintf("Progress: %d%% | ETA: %ds | %s", e.Percent, int(e.ETA.Round(time.Second)/time.Second), e.Message)
	}
	return fmt.Sprintf("Progress: %d%% | %s", e.Percent, e.Message)
}

func (e Event) String() string {
	return Format(e)
}

// Parse extracts the percent and optional ETA from a formatted line.
func Parse(line string) (percent int, eta time.Duration, ok bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	percent, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	if m := etaRe.FindStringSubmatch(line); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			eta = time.Duration(secs) * time.Second
		}
	}
	return percent, eta, true
}
