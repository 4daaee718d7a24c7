package batch

import (
	"net/http"
	"strconv"
	"strings"
)

// Budget is the upstream's rate allowance as reported on the latest
// response. Each snapshot replaces the previous one.
type Budget struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// BudgetHeaders names the response headers a Budget is read from.
type BudgetHeaders struct {
	Limit     string
	Used      string
	Remaining string
}

// Parse reads a Budget from h. Missing or unparsable values read as zero and
// Remaining never goes below zero. ok is false when the remaining header is
// absent.
func (bh BudgetHeaders) Parse(h http.Header) (b Budget, ok bool) {
	b.Limit = headerInt(h, bh.Limit)
	b.Used = headerInt(h, bh.Used)
	raw := strings.TrimSpace(h.Get(bh.Remaining))
	if raw != "" {
		ok = true
		b.Remaining, _ = strconv.Atoi(raw)
	}
	if b.Remaining < 0 {
		b.Remaining = 0
	}
	return b, ok
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(h.Get(key)))
	return n
}

// WaveSize is the number of identifiers a wave covers, probe included:
// min(remaining, maxBatch, left). When nothing remains the wave is the probe
// alone, since that call has already been made.
func WaveSize(remaining, maxBatch, left int) int {
	size := min(remaining, maxBatch, left)
	if size < 1 {
		size = 1
	}
	return size
}
