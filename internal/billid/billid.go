// Package billid allocates the human-readable, date-scoped bill identifiers
// printed on customer bills, e.g. 2025JUN0217.
package billid

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Zone is the fixed UTC+5:30 offset bill dates are computed in, independent
// of the server's locale.
var Zone = time.FixedZone("IST", 5*60*60+30*60)

// Source looks up the greatest bill id already allocated for a prefix.
type Source interface {
	LatestBillID(ctx context.Context, prefix string) (string, bool, error)
}

type Generator struct {
	source Source
	now    func() time.Time
}

func NewGenerator(source Source, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{source: source, now: now}
}

// Next returns the candidate bill id following the latest one for today.
// Concurrent callers may receive the same candidate; the store's unique
// constraint decides which insert wins.
func (g *Generator) Next(ctx context.Context) (string, error) {
	prefix := Prefix(g.now())
	last, found, err := g.source.LatestBillID(ctx, prefix)
	if err != nil {
		return "", err
	}
	seq := 1
	if found {
		seq = NextSequence(prefix, last)
	}
	return Format(prefix, seq), nil
}

// Prefix renders the date part of a bill id: year, upper-case month
// abbreviation and two-digit day.
func Prefix(now time.Time) string {
	local := now.In(Zone)
	return local.Format("2006") + strings.ToUpper(local.Format("Jan")) + local.Format("02")
}

func Format(prefix string, seq int) string {
	return prefix + strconv.Itoa(seq)
}

// NextSequence parses the digits that follow prefix in last and returns the
// next sequence number. A missing or corrupt suffix restarts at 1.
func NextSequence(prefix, last string) int {
	if !strings.HasPrefix(last, prefix) {
		return 1
	}
	suffix := last[len(prefix):]
	end := 0
	for end < len(suffix) && suffix[end] >= '0' && suffix[end] <= '9' {
		end++
	}
	if end == 0 {
		return 1
	}
	value, err := strconv.Atoi(suffix[:end])
	if err != nil {
		return 1
	}
	return value + 1
}

// Sequence extracts the numeric suffix of id for prefix.
func Sequence(prefix, id string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	value, err := strconv.Atoi(id[len(prefix):])
	if err != nil {
		return 0, false
	}
	return value, true
}
