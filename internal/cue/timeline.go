package cue

import (
	"math"
	"sort"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Locate finds the cue containing t, starting the search at hint. It walks
// backward while t is before the hinted cue and forward while t is after it,
// so monotonic playback costs O(1) per call and a seek costs the distance
// jumped. When no cue contains t it returns None and the index where the walk
// stopped, which is the nearest cue and the right hint for the next call.
func Locate(cues []Cue, t float64, hint int) (fn.Option[Cue], int) {
	if len(cues) == 0 {
		return fn.None[Cue](), 0
	}

	i := clamp(hint, 0, len(cues)-1)
	for i > 0 && t < cues[i].Start {
		i--
	}
	for i < len(cues)-1 && t > cues[i].End {
		i++
	}

	if cues[i].Contains(t) {
		return fn.Some(cues[i]), i
	}
	return fn.None[Cue](), i
}

// Cursor remembers the hint between Locate calls for one track.
type Cursor struct {
	hint int
}

// Locate resolves the active cue text at t, or "" when no cue is active.
func (c *Cursor) Locate(cues []Cue, t float64) string {
	found, next := Locate(cues, t, c.hint)
	c.hint = next
	return found.UnwrapOr(Cue{}).Text
}

// Reset moves the hint back to the first cue.
func (c *Cursor) Reset() {
	c.hint = 0
}

// Hint returns the current hint index.
func (c *Cursor) Hint() int {
	return c.hint
}

// Sanitize drops malformed cues (non-finite or negative times, end before
// start, blank text) and sorts the rest by start time. The input slice is not
// modified.
func Sanitize(cues []Cue) []Cue {
	ret := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if !valid(c) {
			continue
		}
		c.Text = strings.TrimSpace(c.Text)
		ret = append(ret, c)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Start < ret[j].Start
	})
	return ret
}

func valid(c Cue) bool {
	if math.IsNaN(c.Start) || math.IsNaN(c.End) || math.IsInf(c.Start, 0) || math.IsInf(c.End, 0) {
		return false
	}
	if c.Start < 0 || c.End < c.Start {
		return false
	}
	return strings.TrimSpace(c.Text) != ""
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
