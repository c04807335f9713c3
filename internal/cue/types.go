package cue

import "context"

// Cue is one subtitle entry. Times are seconds on the media clock.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Contains reports whether t falls inside the cue, bounds included.
func (c Cue) Contains(t float64) bool {
	return t >= c.Start && t <= c.End
}

// Track is one language's ordered cue sequence for a video.
type Track struct {
	Language string
	Cues     []Cue
}

// Texts returns the cue texts in order.
func (t Track) Texts() []string {
	ret := make([]string, 0, len(t.Cues))
	for _, c := range t.Cues {
		ret = append(ret, c.Text)
	}
	return ret
}

// Source supplies the cues of one track. Implementations report explicit
// throttling with an apperr.KindRateLimited error.
type Source interface {
	Fetch(ctx context.Context) (Track, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Track, error)

func (f SourceFunc) Fetch(ctx context.Context) (Track, error) {
	return f(ctx)
}
