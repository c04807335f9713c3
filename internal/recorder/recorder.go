// Package recorder turns the per-tick caption stream into closed, bounded
// intervals and merges them with intervals recorded elsewhere for export.
package recorder

import (
	"math"
	"sort"

	"github.com/MimeLyc/dualsub/internal/lang"
)

const (
	DefaultMinDuration = 0.3
	DefaultSeekGap     = 2.5
	DefaultCapacity    = 2000
)

type Options struct {
	// MinDuration is the shortest interval worth committing, in seconds.
	MinDuration float64
	// SeekGap is the tick-to-tick jump treated as a seek, in seconds.
	SeekGap float64
	// Capacity bounds the ring of committed intervals.
	Capacity int
}

func (o Options) withDefaults() Options {
	if o.MinDuration < 0 {
		o.MinDuration = DefaultMinDuration
	}
	if o.SeekGap <= 0 {
		o.SeekGap = DefaultSeekGap
	}
	if o.Capacity < 1 {
		o.Capacity = DefaultCapacity
	}
	return o
}

// DefaultOptions returns the recorder defaults.
func DefaultOptions() Options {
	return Options{MinDuration: DefaultMinDuration, SeekGap: DefaultSeekGap, Capacity: DefaultCapacity}
}

type active struct {
	Interval
	identity string
}

// Recorder holds at most one open interval. It is not safe for concurrent
// use; the session loop owns it.
type Recorder struct {
	opts    Options
	videoID string
	sink    func(Interval)

	ring     *ring
	open     *active
	lastTime float64
	observed bool
}

// New creates a recorder. sink, if set, receives every committed interval.
func New(opts Options, sink func(Interval)) *Recorder {
	opts = opts.withDefaults()
	return &Recorder{
		opts: opts,
		sink: sink,
		ring: newRing(opts.Capacity),
	}
}

// VideoID is the video the recorder is currently attributing intervals to.
func (r *Recorder) VideoID() string {
	return r.videoID
}

// SetVideo closes the open interval at the last observed time and starts
// attributing ticks to videoID. The ring keeps earlier videos' intervals.
func (r *Recorder) SetVideo(videoID string) {
	if r.open != nil {
		r.close(r.lastTime)
	}
	r.videoID = videoID
	r.observed = false
}

// Observe feeds one tick. Empty texts close the open interval; a new text
// closes it and opens another; the same text extends it.
func (r *Recorder) Observe(t float64, sourceText, translationText, translationSource string) {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return
	}

	source := lang.NormalizeText(sourceText)
	translated := lang.NormalizeText(translationText)
	identity := source
	if identity == "" {
		identity = translated
	}

	if r.observed && r.open != nil {
		switch {
		case math.Abs(t-r.lastTime) > r.opts.SeekGap:
			r.close(r.lastTime)
		case t < r.lastTime && r.open.identity != identity:
			// A short rewind onto other text ends the open interval where
			// playback resumed, so it cannot overlap the next one.
			r.truncate(t)
		}
	}
	r.lastTime = t
	r.observed = true

	if identity == "" {
		if r.open != nil {
			r.close(t)
		}
		return
	}

	if r.open != nil && r.open.identity == identity {
		if t > r.open.EndTime {
			r.open.EndTime = t
		}
		if translated != "" && (r.open.Translation == "" || translationSource != "") {
			r.open.Translation = translated
			r.open.TranslationSource = translationSource
		}
		return
	}

	if r.open != nil {
		r.close(t)
	}
	r.open = &active{
		Interval: Interval{
			VideoID:           r.videoID,
			StartTime:         t,
			EndTime:           t,
			SourceText:        source,
			Translation:       translated,
			TranslationSource: translationSource,
		},
		identity: identity,
	}
}

// Flush closes the open interval at the last observed time.
func (r *Recorder) Flush() {
	if r.open != nil {
		r.close(r.lastTime)
	}
}

// Active returns the open interval, if any.
func (r *Recorder) Active() (Interval, bool) {
	if r.open == nil {
		return Interval{}, false
	}
	return r.open.Interval, true
}

// Committed returns the ring contents, oldest first.
func (r *Recorder) Committed() []Interval {
	return r.ring.all()
}

func (r *Recorder) close(end float64) {
	iv := r.open.Interval
	r.open = nil
	if end > iv.EndTime {
		iv.EndTime = end
	}
	r.commit(iv)
}

// truncate closes the open interval at end even when it already reached
// past it. Nothing is committed when end precedes the start.
func (r *Recorder) truncate(end float64) {
	iv := r.open.Interval
	r.open = nil
	if end < iv.StartTime {
		return
	}
	if end < iv.EndTime {
		iv.EndTime = end
	}
	r.commit(iv)
}

func (r *Recorder) commit(iv Interval) {
	if iv.Duration() < r.opts.MinDuration {
		return
	}
	r.ring.push(iv)
	if r.sink != nil {
		r.sink(iv)
	}
}

// ExportAll merges the committed intervals of the current video, the open
// interval extended to the last observed time, and remote intervals of the
// same video.
func (r *Recorder) ExportAll(remote []Interval) []Interval {
	local := make([]Interval, 0, r.ring.len()+1)
	for _, iv := range r.ring.all() {
		if iv.VideoID == r.videoID {
			local = append(local, iv)
		}
	}
	if r.open != nil {
		iv := r.open.Interval
		if r.lastTime > iv.EndTime {
			iv.EndTime = r.lastTime
		}
		local = append(local, iv)
	}
	return Merge(r.videoID, local, remote)
}

// Merge deduplicates local and remote intervals of videoID by
// (video, start, end, source, translation) at millisecond precision and
// sorts them by start then end. Remote intervals are normalized first.
// Local intervals come first, so on a tie the local translation source wins.
func Merge(videoID string, local, remote []Interval) []Interval {
	seen := make(map[string]struct{}, len(local)+len(remote))
	ret := make([]Interval, 0, len(local)+len(remote))

	add := func(iv Interval) {
		if iv.VideoID != videoID {
			return
		}
		k := iv.dedupKey()
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		ret = append(ret, iv)
	}

	for _, iv := range local {
		add(iv)
	}
	for _, iv := range remote {
		if norm, ok := Normalize(iv); ok {
			add(norm)
		}
	}

	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].StartTime != ret[j].StartTime {
			return ret[i].StartTime < ret[j].StartTime
		}
		return ret[i].EndTime < ret[j].EndTime
	})
	return ret
}
