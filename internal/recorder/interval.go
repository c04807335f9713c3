package recorder

import (
	"context"
	"fmt"
	"math"

	"github.com/MimeLyc/dualsub/internal/lang"
)

// Interval is a span of media time during which one caption was on screen.
type Interval struct {
	VideoID           string  `json:"video_id"`
	StartTime         float64 `json:"start_time"`
	EndTime           float64 `json:"end_time"`
	SourceText        string  `json:"source_text"`
	Translation       string  `json:"translation"`
	TranslationSource string  `json:"translation_source,omitempty"`
}

// Duration is EndTime - StartTime.
func (iv Interval) Duration() float64 {
	return iv.EndTime - iv.StartTime
}

// dedupKey identifies an interval for export merging, times at millisecond
// precision.
func (iv Interval) dedupKey() string {
	return fmt.Sprintf("%s|%.3f|%.3f|%s|%s", iv.VideoID, iv.StartTime, iv.EndTime, iv.SourceText, iv.Translation)
}

// Normalize repairs an interval from an external store: texts are
// normalized, start is clamped at zero and a non-positive span becomes one
// second long. It returns false when the interval is unusable.
func Normalize(iv Interval) (Interval, bool) {
	if math.IsNaN(iv.StartTime) || math.IsInf(iv.StartTime, 0) {
		iv.StartTime = 0
	}
	if math.IsNaN(iv.EndTime) || math.IsInf(iv.EndTime, 0) {
		iv.EndTime = iv.StartTime
	}
	iv.StartTime = math.Max(0, iv.StartTime)
	iv.EndTime = math.Max(0, iv.EndTime)
	if iv.EndTime <= iv.StartTime {
		iv.EndTime = iv.StartTime + 1
	}

	iv.SourceText = lang.NormalizeText(iv.SourceText)
	iv.Translation = lang.NormalizeText(iv.Translation)
	if iv.SourceText == "" && iv.Translation == "" {
		return Interval{}, false
	}
	return iv, true
}

// Store persists committed intervals. The remote store and the local SQLite
// store both implement it.
type Store interface {
	SaveInterval(ctx context.Context, iv Interval) error
	ListIntervals(ctx context.Context, videoID string) ([]Interval, error)
}
