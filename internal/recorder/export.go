package recorder

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MimeLyc/dualsub/internal/translation"
)

// FormatSRT renders intervals as numbered SRT blocks. The translation line is
// written when it differs from the source; a translation-only interval gets
// just that line.
func FormatSRT(intervals []Interval) string {
	var b strings.Builder
	for i, iv := range intervals {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestamp(iv.StartTime), FormatTimestamp(iv.EndTime))
		if iv.SourceText != "" {
			b.WriteString(iv.SourceText + "\n")
		}
		if iv.Translation != "" && iv.Translation != iv.SourceText {
			b.WriteString(iv.Translation + "\n")
		}
	}
	return b.String()
}

// FormatTimestamp formats seconds as HH:MM:SS,mmm. Negative or non-finite
// values render as zero.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	ms := totalMs % 1000
	totalSeconds := totalMs / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", totalSeconds/3600, (totalSeconds/60)%60, totalSeconds%60, ms)
}

// FormatReport renders cached translation records as a plain report. It is
// the export used when a video has no timed intervals.
func FormatReport(records []translation.Record, exportedAt time.Time) string {
	lines := []string{
		"# DualSub Translation Export",
		"exported_at: " + exportedAt.UTC().Format(time.RFC3339Nano),
		fmt.Sprintf("total_records: %d", len(records)),
	}

	for i, rec := range records {
		lines = append(lines, "", fmt.Sprintf("## Record %d", i+1))
		if rec.Key.VideoID != "" {
			lines = append(lines, "video_id: "+rec.Key.VideoID)
		}
		if rec.Key.Model != "" {
			lines = append(lines, "model: "+rec.Key.Model)
		}
		if rec.Key.SourceLang != "" || rec.Key.TargetLang != "" {
			lines = append(lines, fmt.Sprintf("lang: %s -> %s", orUnknown(rec.Key.SourceLang), orUnknown(rec.Key.TargetLang)))
		}
		if !rec.UpdatedAt.IsZero() {
			lines = append(lines, "updated_at: "+rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
		}
		lines = append(lines, "[source]", rec.Key.Text, "[translation]", rec.Translation)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
