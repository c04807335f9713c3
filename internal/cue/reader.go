package cue

import (
	"bufio"
	"bytes"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/pkg/log"
)

var (
	timingPattern = regexp.MustCompile(`((?:\d+:)?\d{1,2}:\d{2}(?:[,.]\d{1,3})?)\s*-->\s*((?:\d+:)?\d{1,2}:\d{2}(?:[,.]\d{1,3})?)`)
	breakPattern  = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// Parse reads a subtitle track, picking the reader from the first
// non-blank byte: json3 for '{' or '[', XML timed text for '<', SRT or
// WebVTT otherwise.
func Parse(r io.Reader) ([]Cue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle text: %w", err)
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\ufeff")))
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '{', '[':
		return ParseJSON3(trimmed)
	case '<':
		return ParseXML(trimmed)
	}
	return parseSubRip(bytes.NewReader(trimmed))
}

// parseSubRip reads SRT or WebVTT text. Blocks with unreadable timings are
// skipped, so a partially broken file still yields its good cues.
func parseSubRip(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	var current *Cue
	var textLines []string

	flush := func() {
		if current != nil && len(textLines) > 0 {
			current.Text = CleanText(strings.Join(textLines, "\n"))
			if current.Text != "" {
				cues = append(cues, *current)
			}
		}
		current = nil
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" {
			flush()
			continue
		}

		if strings.Contains(line, "-->") {
			flush()
			start, end, err := parseTiming(line)
			if err != nil {
				log.Debug("Skipping cue with invalid timing %q: %v", line, err)
				continue
			}
			current = &Cue{Start: start, End: end}
			continue
		}

		// Index lines, the WEBVTT header and NOTE blocks precede a timing line.
		if current == nil {
			continue
		}
		textLines = append(textLines, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle text: %w", err)
	}
	return Sanitize(cues), nil
}

// ParseFile reads a subtitle file from disk.
func ParseFile(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// CleanText decodes entities, turns <br> into newlines and strips markup.
func CleanText(raw string) string {
	text := html.UnescapeString(raw)
	text = breakPattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r", "")
	return strings.TrimSpace(text)
}

func parseTiming(line string) (float64, float64, error) {
	matches := timingPattern.FindStringSubmatch(line)
	if len(matches) != 3 {
		return 0, 0, apperr.New(apperr.KindInvalidCueData, "invalid time format").WithContext("line", line)
	}
	start, err := ParseTimecode(matches[1])
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimecode(matches[2])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, apperr.New(apperr.KindInvalidCueData, "cue ends before it starts").WithContext("line", line)
	}
	return start, end, nil
}

// ParseTimecode converts "HH:MM:SS,mmm", "MM:SS.mmm" or plain seconds into
// seconds.
func ParseTimecode(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	if value == "" {
		return 0, apperr.New(apperr.KindInvalidCueData, "empty timecode")
	}

	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, apperr.New(apperr.KindInvalidCueData, "too many timecode fields").WithContext("value", value)
	}

	seconds, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInvalidCueData, "invalid seconds").WithContext("value", value)
	}

	multiplier := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, apperr.Wrap(err, apperr.KindInvalidCueData, "invalid timecode field").WithContext("value", value)
		}
		seconds += float64(n) * multiplier
		multiplier *= 60
	}
	return seconds, nil
}
