package cue

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/MimeLyc/dualsub/internal/apperr"
)

// DefaultCueDuration is used for timed-text entries that carry no usable
// duration.
const DefaultCueDuration = 2.0

type json3Document struct {
	Events []json3Event `json:"events"`
}

type json3Event struct {
	StartMs    *float64 `json:"tStartMs"`
	DurationMs *float64 `json:"dDurationMs"`
	Segs       []struct {
		UTF8 string `json:"utf8"`
	} `json:"segs"`
}

// ParseJSON3 reads the json3 timed-text format: events with millisecond
// start and duration and text split into segments. Events without a start
// are skipped; events without a duration end where they start.
func ParseJSON3(data []byte) ([]Cue, error) {
	var doc json3Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalidCueData, "invalid json3 track")
	}

	cues := make([]Cue, 0, len(doc.Events))
	for _, ev := range doc.Events {
		if ev.StartMs == nil {
			continue
		}
		start := *ev.StartMs / 1000
		end := start
		if ev.DurationMs != nil {
			end = start + *ev.DurationMs/1000
		}

		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		text := CleanText(sb.String())
		if text == "" {
			continue
		}
		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	return Sanitize(cues), nil
}

// ParseXML reads both XML timed-text layouts: the legacy one
// (<text start="1.5" dur="2">, seconds) and srv3 (<p t="1500" d="2000">,
// milliseconds). Nested spans are flattened and <br> becomes a newline.
func ParseXML(data []byte) ([]Cue, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var (
		cues    []Cue
		current *Cue
		element string
		sb      strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(cues) > 0 {
				// Keep what was read before the damage.
				break
			}
			return nil, apperr.Wrap(err, apperr.KindInvalidCueData, "invalid xml track")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			if current != nil {
				if name == "br" {
					sb.WriteString("\n")
				}
				continue
			}
			if c, ok := xmlCue(name, t.Attr); ok {
				current = &c
				element = name
				sb.Reset()
			}
		case xml.CharData:
			if current != nil {
				sb.Write(t)
			}
		case xml.EndElement:
			if current == nil || strings.ToLower(t.Name.Local) != element {
				continue
			}
			current.Text = CleanText(sb.String())
			if current.Text != "" {
				cues = append(cues, *current)
			}
			current = nil
		}
	}
	return Sanitize(cues), nil
}

func xmlCue(name string, attrs []xml.Attr) (Cue, bool) {
	switch name {
	case "text":
		start, _ := ParseTimecode(xmlAttr(attrs, "start"))
		return Cue{Start: start, End: start + positiveOr(xmlAttr(attrs, "dur"), 1)}, true
	case "p":
		ms, err := strconv.ParseFloat(xmlAttr(attrs, "t"), 64)
		if err != nil {
			return Cue{}, false
		}
		start := ms / 1000
		return Cue{Start: start, End: start + positiveOr(xmlAttr(attrs, "d"), 1000)}, true
	}
	return Cue{}, false
}

// positiveOr converts a duration attribute to seconds, falling back to
// DefaultCueDuration when it is missing or not positive.
func positiveOr(raw string, unitsPerSecond float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return DefaultCueDuration
	}
	return v / unitsPerSecond
}

func xmlAttr(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
