package cue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/pkg/log"
)

const maxTrackBytes = 8 << 20

// HTTPSource downloads a subtitle track over HTTP.
type HTTPSource struct {
	URL      string
	Language string
	Client   *http.Client
}

// NewHTTPSource returns a source with a bounded client timeout.
func NewHTTPSource(rawURL, language string) *HTTPSource {
	return &HTTPSource{
		URL:      rawURL,
		Language: language,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads and parses the track. When the URL yields no cues it
// retries with fmt=json3, fmt=srv3 and fmt=vtt until one does. A 429
// response stops the loop and is reported as KindRateLimited so the caller
// can back off; any other failure is KindNetwork.
func (s *HTTPSource) Fetch(ctx context.Context) (Track, error) {
	lastStatus := 0
	lastURL := ""
	for _, u := range formatURLs(s.URL) {
		status, body, err := s.get(ctx, u)
		if err != nil {
			return Track{}, err
		}
		if status == http.StatusTooManyRequests {
			return Track{}, apperr.RateLimited("track source is throttling requests").
				WithContext("url", u)
		}
		if status < 200 || status >= 300 {
			lastStatus, lastURL = status, u
			continue
		}

		cues, err := Parse(bytes.NewReader(body))
		if err != nil {
			log.Debug("Track response from %s did not parse: %v", u, err)
			continue
		}
		if len(cues) > 0 {
			return Track{Language: s.Language, Cues: cues}, nil
		}
	}

	if lastStatus != 0 {
		return Track{}, apperr.New(apperr.KindNetwork, fmt.Sprintf("track request returned status %d", lastStatus)).
			WithContext("url", s.URL).
			WithContext("last_url", lastURL)
	}
	return Track{Language: s.Language}, nil
}

func (s *HTTPSource) get(ctx context.Context, u string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, apperr.Wrap(err, apperr.KindNetwork, "failed to create track request").WithContext("url", u)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, apperr.Wrap(err, apperr.KindNetwork, "track request failed").WithContext("url", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackBytes))
	if err != nil {
		return 0, nil, apperr.Wrap(err, apperr.KindNetwork, "failed to read track body").WithContext("url", u)
	}
	return resp.StatusCode, body, nil
}

// formatURLs lists the URL as given followed by its fmt=json3, fmt=srv3 and
// fmt=vtt variants, without duplicates.
func formatURLs(raw string) []string {
	urls := []string{raw}
	parsed, err := url.Parse(raw)
	if err != nil {
		return urls
	}
	for _, format := range []string{"json3", "srv3", "vtt"} {
		q := parsed.Query()
		q.Set("fmt", format)
		next := *parsed
		next.RawQuery = q.Encode()
		if u := next.String(); !slices.Contains(urls, u) {
			urls = append(urls, u)
		}
	}
	return urls
}

// FileSource reads a subtitle track from disk.
type FileSource struct {
	Path     string
	Language string
}

func (s FileSource) Fetch(_ context.Context) (Track, error) {
	cues, err := ParseFile(s.Path)
	if err != nil {
		return Track{}, err
	}
	return Track{Language: s.Language, Cues: cues}, nil
}
