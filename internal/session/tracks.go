package session

import (
	"net/url"
	"strings"

	"github.com/MimeLyc/dualsub/internal/cue"
	"github.com/MimeLyc/dualsub/internal/lang"
)

// TrackProvider builds the cue source for one language of a video. It
// returns nil when that track does not exist.
type TrackProvider interface {
	Source(videoID, language string) cue.Source
}

type TrackProviderFunc func(videoID, language string) cue.Source

func (f TrackProviderFunc) Source(videoID, language string) cue.Source {
	return f(videoID, language)
}

// URLTracks downloads tracks from a URL template with {video} and {lang}
// placeholders.
func URLTracks(template string) TrackProvider {
	return TrackProviderFunc(func(videoID, language string) cue.Source {
		if strings.TrimSpace(template) == "" || strings.TrimSpace(language) == "" {
			return nil
		}
		r := strings.NewReplacer(
			"{video}", url.PathEscape(videoID),
			"{lang}", url.PathEscape(language),
		)
		return cue.NewHTTPSource(r.Replace(template), language)
	})
}

// FileTracks serves local subtitle files keyed by language, whatever the
// video.
func FileTracks(files map[string]string) TrackProvider {
	return TrackProviderFunc(func(_ string, language string) cue.Source {
		for code, path := range files {
			if path != "" && (code == language || lang.Equivalent(code, language)) {
				return cue.FileSource{Path: path, Language: code}
			}
		}
		return nil
	})
}

// TextPoller returns the caption currently on screen. It is the fallback
// when no primary track could be loaded.
type TextPoller interface {
	PollText() string
}

// StaticText is a poller for text sampled by the client with the tick.
type StaticText string

func (s StaticText) PollText() string {
	return string(s)
}
