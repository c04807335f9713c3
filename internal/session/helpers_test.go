package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/cue"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/pkg/clock"
)

var epoch0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// waitFor runs posted closures on the test goroutine until cond holds.
func waitFor(t *testing.T, loop *Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		loop.RunPending()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// settle lets background goroutines finish and runs what they posted.
func settle(loop *Loop) {
	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		loop.RunPending()
	}
}

type stubGenerator struct {
	mu    sync.Mutex
	calls []string
}

func (g *stubGenerator) Generate(_ context.Context, text string, gc translation.GenerateContext) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, text)
	return "<" + gc.TargetLang + "> " + text, nil
}

func (g *stubGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type memIntervals struct {
	mu     sync.Mutex
	saved  []recorder.Interval
	preset []recorder.Interval
}

func (s *memIntervals) SaveInterval(_ context.Context, iv recorder.Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, iv)
	return nil
}

func (s *memIntervals) ListIntervals(_ context.Context, videoID string) ([]recorder.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recorder.Interval
	for _, iv := range append(append([]recorder.Interval{}, s.preset...), s.saved...) {
		if iv.VideoID == videoID {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (s *memIntervals) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// staticTracks serves fixed cues per language.
func staticTracks(tracks map[string][]cue.Cue) TrackProvider {
	return TrackProviderFunc(func(_ string, language string) cue.Source {
		cues, ok := tracks[language]
		if !ok {
			return nil
		}
		return cue.SourceFunc(func(context.Context) (cue.Track, error) {
			return cue.Track{Language: language, Cues: cues}, nil
		})
	})
}

type fixture struct {
	loop  *Loop
	clock *clock.Manual
	cache *translation.Cache
	gen   *stubGenerator
	store *memIntervals
	orch  *Orchestrator
}

func newFixture(t *testing.T, settings config.Settings, tracks TrackProvider) *fixture {
	t.Helper()
	f := &fixture{
		loop:  NewLoop(64),
		clock: clock.NewManual(epoch0),
		gen:   &stubGenerator{},
		store: &memIntervals{},
	}
	f.cache = translation.NewCache(translation.Options{MinChars: 1}, translation.Deps{
		Loop:      f.loop,
		Clock:     f.clock,
		Generator: f.gen,
	})
	f.orch = NewOrchestrator(settings, Options{
		Recorder:    recorder.Options{MinDuration: 0.3, SeekGap: 2.5, Capacity: 100},
		BackoffBase: time.Second,
		BackoffCap:  4 * time.Second,
		Timeout:     time.Second,
	}, Deps{
		Loop:      f.loop,
		Clock:     f.clock,
		Cache:     f.cache,
		Tracks:    tracks,
		Intervals: []recorder.Store{f.store},
	})
	return f
}

func generativeSettings() config.Settings {
	s := config.DefaultSettings()
	s.Provider = config.ProviderOpenAI
	s.SourceLanguage = "en"
	s.TargetLanguage = "zh-Hant"
	return s
}
