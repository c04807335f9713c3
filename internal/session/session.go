package session

import (
	"context"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/pkg/clock"
	"github.com/MimeLyc/dualsub/pkg/log"
)

// RecordLister lists the persisted translations of a video. It backs the
// export when no timed intervals exist.
type RecordLister interface {
	ListByVideo(ctx context.Context, videoID string) ([]translation.Record, error)
}

// Session is the goroutine-safe face of an Orchestrator. Each call is
// marshalled onto the loop, which must be running.
type Session struct {
	loop     *Loop
	orch     *Orchestrator
	settings *config.SettingsStore
	records  RecordLister
	clock    clock.Clock
}

func New(loop *Loop, orch *Orchestrator, settings *config.SettingsStore, records RecordLister) *Session {
	return &Session{
		loop:     loop,
		orch:     orch,
		settings: settings,
		records:  records,
		clock:    orch.deps.Clock,
	}
}

// Tick resolves one frame. text is the caption the client sees on screen,
// used only while no primary track is loaded.
func (s *Session) Tick(ctx context.Context, t float64, text string) (Frame, error) {
	var frame Frame
	err := s.loop.Do(ctx, func() {
		frame = s.orch.Tick(t, StaticText(text))
	})
	return frame, err
}

func (s *Session) SetVideo(ctx context.Context, videoID string) (Epoch, error) {
	var epoch Epoch
	err := s.loop.Do(ctx, func() {
		s.orch.SetVideo(videoID)
		epoch = s.orch.Epoch()
	})
	return epoch, err
}

func (s *Session) Settings() config.Settings {
	return s.settings.Get()
}

// UpdateSettings sanitizes, validates and persists next, then applies the
// change to the engine. Saving and applying happen in one loop task, so
// concurrent updates reach the file and the engine in the same order.
func (s *Session) UpdateSettings(ctx context.Context, next config.Settings) (config.SettingsChange, error) {
	var (
		change config.SettingsChange
		err    error
	)
	doErr := s.loop.Do(ctx, func() {
		change, err = s.settings.Update(next.Sanitize())
		if err == nil {
			s.orch.ApplySettings(change)
		}
	})
	if doErr != nil {
		return config.SettingsChange{}, doErr
	}
	if err != nil {
		return config.SettingsChange{}, err
	}
	return change, nil
}

// TranslationState is the per-video switch for generated lines.
type TranslationState struct {
	VideoID string `json:"video_id"`
	Enabled bool   `json:"enabled"`
}

func (s *Session) TranslationState(ctx context.Context) (TranslationState, error) {
	var st TranslationState
	err := s.loop.Do(ctx, func() {
		st = TranslationState{VideoID: s.orch.Epoch().VideoID, Enabled: s.orch.TranslationEnabled()}
	})
	return st, err
}

// SetTranslationEnabled switches generated lines for the current video.
func (s *Session) SetTranslationEnabled(ctx context.Context, enabled bool) (TranslationState, error) {
	var st TranslationState
	err := s.loop.Do(ctx, func() {
		s.orch.SetTranslationEnabled(enabled)
		st = TranslationState{VideoID: s.orch.Epoch().VideoID, Enabled: s.orch.TranslationEnabled()}
	})
	return st, err
}

func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.loop.Do(ctx, func() { st = s.orch.Status() })
	return st, err
}

// Flush closes the open interval so it reaches the interval stores.
func (s *Session) Flush(ctx context.Context) error {
	return s.loop.Do(ctx, s.orch.Flush)
}

// Close flushes the open interval and waits until every committed interval
// has been handed to the stores.
func (s *Session) Close(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.orch.flushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Export is the merged view of one video.
type Export struct {
	VideoID    string               `json:"video_id"`
	ExportedAt time.Time            `json:"exported_at"`
	Intervals  []recorder.Interval  `json:"intervals"`
	Records    []translation.Record `json:"records,omitempty"`
}

// Text renders the SRT-like export, or the record report when nothing was
// timed.
func (e Export) Text() string {
	if len(e.Intervals) > 0 {
		return recorder.FormatSRT(e.Intervals)
	}
	return recorder.FormatReport(e.Records, e.ExportedAt)
}

// Export merges the recorded intervals with those held by the interval
// stores. Store reads happen off the loop.
func (s *Session) Export(ctx context.Context) (Export, error) {
	var videoID string
	if err := s.loop.Do(ctx, func() { videoID = s.orch.Epoch().VideoID }); err != nil {
		return Export{}, err
	}

	var external []recorder.Interval
	if videoID != "" {
		for _, store := range s.orch.deps.Intervals {
			ivs, err := store.ListIntervals(ctx, videoID)
			if err != nil {
				log.Warn("Failed to read stored intervals for %q: %v", videoID, err)
				continue
			}
			external = append(external, ivs...)
		}
	}

	out := Export{VideoID: videoID, ExportedAt: s.clock.Now().UTC()}
	if err := s.loop.Do(ctx, func() { out.Intervals = s.orch.ExportIntervals(external) }); err != nil {
		return Export{}, err
	}

	if len(out.Intervals) == 0 && s.records != nil && videoID != "" {
		records, err := s.records.ListByVideo(ctx, videoID)
		if err != nil {
			log.Warn("Failed to list cached translations for %q: %v", videoID, err)
		}
		out.Records = records
	}

	if len(out.Intervals) == 0 && len(out.Records) == 0 {
		return out, apperr.New(apperr.KindValidation, "no cached translations or timed subtitles found yet").
			WithContext("video_id", videoID)
	}
	return out, nil
}
