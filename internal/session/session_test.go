package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/cue"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecords struct {
	records []translation.Record
}

func (s stubRecords) ListByVideo(_ context.Context, videoID string) ([]translation.Record, error) {
	var out []translation.Record
	for _, r := range s.records {
		if r.Key.VideoID == videoID {
			out = append(out, r)
		}
	}
	return out, nil
}

func startSession(t *testing.T, f *fixture, records RecordLister) *Session {
	t.Helper()
	store, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"), f.orch.Settings())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = f.loop.Run(ctx) }()

	return New(f.loop, f.orch, store, records)
}

func TestSession_TickAndExport(t *testing.T) {
	f := newFixture(t, config.DefaultSettings(), staticTracks(map[string][]cue.Cue{
		"en":      {{Start: 0, End: 2, Text: "one"}, {Start: 2, End: 4, Text: "two"}},
		"zh-Hant": {{Start: 0, End: 2, Text: "一"}, {Start: 2, End: 4, Text: "二"}},
	}))
	s := startSession(t, f, nil)
	ctx := context.Background()

	_, err := s.SetVideo(ctx, "vid")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := s.Status(ctx)
		return err == nil && st.PrimaryCues == 2
	}, 2*time.Second, 5*time.Millisecond)

	for _, tick := range []float64{0.5, 1.0, 1.5, 2.5, 3.0} {
		_, err := s.Tick(ctx, tick, "")
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return f.store.savedCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	out, err := s.Export(ctx)
	require.NoError(t, err)
	require.Len(t, out.Intervals, 2, "the flushed interval is merged with its stored copy")
	assert.Equal(t, "one", out.Intervals[0].SourceText)
	assert.Equal(t, "一", out.Intervals[0].Translation)
	assert.Equal(t, "two", out.Intervals[1].SourceText)
	assert.Equal(t, 3.0, out.Intervals[1].EndTime)

	text := out.Text()
	assert.True(t, strings.HasPrefix(text, "1\n00:00:00,500 --> 00:00:02,500\none\n一\n"), text)
}

func TestSession_ExportIncludesStoredIntervals(t *testing.T) {
	f := newFixture(t, config.DefaultSettings(), nil)
	f.store.preset = []recorder.Interval{
		{VideoID: "vid", StartTime: 10, EndTime: 12, SourceText: "earlier", Translation: "更早"},
		{VideoID: "other", StartTime: 1, EndTime: 2, SourceText: "elsewhere"},
	}
	s := startSession(t, f, nil)
	ctx := context.Background()

	_, err := s.SetVideo(ctx, "vid")
	require.NoError(t, err)
	_, err = s.Tick(ctx, 1, "live")
	require.NoError(t, err)
	_, err = s.Tick(ctx, 2, "live")
	require.NoError(t, err)

	out, err := s.Export(ctx)
	require.NoError(t, err)
	require.Len(t, out.Intervals, 2)
	assert.Equal(t, "live", out.Intervals[0].SourceText)
	assert.Equal(t, "earlier", out.Intervals[1].SourceText)
}

func TestSession_ExportFallsBackToRecords(t *testing.T) {
	f := newFixture(t, config.DefaultSettings(), nil)
	records := stubRecords{records: []translation.Record{{
		Key:         translation.Key{VideoID: "vid", Model: "m", SourceLang: "en", TargetLang: "ja", Text: "hi"},
		Translation: "やあ",
		UpdatedAt:   epoch0,
	}}}
	s := startSession(t, f, records)
	ctx := context.Background()

	_, err := s.Export(ctx)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "no video yet")

	_, err = s.SetVideo(ctx, "vid")
	require.NoError(t, err)

	out, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Intervals)
	require.Len(t, out.Records, 1)
	assert.Contains(t, out.Text(), "# DualSub Translation Export")
	assert.Contains(t, out.Text(), "やあ")
}

func TestSession_UpdateSettings(t *testing.T) {
	f := newFixture(t, generativeSettings(), nil)
	s := startSession(t, f, nil)
	ctx := context.Background()

	_, err := s.SetVideo(ctx, "vid")
	require.NoError(t, err)
	_, err = s.Tick(ctx, 1, "hello there")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := s.Status(ctx)
		return err == nil && st.Cache.Memory == 1
	}, 2*time.Second, 5*time.Millisecond)

	next := s.Settings()
	next.Provider = " GEMINI "
	next.MinChars = 999
	change, err := s.UpdateSettings(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGemini, change.Next.Provider)
	assert.True(t, change.ProviderChanged())

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGemini, st.Provider)
	assert.Equal(t, 0, st.Cache.Memory)
	assert.Equal(t, config.ProviderGemini, s.Settings().Provider)

	bad := s.Settings()
	bad.TargetLanguage = "!!"
	_, err = s.UpdateSettings(ctx, bad)
	require.Error(t, err)
}

func TestSession_ConcurrentUpdatesStayInOrder(t *testing.T) {
	f := newFixture(t, generativeSettings(), nil)
	s := startSession(t, f, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			next := s.Settings()
			next.MinChars = n
			_, err := s.UpdateSettings(ctx, next)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var applied config.Settings
	require.NoError(t, f.loop.Do(ctx, func() { applied = f.orch.Settings() }))
	assert.Equal(t, s.Settings(), applied)

	onDisk, err := config.LoadSettingsFile(s.settings.Path())
	require.NoError(t, err)
	assert.Equal(t, applied, onDisk)
}

func TestSession_TranslationState(t *testing.T) {
	f := newFixture(t, generativeSettings(), nil)
	s := startSession(t, f, nil)
	ctx := context.Background()

	_, err := s.SetVideo(ctx, "vid")
	require.NoError(t, err)

	st, err := s.TranslationState(ctx)
	require.NoError(t, err)
	assert.Equal(t, TranslationState{VideoID: "vid", Enabled: true}, st)

	st, err = s.SetTranslationEnabled(ctx, false)
	require.NoError(t, err)
	assert.False(t, st.Enabled)

	frame, err := s.Tick(ctx, 1, "hello there")
	require.NoError(t, err)
	assert.Equal(t, "hello there", frame.Primary)
	assert.Empty(t, frame.Secondary)

	_, err = s.SetVideo(ctx, "other")
	require.NoError(t, err)
	st, err = s.TranslationState(ctx)
	require.NoError(t, err)
	assert.Equal(t, TranslationState{VideoID: "other", Enabled: true}, st)
}

func TestSession_Flush(t *testing.T) {
	f := newFixture(t, config.DefaultSettings(), nil)
	s := startSession(t, f, nil)
	ctx := context.Background()

	_, err := s.SetVideo(ctx, "vid")
	require.NoError(t, err)
	_, err = s.Tick(ctx, 1, "closing line")
	require.NoError(t, err)
	_, err = s.Tick(ctx, 2, "closing line")
	require.NoError(t, err)

	require.NoError(t, s.Flush(ctx))
	require.Eventually(t, func() bool { return f.store.savedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_CloseWaitsForFlush(t *testing.T) {
	f := newFixture(t, config.DefaultSettings(), nil)
	s := startSession(t, f, nil)
	ctx := context.Background()

	_, err := s.SetVideo(ctx, "vid")
	require.NoError(t, err)
	_, err = s.Tick(ctx, 1, "last words")
	require.NoError(t, err)
	_, err = s.Tick(ctx, 2, "last words")
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, f.store.savedCount())
}
