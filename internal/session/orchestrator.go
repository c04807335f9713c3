package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/cue"
	"github.com/MimeLyc/dualsub/internal/lang"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/pkg/clock"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// SourceTrack marks a secondary line that came from a caption track rather
// than the translation cache.
const SourceTrack = "track"

const maxSamples = 50

// Epoch identifies the video and track-load generation. Track fetches that
// complete under a different epoch are discarded.
type Epoch struct {
	VideoID    string `json:"video_id"`
	Generation uint64 `json:"generation"`
}

// Frame is what one tick resolved.
type Frame struct {
	Time            float64 `json:"time"`
	VideoID         string  `json:"video_id"`
	Primary         string  `json:"primary"`
	Secondary       string  `json:"secondary"`
	SecondarySource string  `json:"secondary_source,omitempty"`
	DisplayMode     string  `json:"display_mode"`
}

type Options struct {
	Recorder    recorder.Options
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Timeout bounds track fetches and interval flushes.
	Timeout time.Duration
}

// Deps are the orchestrator's collaborators. Cache must use the same loop.
// Every interval store receives committed intervals and is read back on
// export.
type Deps struct {
	Loop      translation.Poster
	Clock     clock.Clock
	Cache     *translation.Cache
	Tracks    TrackProvider
	Intervals []recorder.Store
}

// Orchestrator drives one tick per frame: timeline lookups, then the cache
// query for the fallback line, then the recorder. Every method must run on
// the loop.
type Orchestrator struct {
	opts Options
	deps Deps

	settings config.Settings
	epoch    Epoch
	recorder *recorder.Recorder

	backoff    *Backoff
	retryTimer clock.Timer

	primary         fn.Option[cue.Track]
	secondary       fn.Option[cue.Track]
	primaryCursor   cue.Cursor
	secondaryCursor cue.Cursor

	effectiveSource string
	samples         []string

	// translationOff pauses generated lines for the current video only.
	translationOff bool

	flushes sync.WaitGroup
}

func NewOrchestrator(settings config.Settings, opts Options, deps Deps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	o := &Orchestrator{
		opts:      opts,
		deps:      deps,
		settings:  settings,
		backoff:   NewBackoff(opts.BackoffBase, opts.BackoffCap),
		primary:   fn.None[cue.Track](),
		secondary: fn.None[cue.Track](),
	}
	o.recorder = recorder.New(opts.Recorder, o.saveInterval)
	o.deps.Cache.SetMinChars(settings.MinChars)
	o.recomputeSource()
	return o
}

// Tick resolves the lines shown at media time t. poll is consulted only
// when no primary track is loaded and may be nil.
func (o *Orchestrator) Tick(t float64, poll TextPoller) Frame {
	frame := Frame{
		Time:        t,
		VideoID:     o.epoch.VideoID,
		DisplayMode: o.settings.DisplayMode,
	}

	if o.primary.IsSome() {
		frame.Primary = o.primaryCursor.Locate(o.primary.UnwrapOr(cue.Track{}).Cues, t)
	} else if poll != nil {
		frame.Primary = lang.NormalizeText(poll.PollText())
		o.sample(frame.Primary)
	}

	if o.secondary.IsSome() {
		if text := o.secondaryCursor.Locate(o.secondary.UnwrapOr(cue.Track{}).Cues, t); text != "" {
			frame.Secondary = text
			frame.SecondarySource = SourceTrack
		}
	} else if frame.Primary != "" && !o.translationOff && o.settings.Generative() {
		res := o.deps.Cache.Query(frame.Primary, o.queryContext())
		if res.Text != "" {
			frame.Secondary = res.Text
			frame.SecondarySource = string(res.Tier)
		}
	}

	o.recorder.Observe(t, frame.Primary, frame.Secondary, frame.SecondarySource)
	return frame
}

// SetVideo switches to videoID: the open interval is closed, the cache is
// reset with its memory and the tracks of the new video are loaded.
func (o *Orchestrator) SetVideo(videoID string) {
	videoID = strings.TrimSpace(videoID)
	if videoID == o.epoch.VideoID {
		return
	}

	o.recorder.SetVideo(videoID)
	o.deps.Cache.Reset(true)
	o.epoch = Epoch{VideoID: videoID, Generation: o.epoch.Generation + 1}
	o.translationOff = false
	o.clearTracks()
	o.samples = nil
	o.recomputeSource()
	o.loadTracks()
}

// ApplySettings reacts to a settings change. Provider, model or language
// changes reset the cache; a provider change also drops its memory. A track
// language change reloads the tracks.
func (o *Orchestrator) ApplySettings(change config.SettingsChange) {
	o.settings = change.Next
	o.deps.Cache.SetMinChars(change.Next.MinChars)

	if change.RequiresCacheReset() {
		o.deps.Cache.Reset(change.ProviderChanged())
		o.recomputeSource()
		log.Info("Translation cache reset after settings change: %v", change.Fields())
	}

	if change.RequiresTrackReload() {
		o.epoch.Generation++
		o.clearTracks()
		o.recomputeSource()
		o.loadTracks()
	}
}

// SetTranslationEnabled switches generated lines on or off for the current
// video. Secondary tracks are unaffected. The switch resets on SetVideo.
func (o *Orchestrator) SetTranslationEnabled(enabled bool) {
	o.translationOff = !enabled
}

func (o *Orchestrator) TranslationEnabled() bool {
	return !o.translationOff
}

// Reload fetches the current video's tracks again.
func (o *Orchestrator) Reload() {
	o.epoch.Generation++
	o.clearTracks()
	o.loadTracks()
}

// ExportIntervals merges the recorder's intervals with external ones.
func (o *Orchestrator) ExportIntervals(external []recorder.Interval) []recorder.Interval {
	return o.recorder.ExportAll(external)
}

// Flush closes the open interval.
func (o *Orchestrator) Flush() {
	o.recorder.Flush()
}

func (o *Orchestrator) Epoch() Epoch {
	return o.epoch
}

func (o *Orchestrator) Settings() config.Settings {
	return o.settings
}

// TracksLoaded reports whether a primary track is in use.
func (o *Orchestrator) TracksLoaded() bool {
	return o.primary.IsSome()
}

// Status is a snapshot for diagnostics.
type Status struct {
	Epoch           Epoch              `json:"epoch"`
	Translate       bool               `json:"translate"`
	Provider        string             `json:"provider"`
	Model           string             `json:"model"`
	EffectiveSource string             `json:"effective_source"`
	TargetLanguage  string             `json:"target_language"`
	PrimaryCues     int                `json:"primary_cues"`
	SecondaryCues   int                `json:"secondary_cues"`
	Backoff         time.Duration      `json:"backoff"`
	Cache           translation.Stats  `json:"cache"`
	Committed       int                `json:"committed"`
	Active          *recorder.Interval `json:"active,omitempty"`
}

func (o *Orchestrator) Status() Status {
	st := Status{
		Epoch:           o.epoch,
		Translate:       !o.translationOff,
		Provider:        o.settings.Provider,
		Model:           o.settings.Model,
		EffectiveSource: o.effectiveSource,
		TargetLanguage:  o.settings.TargetLanguage,
		PrimaryCues:     len(o.primary.UnwrapOr(cue.Track{}).Cues),
		SecondaryCues:   len(o.secondary.UnwrapOr(cue.Track{}).Cues),
		Backoff:         o.backoff.Current(),
		Cache:           o.deps.Cache.Stats(),
		Committed:       len(o.recorder.Committed()),
	}
	if iv, ok := o.recorder.Active(); ok {
		st.Active = &iv
	}
	return st
}

func (o *Orchestrator) queryContext() translation.QueryContext {
	source := o.effectiveSource
	if source == "" {
		source = lang.Auto
	}
	return translation.QueryContext{
		VideoID:    o.epoch.VideoID,
		Provider:   o.settings.Provider,
		Model:      o.settings.Model,
		SourceLang: source,
		TargetLang: lang.Canonical(o.settings.TargetLanguage),
	}
}

// recomputeSource resolves the effective source language from the
// settings, then the primary track, then the polled samples.
func (o *Orchestrator) recomputeSource() {
	samples := o.samples
	declared := ""
	if o.primary.IsSome() {
		track := o.primary.UnwrapOr(cue.Track{})
		declared = track.Language
		samples = track.Texts()
		if len(samples) > maxSamples {
			samples = samples[:maxSamples]
		}
	}
	o.effectiveSource = lang.Effective(o.settings.SourceLanguage, declared, samples)
}

// sample collects polled texts until the source language can be guessed.
func (o *Orchestrator) sample(text string) {
	if text == "" || o.effectiveSource != "" || len(o.samples) >= maxSamples {
		return
	}
	if n := len(o.samples); n > 0 && o.samples[n-1] == text {
		return
	}
	o.samples = append(o.samples, text)
	if len(o.samples)%5 == 0 {
		o.recomputeSource()
	}
}

func (o *Orchestrator) clearTracks() {
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	o.backoff.Reset()
	o.primary = fn.None[cue.Track]()
	o.secondary = fn.None[cue.Track]()
	o.primaryCursor.Reset()
	o.secondaryCursor.Reset()
}

type loadedTracks struct {
	primary   fn.Option[cue.Track]
	secondary fn.Option[cue.Track]
}

func (o *Orchestrator) loadTracks() {
	if o.deps.Tracks == nil || o.epoch.VideoID == "" {
		return
	}

	epoch := o.epoch
	primarySrc := o.deps.Tracks.Source(epoch.VideoID, o.settings.PrimaryLanguage)
	var secondarySrc cue.Source
	if sl := strings.TrimSpace(o.settings.SecondaryLanguage); sl != "" && !lang.Equivalent(sl, o.settings.PrimaryLanguage) {
		secondarySrc = o.deps.Tracks.Source(epoch.VideoID, sl)
	}
	if primarySrc == nil && secondarySrc == nil {
		return
	}

	timeout := o.opts.Timeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res := fetchTracks(ctx, primarySrc, secondarySrc)
		o.deps.Loop.Post(func() {
			o.completeTracks(epoch, res)
		})
	}()
}

// fetchTracks fails as a whole only when a source is rate limited; other
// failures leave that track empty.
func fetchTracks(ctx context.Context, primary, secondary cue.Source) fn.Result[loadedTracks] {
	out := loadedTracks{primary: fn.None[cue.Track](), secondary: fn.None[cue.Track]()}

	fetch := func(src cue.Source, name string) (fn.Option[cue.Track], error) {
		if src == nil {
			return fn.None[cue.Track](), nil
		}
		track, err := src.Fetch(ctx)
		if err != nil {
			if apperr.Is(err, apperr.KindRateLimited) {
				return fn.None[cue.Track](), err
			}
			log.Warn("Failed to load %s track: %v", name, err)
			return fn.None[cue.Track](), nil
		}
		track.Cues = cue.Sanitize(track.Cues)
		return fn.Some(track), nil
	}

	var err error
	if out.primary, err = fetch(primary, "primary"); err != nil {
		return fn.Err[loadedTracks](err)
	}
	if out.secondary, err = fetch(secondary, "secondary"); err != nil {
		return fn.Err[loadedTracks](err)
	}
	return fn.Ok(out)
}

func (o *Orchestrator) completeTracks(epoch Epoch, res fn.Result[loadedTracks]) {
	if epoch != o.epoch {
		log.Debug("Discarding stale track load for %q", epoch.VideoID)
		return
	}

	tracks, err := res.Unpack()
	if err != nil {
		delay := o.backoff.Next()
		log.Warn("Track fetch for %q rate limited, retrying in %s", epoch.VideoID, delay)
		o.retryTimer = o.deps.Clock.AfterFunc(delay, func() {
			o.deps.Loop.Post(func() {
				if epoch != o.epoch {
					return
				}
				o.retryTimer = nil
				o.loadTracks()
			})
		})
		return
	}

	o.backoff.Reset()
	o.primary = tracks.primary
	o.secondary = tracks.secondary
	o.primaryCursor.Reset()
	o.secondaryCursor.Reset()
	o.recomputeSource()
	log.Info("Loaded tracks for %q: primary=%d secondary=%d cues, source=%q",
		epoch.VideoID,
		len(o.primary.UnwrapOr(cue.Track{}).Cues),
		len(o.secondary.UnwrapOr(cue.Track{}).Cues),
		o.effectiveSource)
}

// saveInterval flushes a committed interval to every interval store.
func (o *Orchestrator) saveInterval(iv recorder.Interval) {
	stores := o.deps.Intervals
	if len(stores) == 0 {
		return
	}

	timeout := o.opts.Timeout
	o.flushes.Add(1)
	go func() {
		defer o.flushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for _, store := range stores {
			if err := store.SaveInterval(ctx, iv); err != nil {
				log.Warn("Failed to flush interval %.3f-%.3f: %v", iv.StartTime, iv.EndTime, err)
			}
		}
	}()
}
