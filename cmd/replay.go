package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/cue"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/session"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/pkg/clock"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/spf13/cobra"
)

// replayOptions drive one offline run over subtitle files.
type replayOptions struct {
	VideoID       string
	PrimaryFile   string
	PrimaryLang   string
	SecondaryFile string
	SecondaryLang string
	TargetLang    string
	Step          time.Duration
	Translate     bool
	Format        string
	Recorder      recorder.Options
	// StepTimeout bounds the wait for one generated line.
	StepTimeout time.Duration
}

var replayOpts = replayOptions{
	VideoID:     "replay",
	PrimaryLang: "en",
	Step:        250 * time.Millisecond,
	Format:      "srt",
	StepTimeout: 30 * time.Second,
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Play subtitle files through the engine on a simulated clock",
	Long: `replay ticks the engine over a primary subtitle file at a fixed step and
prints the recorded dual-language export. The second line comes from the
secondary file, or from the configured LLM provider with --translate.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := replayOpts
		opts.Recorder = recorder.Options{
			MinDuration: cfg.Recorder.MinDuration,
			SeekGap:     cfg.Recorder.SeekGap,
			Capacity:    cfg.Recorder.Capacity,
		}

		var gen translation.Generator
		if opts.Translate {
			if gen = newGenerator(cfg); gen == nil {
				return fmt.Errorf("--translate needs a configured LLM provider")
			}
		}
		return runReplay(cmd.Context(), cmd.OutOrStdout(), opts, gen)
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.PrimaryFile, "primary", "", "Primary subtitle file (SRT or WebVTT)")
	f.StringVar(&replayOpts.PrimaryLang, "primary-lang", replayOpts.PrimaryLang, "Language of the primary file")
	f.StringVar(&replayOpts.SecondaryFile, "secondary", "", "Secondary subtitle file")
	f.StringVar(&replayOpts.SecondaryLang, "secondary-lang", "", "Language of the secondary file")
	f.StringVar(&replayOpts.TargetLang, "target-lang", "", "Translation target (default: secondary language or zh-Hant)")
	f.StringVar(&replayOpts.VideoID, "video", replayOpts.VideoID, "Video id recorded in the export")
	f.DurationVar(&replayOpts.Step, "step", replayOpts.Step, "Simulated tick interval")
	f.BoolVar(&replayOpts.Translate, "translate", false, "Generate missing lines with the LLM provider")
	f.StringVar(&replayOpts.Format, "format", replayOpts.Format, "Output format: srt or json")
	_ = replayCmd.MarkFlagRequired("primary")
}

// replaySettings picks a generative provider whenever a generator is
// supplied, so missing lines are always requested from it.
func replaySettings(opts replayOptions, generative bool) config.Settings {
	s := config.DefaultSettings()
	s.Provider = config.ProviderYouTube
	if generative {
		s.Provider = config.ProviderOpenAI
	}
	s.PrimaryLanguage = opts.PrimaryLang
	s.SecondaryLanguage = opts.SecondaryLang
	switch {
	case opts.TargetLang != "":
		s.TargetLanguage = opts.TargetLang
	case opts.SecondaryLang != "":
		s.TargetLanguage = opts.SecondaryLang
	}
	return s.Sanitize()
}

// runReplay owns the loop itself: every posted completion runs between
// ticks, so the output only depends on the inputs and the generator.
func runReplay(ctx context.Context, out io.Writer, opts replayOptions, gen translation.Generator) error {
	if opts.Step <= 0 {
		return fmt.Errorf("step must be positive")
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "srt" && format != "json" {
		return fmt.Errorf("unsupported format %q", opts.Format)
	}

	cues, err := cue.ParseFile(opts.PrimaryFile)
	if err != nil {
		return fmt.Errorf("read primary track: %w", err)
	}
	var end float64
	for _, c := range cue.Sanitize(cues) {
		if c.End > end {
			end = c.End
		}
	}

	files := map[string]string{opts.PrimaryLang: opts.PrimaryFile}
	if opts.SecondaryFile != "" && opts.SecondaryLang != "" {
		files[opts.SecondaryLang] = opts.SecondaryFile
	}

	loop := session.NewLoop(0)
	clk := clock.NewManual(time.Unix(0, 0).UTC())
	deps := translation.Deps{Loop: loop, Clock: clk}
	if gen != nil {
		deps.Generator = gen
	}
	settings := replaySettings(opts, gen != nil)
	cache := translation.NewCache(translation.Options{MinChars: settings.MinChars}, deps)

	orch := session.NewOrchestrator(settings, session.Options{Recorder: opts.Recorder}, session.Deps{
		Loop:   loop,
		Clock:  clk,
		Cache:  cache,
		Tracks: session.FileTracks(files),
	})

	orch.SetVideo(opts.VideoID)
	if err := drain(ctx, loop, opts.StepTimeout, orch.TracksLoaded); err != nil {
		return fmt.Errorf("load tracks: %w", err)
	}

	steps := int(end/opts.Step.Seconds()) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) * opts.Step.Seconds()
		frame := orch.Tick(t, nil)
		if gen != nil && frame.Primary != "" && frame.Secondary == "" {
			idle := func() bool {
				st := cache.Stats()
				return st.InFlight == 0 && !st.Queued
			}
			if err := drain(ctx, loop, opts.StepTimeout, idle); err != nil {
				log.Warn("No translation for %q at %.3fs: %v", frame.Primary, t, err)
			}
			orch.Tick(t, nil)
		}
		clk.Advance(opts.Step)
		loop.RunPending()
	}
	orch.Flush()

	intervals := orch.ExportIntervals(nil)
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(intervals)
	}
	_, err = io.WriteString(out, recorder.FormatSRT(intervals))
	return err
}

// drain runs posted closures until cond holds.
func drain(ctx context.Context, loop *session.Loop, timeout time.Duration, cond func() bool) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		loop.RunPending()
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
