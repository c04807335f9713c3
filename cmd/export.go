package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/persistence"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/spf13/cobra"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <video-id>",
	Short: "Print the stored captions of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openStores()
		if err != nil {
			return err
		}
		defer eng.Close()

		sources := []intervalSource{eng.local}
		if eng.remote != nil {
			sources = append(sources, eng.remote)
		}
		return runExport(cmd.Context(), cmd.OutOrStdout(), args[0], exportFormat, sources, eng.local, time.Now())
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "srt", "Output format: srt or json")
}

// openStores opens only the persistence tiers; no session is started.
func openStores() (*engine, error) {
	eng := &engine{remote: openRemote(cfg)}
	local, err := persistence.NewSQLiteStore(cfg.Store.DBPath(), cfg.Cache.LocalCapacity)
	if err != nil {
		eng.Close()
		return nil, err
	}
	eng.local = local
	return eng, nil
}

type intervalSource interface {
	ListIntervals(ctx context.Context, videoID string) ([]recorder.Interval, error)
}

type recordSource interface {
	ListByVideo(ctx context.Context, videoID string) ([]translation.Record, error)
}

func runExport(ctx context.Context, out io.Writer, videoID, format string, sources []intervalSource, records recordSource, now time.Time) error {
	videoID = strings.TrimSpace(videoID)
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "srt" && format != "json" {
		return fmt.Errorf("unsupported format %q", format)
	}

	var all []recorder.Interval
	for _, src := range sources {
		ivs, err := src.ListIntervals(ctx, videoID)
		if err != nil {
			log.Warn("Failed to read intervals of %q: %v", videoID, err)
			continue
		}
		all = append(all, ivs...)
	}
	intervals := recorder.Merge(videoID, nil, all)

	var recs []translation.Record
	if len(intervals) == 0 && records != nil {
		var err error
		if recs, err = records.ListByVideo(ctx, videoID); err != nil {
			return err
		}
	}
	if len(intervals) == 0 && len(recs) == 0 {
		return apperr.New(apperr.KindValidation, "no cached translations or timed subtitles found yet").
			WithContext("video_id", videoID)
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			VideoID    string               `json:"video_id"`
			ExportedAt time.Time            `json:"exported_at"`
			Intervals  []recorder.Interval  `json:"intervals"`
			Records    []translation.Record `json:"records,omitempty"`
		}{videoID, now.UTC(), intervals, recs})
	}

	text := recorder.FormatReport(recs, now.UTC())
	if len(intervals) > 0 {
		text = recorder.FormatSRT(intervals)
	}
	_, err := io.WriteString(out, text)
	return err
}
