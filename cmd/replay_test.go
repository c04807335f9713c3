package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const primarySRT = `1
00:00:01,000 --> 00:00:02,000
hello

2
00:00:03,000 --> 00:00:04,000
world
`

const secondarySRT = `1
00:00:01,000 --> 00:00:02,000
你好

2
00:00:03,000 --> 00:00:04,000
世界
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func baseReplay(t *testing.T) replayOptions {
	return replayOptions{
		VideoID:     "vid",
		PrimaryFile: writeFile(t, "en.srt", primarySRT),
		PrimaryLang: "en",
		Step:        250 * time.Millisecond,
		Format:      "srt",
		Recorder:    recorder.Options{MinDuration: 0.3, SeekGap: 2.5, Capacity: 100},
		StepTimeout: 2 * time.Second,
	}
}

type echoGenerator struct {
	mu    sync.Mutex
	texts []string
}

func (g *echoGenerator) Generate(_ context.Context, text string, _ translation.GenerateContext) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts = append(g.texts, text)
	return "[" + text + "]", nil
}

func TestRunReplay_TwoTracks(t *testing.T) {
	opts := baseReplay(t)
	opts.SecondaryFile = writeFile(t, "zh.srt", secondarySRT)
	opts.SecondaryLang = "zh-Hant"

	var out bytes.Buffer
	require.NoError(t, runReplay(context.Background(), &out, opts, nil))

	want := "1\n00:00:01,000 --> 00:00:02,250\nhello\n你好\n\n" +
		"2\n00:00:03,000 --> 00:00:04,250\nworld\n世界\n"
	assert.Equal(t, want, out.String())
}

func TestRunReplay_Translate(t *testing.T) {
	opts := baseReplay(t)
	opts.Format = "json"
	gen := &echoGenerator{}

	var out bytes.Buffer
	require.NoError(t, runReplay(context.Background(), &out, opts, gen))

	var intervals []recorder.Interval
	require.NoError(t, json.Unmarshal(out.Bytes(), &intervals))
	require.Len(t, intervals, 2)
	assert.Equal(t, "hello", intervals[0].SourceText)
	assert.Equal(t, "[hello]", intervals[0].Translation)
	assert.Equal(t, "[world]", intervals[1].Translation)
	assert.Equal(t, []string{"hello", "world"}, gen.texts)
}

func TestRunReplay_Errors(t *testing.T) {
	opts := baseReplay(t)
	opts.Format = "xml"
	assert.Error(t, runReplay(context.Background(), &bytes.Buffer{}, opts, nil))

	opts = baseReplay(t)
	opts.Step = 0
	assert.Error(t, runReplay(context.Background(), &bytes.Buffer{}, opts, nil))

	opts = baseReplay(t)
	opts.PrimaryFile = filepath.Join(t.TempDir(), "missing.srt")
	assert.Error(t, runReplay(context.Background(), &bytes.Buffer{}, opts, nil))
}
